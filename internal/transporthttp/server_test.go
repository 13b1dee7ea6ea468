package transporthttp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arborfoundry/scoutagent/internal/broker"
	"github.com/arborfoundry/scoutagent/internal/engine"
	"github.com/arborfoundry/scoutagent/internal/executor"
	"github.com/arborfoundry/scoutagent/internal/job"
	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/arborfoundry/scoutagent/internal/queue"
	"github.com/arborfoundry/scoutagent/internal/tools"
	"github.com/arborfoundry/scoutagent/pkg/config"
	"github.com/stretchr/testify/require"
)

func requestFor(query string) job.Request {
	return job.Request{Query: query}
}

type scriptedProvider struct {
	responses []llm.Response
	calls     int
}

func (p *scriptedProvider) Generate(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDefinition) (llm.Response, error) {
	r := p.responses[p.calls]
	p.calls++
	return r, nil
}

func (p *scriptedProvider) GenerateStructured(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDefinition, cfg llm.StructuredOutputConfig) (llm.Response, error) {
	return p.Generate(ctx, messages, toolDefs)
}

func (p *scriptedProvider) GenerateStreaming(ctx context.Context, messages []llm.Message, toolDefs []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }
func (p *scriptedProvider) Close() error       { return nil }

func newTestServer(t *testing.T, provider *scriptedProvider) (*Server, *queue.Manager, *executor.Pool) {
	t.Helper()
	r := tools.New()
	require.NoError(t, r.Register(tools.NewFinalAnswerDescriptor()))
	require.NoError(t, r.Register(tools.NewClarificationDescriptor()))

	eng, err := engine.New(provider, r, config.EngineConfig{Strategy: "native_tool_call", MaxIterations: 5, MaxSearches: 3, MaxClarifications: 2})
	require.NoError(t, err)

	q := queue.New(config.QueueConfig{MaxConcurrentJobs: 1, QueueCeiling: 10, PersistenceDir: t.TempDir()}, nil)
	b := broker.New(10)
	pool := executor.New(q, eng, b)

	return New(q, b, pool, pool), q, pool
}

func TestSubmitGetAndListRoundTrip(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{Name: "final_answer", Arguments: map[string]any{"answer": "ok", "status": "completed"}}}},
	}}
	s, q, pool := newTestServer(t, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go pool.Run(ctx, 1)

	body := bytes.NewBufferString(`{"query":"hello","deep_level":0,"priority":0}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", body)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var submitResp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submitResp))
	jobID := submitResp["job_id"]
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		rec, ok := q.Get(jobID)
		return ok && rec.State == "completed"
	}, time.Second, 5*time.Millisecond)

	getReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID, nil)
	getRR := httptest.NewRecorder()
	s.ServeHTTP(getRR, getReq)
	require.Equal(t, http.StatusOK, getRR.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	listRR := httptest.NewRecorder()
	s.ServeHTTP(listRR, listReq)
	require.Equal(t, http.StatusOK, listRR.Code)
}

func TestGetUnknownJobReturnsNotFound(t *testing.T) {
	s, _, _ := newTestServer(t, &scriptedProvider{})
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/does-not-exist", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestClarificationWithoutAwaitingReturnsConflict(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{Name: "final_answer", Arguments: map[string]any{"answer": "ok", "status": "completed"}}}},
	}}
	s, q, pool := newTestServer(t, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go pool.Run(ctx, 1)

	id, err := q.Submit(context.Background(), requestFor("hi"), "u")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, ok := q.Get(id)
		return ok && rec.State == "completed"
	}, time.Second, 5*time.Millisecond)

	body := bytes.NewBufferString(`{"text":"paris"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+id+"/clarification", body)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestSubscribeStreamsConnectedEvent(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{Name: "final_answer", Arguments: map[string]any{"answer": "ok", "status": "completed"}}}},
	}}
	s, q, pool := newTestServer(t, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	id, err := q.Submit(context.Background(), requestFor("hi"), "u")
	require.NoError(t, err)
	_ = pool

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id+"/events", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	scanner := bufio.NewScanner(strings.NewReader(rr.Body.String()))
	var sawConnected bool
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "stream_connected") {
			sawConnected = true
		}
	}
	require.True(t, sawConnected)
}
