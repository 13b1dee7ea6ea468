package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arborfoundry/scoutagent/pkg/config"
	"github.com/arborfoundry/scoutagent/pkg/httpclient"
)

// OllamaProvider implements Provider against a local Ollama server's
// /api/chat endpoint, grounded on pkg/llms/ollama.go. Ollama's wire
// format is JSON-lines rather than SSE, and most local models don't
// support native tool calling, so this adapter treats tool_calls as
// best-effort: present when the model's response includes them,
// otherwise callers fall back to text-embedded tool directives (the
// PlannerWithEmbeddedTool strategy exists for exactly this case).
type OllamaProvider struct {
	cfg        config.LLMConfig
	httpClient *httpclient.Client
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []ollamaTool     `json:"tools,omitempty"`
	Options  ollamaOptions    `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaResponse struct {
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`
	EvalCount int           `json:"eval_count"`
}

// NewOllamaProvider builds a provider talking to a local Ollama host.
// No API key: Ollama serves a local, unauthenticated endpoint.
func NewOllamaProvider(cfg config.LLMConfig) (*OllamaProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	return &OllamaProvider{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}, nil
}

func (p *OllamaProvider) ModelName() string { return p.cfg.Model }
func (p *OllamaProvider) Close() error       { return nil }

func (p *OllamaProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	req := p.buildRequest(messages, false, tools)
	resp, err := p.doRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	var calls []ToolCall
	for _, tc := range resp.Message.ToolCalls {
		calls = append(calls, ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return Response{Text: resp.Message.Content, ToolCalls: calls, Tokens: resp.EvalCount}, nil
}

func (p *OllamaProvider) GenerateStructured(ctx context.Context, messages []Message, tools []ToolDefinition, _ StructuredOutputConfig) (Response, error) {
	return p.Generate(ctx, messages, tools)
}

func (p *OllamaProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	req := p.buildRequest(messages, true, tools)
	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		if err := p.streamRequest(ctx, req, out); err != nil {
			out <- StreamChunk{Type: "error", Error: err}
		}
	}()
	return out, nil
}

func (p *OllamaProvider) buildRequest(messages []Message, stream bool, tools []ToolDefinition) ollamaRequest {
	converted := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		converted = append(converted, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	req := ollamaRequest{
		Model:    p.cfg.Model,
		Messages: converted,
		Stream:   stream,
		Options:  ollamaOptions{Temperature: p.cfg.Temperature},
	}
	for _, t := range tools {
		ot := ollamaTool{Type: "function"}
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, ot)
	}
	return req
}

func (p *OllamaProvider) doRequest(ctx context.Context, reqBody ollamaRequest) (*ollamaResponse, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}
	var out ollamaResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ErrMalformedOutput{Raw: string(body), Err: err}
	}
	return &out, nil
}

func (p *OllamaProvider) streamRequest(ctx context.Context, reqBody ollamaRequest, out chan<- StreamChunk) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("ollama: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama: stream request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama: stream status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var totalTokens int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			select {
			case out <- StreamChunk{Type: "text", Text: chunk.Message.Content}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		for _, tc := range chunk.Message.ToolCalls {
			select {
			case out <- StreamChunk{Type: "tool_call", ToolCall: &ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if chunk.Done {
			totalTokens = chunk.EvalCount
			break
		}
	}
	select {
	case out <- StreamChunk{Type: "done", Tokens: totalTokens}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return scanner.Err()
}
