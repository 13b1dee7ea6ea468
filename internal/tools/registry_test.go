package tools

import (
	"context"
	"testing"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/stretchr/testify/require"
)

type fakeSearchProvider struct {
	hits []SearchHit
}

func (f *fakeSearchProvider) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	return f.hits, nil
}

type fakePageExtractor struct {
	title, content string
}

func (f *fakePageExtractor) Extract(ctx context.Context, pageURL string) (string, string, error) {
	return f.title, f.content, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, RegisterBuiltins(r, &fakeSearchProvider{hits: []SearchHit{{URL: "https://a.example", Title: "A"}}}, &fakePageExtractor{title: "Page", content: "body text"}))
	return r
}

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	r := New()
	d := NewFinalAnswerDescriptor()
	require.NoError(t, r.Register(d))
	require.NoError(t, r.Register(d))

	got, ok := r.Get("final_answer")
	require.True(t, ok)
	require.True(t, got.Terminal)
}

func TestRegistryResolveSkipsMissing(t *testing.T) {
	r := newTestRegistry(t)
	got := r.Resolve([]string{"web_search", "does_not_exist", "final_answer"})
	require.Len(t, got, 2)
}

func TestRegistryListByCategory(t *testing.T) {
	r := newTestRegistry(t)

	system := r.ListByCategory(CategorySystem)
	require.Len(t, system, 2) // clarification, final_answer

	research := r.ListByCategory(CategoryResearch)
	require.Len(t, research, 3) // web_search, extract_page_content, create_report
}

func TestExecuteToolWebSearchRecordsSourcesAndSearch(t *testing.T) {
	r := newTestRegistry(t)
	ac := agentcontext.New()

	_, err := ExecuteTool(context.Background(), r, "web_search", ac, map[string]any{"query": "golang"})
	require.NoError(t, err)

	require.Equal(t, 1, ac.SourceCount())
	require.Equal(t, 1, ac.SearchesUsed)
}

func TestExecuteToolFinalAnswerSetsState(t *testing.T) {
	r := newTestRegistry(t)
	ac := agentcontext.New()

	_, err := ExecuteTool(context.Background(), r, "final_answer", ac, map[string]any{"answer": "done"})
	require.NoError(t, err)

	require.Equal(t, agentcontext.StateCompleted, ac.GetState())
	require.NotNil(t, ac.ExecutionResult)
	require.Equal(t, "done", *ac.ExecutionResult)
}

func TestExecuteToolUnknownReturnsError(t *testing.T) {
	r := New()
	_, err := ExecuteTool(context.Background(), r, "nope", agentcontext.New(), nil)
	require.Error(t, err)
}
