package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arborfoundry/scoutagent/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProviderGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		require.Equal(t, "web_search", req.Tools[0].Name)

		resp := anthropicResponse{
			Content: []anthropicContent{{Type: "text", Text: "hello"}},
			Usage:   anthropicUsage{InputTokens: 10, OutputTokens: 5},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p, err := NewAnthropicProvider("test-key", config.LLMConfig{
		Model: "claude-3-5-sonnet-20241022", Host: server.URL, MaxTokens: 1024,
	})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}, []ToolDefinition{{Name: "web_search", Description: "search the web", Parameters: map[string]any{"type": "object"}}})

	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text)
	require.Equal(t, 15, resp.Tokens)
}

func TestAnthropicProviderGenerateToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := anthropicResponse{
			Content: []anthropicContent{{
				Type: "tool_use", ID: "call_1", Name: "web_search",
				Input: &map[string]any{"query": "go modules"},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p, err := NewAnthropicProvider("test-key", config.LLMConfig{Model: "claude-3-5-sonnet-20241022", Host: server.URL})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), []Message{{Role: "user", Content: "search for go modules"}}, nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "web_search", resp.ToolCalls[0].Name)
	require.Equal(t, "go modules", resp.ToolCalls[0].Arguments["query"])
}

func TestAnthropicProviderRequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicProvider("", config.LLMConfig{Model: "claude-3-5-sonnet-20241022"})
	require.Error(t, err)
}

func TestAnthropicProviderMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	p, err := NewAnthropicProvider("test-key", config.LLMConfig{Model: "claude-3-5-sonnet-20241022", Host: server.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.Error(t, err)
	var malformed *ErrMalformedOutput
	require.ErrorAs(t, err, &malformed)
}
