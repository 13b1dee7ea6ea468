package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arborfoundry/scoutagent/pkg/config"
	"github.com/arborfoundry/scoutagent/pkg/httpclient"
)

// AnthropicProvider implements Provider against the Anthropic Messages
// API. Hand-rolled HTTP, grounded on pkg/llms/anthropic.go, retargeted
// from the teacher's pb.Message/protocol.ToolCall wire types onto this
// package's own Message/ToolCall.
type AnthropicProvider struct {
	cfg        config.LLMConfig
	apiKey     string
	httpClient *httpclient.Client
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	Messages    []anthropicMessage  `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
	Stream      bool                `json:"stream"`
	System      string              `json:"system,omitempty"`
	Tools       []anthropicTool     `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     *map[string]any `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicStreamEvent struct {
	Type         string            `json:"type"`
	Delta        *anthropicDelta   `json:"delta,omitempty"`
	ContentBlock *anthropicContent `json:"content_block,omitempty"`
	Usage        *anthropicUsage   `json:"usage,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicProvider builds a provider from the resolved API key and
// the loaded config section.
func NewAnthropicProvider(apiKey string, cfg config.LLMConfig) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	host := cfg.Host
	if host == "" {
		host = "https://api.anthropic.com"
	}
	cfg.Host = host
	return &AnthropicProvider{
		cfg:    cfg,
		apiKey: apiKey,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}, nil
}

func (p *AnthropicProvider) ModelName() string { return p.cfg.Model }
func (p *AnthropicProvider) Close() error       { return nil }

func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	req := p.buildRequest(messages, false, tools)
	resp, err := p.doRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if resp.Error != nil {
		return Response{}, fmt.Errorf("anthropic: %s", resp.Error.Message)
	}

	var text string
	var calls []ToolCall
	for _, c := range resp.Content {
		switch c.Type {
		case "text":
			text += c.Text
		case "tool_use":
			args := map[string]any{}
			if c.Input != nil {
				args = *c.Input
			}
			calls = append(calls, ToolCall{ID: c.ID, Name: c.Name, Arguments: args})
		}
	}
	return Response{Text: text, ToolCalls: calls, Tokens: resp.Usage.InputTokens + resp.Usage.OutputTokens}, nil
}

// GenerateStructured requests the same response shape as Generate; the
// strategy layer is responsible for parsing Text as JSON and returning
// ErrMalformedOutput on failure rather than coercing it here (spec.md
// §9 rejects coercion in the core).
func (p *AnthropicProvider) GenerateStructured(ctx context.Context, messages []Message, tools []ToolDefinition, _ StructuredOutputConfig) (Response, error) {
	return p.Generate(ctx, messages, tools)
}

func (p *AnthropicProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
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

func (p *AnthropicProvider) buildRequest(messages []Message, stream bool, tools []ToolDefinition) anthropicRequest {
	var systemParts []string
	converted := make([]anthropicMessage, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case "system":
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
		case "user":
			converted = append(converted, anthropicMessage{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: m.Content}},
			})
		case "tool":
			converted = append(converted, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case "assistant":
			var contents []anthropicContent
			if m.Content != "" {
				contents = append(contents, anthropicContent{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				contents = append(contents, anthropicContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: &args})
			}
			converted = append(converted, anthropicMessage{Role: "assistant", Content: contents})
		}
	}

	req := anthropicRequest{
		Model:       p.cfg.Model,
		Messages:    converted,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
		Stream:      stream,
		System:      strings.Join(systemParts, "\n\n"),
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return req
}

func (p *AnthropicProvider) doRequest(ctx context.Context, reqBody anthropicRequest) (*anthropicResponse, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, string(body))
	}
	var out anthropicResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ErrMalformedOutput{Raw: string(body), Err: err}
	}
	return &out, nil
}

func (p *AnthropicProvider) streamRequest(ctx context.Context, reqBody anthropicRequest, out chan<- StreamChunk) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("anthropic: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Host+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("anthropic: stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("anthropic: stream status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var currentToolID, currentToolName string
	var currentArgsJSON strings.Builder
	var totalTokens int

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var evt anthropicStreamEvent
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			continue
		}
		switch evt.Type {
		case "content_block_start":
			if evt.ContentBlock != nil && evt.ContentBlock.Type == "tool_use" {
				currentToolID = evt.ContentBlock.ID
				currentToolName = evt.ContentBlock.Name
				currentArgsJSON.Reset()
			}
		case "content_block_delta":
			if evt.Delta == nil {
				continue
			}
			switch evt.Delta.Type {
			case "text_delta":
				select {
				case out <- StreamChunk{Type: "text", Text: evt.Delta.Text}:
				case <-ctx.Done():
					return ctx.Err()
				}
			case "input_json_delta":
				currentArgsJSON.WriteString(evt.Delta.PartialJSON)
			}
		case "content_block_stop":
			if currentToolName != "" {
				var args map[string]any
				raw := currentArgsJSON.String()
				if raw != "" {
					_ = json.Unmarshal([]byte(raw), &args)
				}
				select {
				case out <- StreamChunk{Type: "tool_call", ToolCall: &ToolCall{ID: currentToolID, Name: currentToolName, Arguments: args, RawArgs: raw}}:
				case <-ctx.Done():
					return ctx.Err()
				}
				currentToolName = ""
			}
		case "message_delta":
			if evt.Usage != nil {
				totalTokens += evt.Usage.OutputTokens
			}
		}
	}
	select {
	case out <- StreamChunk{Type: "done", Tokens: totalTokens}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return scanner.Err()
}
