package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/pkg/httpclient"
)

// SearchProvider abstracts the web search backend behind web_search.
// Generic by design (spec.md §1, §11: no Tavily/Confluence-specific
// client belongs in the core) — only an HTTP-reachable JSON search API
// is assumed.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// SearchHit is one search result returned by a SearchProvider.
type SearchHit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// HTTPSearchProvider queries a configurable JSON search endpoint,
// grounded on pkg/tools/web_request.go's outbound-HTTP pattern (shared
// pkg/httpclient for retry/backoff) but specialized to the one shape
// web_search needs instead of the teacher's arbitrary-method tool.
type HTTPSearchProvider struct {
	endpoint   string
	apiKeyEnv  string
	httpClient *httpclient.Client
}

// NewHTTPSearchProvider builds a provider against a search API that
// accepts `?q=...&limit=...` and returns `{"results":[{"url","title","snippet"}]}`.
func NewHTTPSearchProvider(endpoint, apiKeyEnv string) *HTTPSearchProvider {
	return &HTTPSearchProvider{
		endpoint:  endpoint,
		apiKeyEnv: apiKeyEnv,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 20 * time.Second}),
			httpclient.WithMaxRetries(2),
		),
	}
}

type searchAPIResponse struct {
	Results []SearchHit `json:"results"`
}

func (p *HTTPSearchProvider) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("search: invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", fmt.Sprintf("%d", limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}

	var out searchAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	if len(out.Results) > limit {
		out.Results = out.Results[:limit]
	}
	return out.Results, nil
}

// NewWebSearchDescriptor builds the web_search research tool. It
// records a SearchResult on the Context (side effect permitted by
// spec.md §4.1) and inserts each hit into the source table.
func NewWebSearchDescriptor(provider SearchProvider) Descriptor {
	return Descriptor{
		Name:        "web_search",
		Description: "Search the web for relevant pages given a query. Returns matched titles, URLs, and snippets.",
		Category:    CategoryResearch,
		Parameters: map[string]any{
			"query": map[string]any{"type": "string", "description": "The search query"},
			"limit": map[string]any{"type": "integer", "description": "Maximum number of results", "default": 5},
		},
		Required: []string{"query"},
		Execute: func(ctx context.Context, agentCtx *agentcontext.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "", fmt.Errorf("web_search: query is required")
			}
			limit := 5
			if l, ok := args["limit"].(float64); ok && l > 0 {
				limit = int(l)
			}

			hits, err := provider.Search(ctx, query, limit)
			if err != nil {
				return "", fmt.Errorf("web_search: %w", err)
			}

			var urls []string
			for _, h := range hits {
				agentCtx.InsertSource(h.URL, h.Title, h.Snippet, "")
				urls = append(urls, h.URL)
			}
			agentCtx.RecordSearch(agentcontext.SearchResult{
				Query:     query,
				Sources:   urls,
				Timestamp: time.Now(),
			})

			out, err := json.Marshal(hits)
			if err != nil {
				return "", fmt.Errorf("web_search: marshal results: %w", err)
			}
			return string(out), nil
		},
	}
}
