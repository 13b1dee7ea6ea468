package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/pkg/httpclient"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PageExtractor fetches a URL and returns its readable text content.
// Generic by design; no Tavily/Confluence-specific client belongs here
// (spec.md §11).
type PageExtractor interface {
	Extract(ctx context.Context, pageURL string) (title, content string, err error)
}

// HTTPPageExtractor fetches HTML over pkg/httpclient and strips it to
// readable text with golang.org/x/net/html tokenization — the pack's
// closest ecosystem match for this concern (no pack repo imports a
// higher-level readability library).
type HTTPPageExtractor struct {
	httpClient *httpclient.Client
	maxBytes   int64
}

// NewHTTPPageExtractor builds an extractor with a bounded response
// size, mirroring pkg/tools/web_request.go's MaxResponseSize guard.
func NewHTTPPageExtractor(maxBytes int64) *HTTPPageExtractor {
	if maxBytes <= 0 {
		maxBytes = 2 << 20 // 2MiB
	}
	return &HTTPPageExtractor{
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 20 * time.Second}),
			httpclient.WithMaxRetries(2),
		),
		maxBytes: maxBytes,
	}
}

func (e *HTTPPageExtractor) Extract(ctx context.Context, pageURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("extract_page_content: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("extract_page_content: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("extract_page_content: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return "", "", fmt.Errorf("extract_page_content: read body: %w", err)
	}

	return extractReadableText(body)
}

// skippedTags are elements whose text content never belongs in the
// extracted article body.
var skippedTags = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Footer: true,
	atom.Header: true,
	atom.Svg:    true,
	atom.Form:   true,
}

// extractReadableText walks the HTML token stream, dropping boilerplate
// elements and collapsing whitespace, grounded on golang.org/x/net/html's
// tokenizer (the "html" package already in the pack's dependency
// surface via the teacher's transitive closure).
func extractReadableText(body []byte) (title, content string, err error) {
	z := html.NewTokenizer(strings.NewReader(string(body)))

	var sb strings.Builder
	var titleBuilder strings.Builder
	skipDepth := 0
	inTitle := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return strings.TrimSpace(titleBuilder.String()), normalizeWhitespace(sb.String()), fmt.Errorf("extract_page_content: parse html: %w", err)
			}
			return strings.TrimSpace(titleBuilder.String()), normalizeWhitespace(sb.String()), nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if skippedTags[tok.DataAtom] {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if tok.DataAtom == atom.Title {
				inTitle = true
			}

		case html.EndTagToken:
			tok := z.Token()
			if skippedTags[tok.DataAtom] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if tok.DataAtom == atom.Title {
				inTitle = false
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := string(z.Text())
			if inTitle {
				titleBuilder.WriteString(text)
				continue
			}
			trimmed := strings.TrimSpace(text)
			if trimmed != "" {
				sb.WriteString(trimmed)
				sb.WriteString(" ")
			}
		}
	}
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// NewExtractPageContentDescriptor builds the extract_page_content
// research tool. It inserts/updates the source table entry for the URL
// (spec.md §4.2: update-in-place when the URL already exists).
func NewExtractPageContentDescriptor(extractor PageExtractor) Descriptor {
	return Descriptor{
		Name:        "extract_page_content",
		Description: "Fetch a web page by URL and return its readable text content.",
		Category:    CategoryResearch,
		Parameters: map[string]any{
			"url": map[string]any{"type": "string", "description": "The page URL to fetch"},
		},
		Required: []string{"url"},
		Execute: func(ctx context.Context, agentCtx *agentcontext.Context, args map[string]any) (string, error) {
			pageURL, _ := args["url"].(string)
			if pageURL == "" {
				return "", fmt.Errorf("extract_page_content: url is required")
			}

			title, content, err := extractor.Extract(ctx, pageURL)
			if err != nil {
				return "", err
			}

			agentCtx.InsertSource(pageURL, title, "", content)
			return content, nil
		},
	}
}
