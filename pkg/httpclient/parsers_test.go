package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestParseAnthropicHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "30")
	h.Set("anthropic-ratelimit-requests-remaining", "5")
	h.Set("anthropic-ratelimit-input-tokens-remaining", "1000")

	info := ParseAnthropicHeaders(h)
	if info.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", info.RetryAfter)
	}
	if info.RequestsRemaining != 5 {
		t.Errorf("RequestsRemaining = %d, want 5", info.RequestsRemaining)
	}
	if info.InputTokensRemaining != 1000 {
		t.Errorf("InputTokensRemaining = %d, want 1000", info.InputTokensRemaining)
	}
}

func TestParseAnthropicHeaders_ResetTime(t *testing.T) {
	h := http.Header{}
	reset := time.Now().Add(time.Minute).UTC().Format(time.RFC3339)
	h.Set("anthropic-ratelimit-requests-reset", reset)

	info := ParseAnthropicHeaders(h)
	if info.ResetTime == 0 {
		t.Error("ResetTime not parsed from RFC3339 header")
	}
}

func TestParseOpenAIHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "10")
	h.Set("x-ratelimit-remaining-requests", "3")
	h.Set("x-ratelimit-remaining-tokens", "500")

	info := ParseOpenAIHeaders(h)
	if info.RetryAfter != 10*time.Second {
		t.Errorf("RetryAfter = %v, want 10s", info.RetryAfter)
	}
	if info.RequestsRemaining != 3 {
		t.Errorf("RequestsRemaining = %d, want 3", info.RequestsRemaining)
	}
	if info.TokensRemaining != 500 {
		t.Errorf("TokensRemaining = %d, want 500", info.TokensRemaining)
	}
}

func TestParseOpenAIHeaders_Empty(t *testing.T) {
	info := ParseOpenAIHeaders(http.Header{})
	if info.RetryAfter != 0 || info.RequestsRemaining != 0 {
		t.Errorf("expected zero-value RateLimitInfo, got %+v", info)
	}
}
