package utils

import "testing"

func TestNewTokenCounter_FallsBackToCl100kBase(t *testing.T) {
	counter, err := NewTokenCounter("claude-3-5-sonnet")
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	if counter.Count("hello, world") <= 0 {
		t.Error("Count() on a non-empty string should be positive")
	}
}

func TestTokenCounter_Count(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	if got := counter.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	short := counter.Count("hi")
	long := counter.Count("hi, this is a much longer research query about climate policy")
	if long <= short {
		t.Errorf("Count(long) = %d, want > Count(short) = %d", long, short)
	}
}

func TestTokenCounter_CountMessages(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	messages := []Message{
		{Role: "system", Content: "You are a research assistant."},
		{Role: "user", Content: "What is the capital of France?"},
	}
	total := counter.CountMessages(messages)
	if total <= counter.Count(messages[0].Content)+counter.Count(messages[1].Content) {
		t.Error("CountMessages should add per-message and reply-priming overhead on top of content tokens")
	}
}

func TestTokenCounter_FitWithinLimit(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	messages := []Message{
		{Role: "user", Content: "first turn of a long research conversation"},
		{Role: "assistant", Content: "a fairly detailed answer covering several sources"},
		{Role: "user", Content: "latest follow-up question"},
	}

	full := counter.CountMessages(messages)
	fitted := counter.FitWithinLimit(messages, full-1)
	if len(fitted) >= len(messages) {
		t.Fatalf("FitWithinLimit should drop at least the oldest message when budget is tighter than the full history")
	}
	if len(fitted) == 0 {
		t.Fatal("FitWithinLimit dropped everything")
	}
	if fitted[len(fitted)-1] != messages[len(messages)-1] {
		t.Error("FitWithinLimit should keep the most recent message")
	}
}

func TestTokenCounter_FitWithinLimit_Empty(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("NewTokenCounter: %v", err)
	}
	if got := counter.FitWithinLimit(nil, 100); len(got) != 0 {
		t.Errorf("FitWithinLimit(nil) = %v, want empty", got)
	}
}
