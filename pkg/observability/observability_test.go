package observability

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNoopMetrics_SatisfiesInterface(t *testing.T) {
	var m Metrics = NoopMetrics{}
	m.RecordToolExecution(context.Background(), "web_search", time.Millisecond, nil)
	m.RecordLLMCall(context.Background(), "claude", time.Millisecond, 10, 20, nil)
	m.RecordHTTPRequest(context.Background(), "GET", "/v1/jobs", 200, time.Millisecond, 128)
	m.RecordQueueAdmission(context.Background(), true, "")
}

func TestGetGlobalMetrics_DefaultsToNoop(t *testing.T) {
	if _, ok := GetGlobalMetrics().(NoopMetrics); !ok {
		t.Fatalf("default global metrics = %T, want NoopMetrics", GetGlobalMetrics())
	}
}

func TestSetGlobalMetrics_RoundTrip(t *testing.T) {
	pm, err := NewMetrics(MetricsConfig{Namespace: "test_roundtrip"})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	SetGlobalMetrics(pm)
	defer SetGlobalMetrics(nil)

	if GetGlobalMetrics() != Metrics(pm) {
		t.Fatal("GetGlobalMetrics did not return the installed implementation")
	}
}

func TestSetGlobalMetrics_NilRestoresNoop(t *testing.T) {
	SetGlobalMetrics(nil)
	if _, ok := GetGlobalMetrics().(NoopMetrics); !ok {
		t.Fatalf("GetGlobalMetrics() = %T after SetGlobalMetrics(nil), want NoopMetrics", GetGlobalMetrics())
	}
}

func TestPrometheusMetrics_RecordAndServe(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Namespace: "test_serve"})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordToolExecution(context.Background(), "web_search", 50*time.Millisecond, nil)
	m.RecordLLMCall(context.Background(), "claude-sonnet", 200*time.Millisecond, 512, 128, nil)
	m.RecordHTTPRequest(context.Background(), "GET", "/v1/jobs", 200, 10*time.Millisecond, 256)
	m.RecordQueueAdmission(context.Background(), false, "queue ceiling reached")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("metrics handler status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("metrics handler wrote no body")
	}
}

func TestNewManager_DisabledByDefault(t *testing.T) {
	m, err := NewManager(context.Background(), &Config{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, ok := m.Metrics().(NoopMetrics); !ok {
		t.Errorf("Metrics() = %T, want NoopMetrics when disabled", m.Metrics())
	}
	if m.MetricsHandler() != nil {
		t.Error("MetricsHandler() should be nil when metrics disabled")
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNewManager_MetricsEnabled(t *testing.T) {
	m, err := NewManager(context.Background(), &Config{Metrics: MetricsConfig{Enabled: true, Namespace: "test_manager"}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.MetricsHandler() == nil {
		t.Error("MetricsHandler() should be non-nil when metrics enabled")
	}
}

func TestNewManager_RejectsInvalidSamplingRatio(t *testing.T) {
	_, err := NewManager(context.Background(), &Config{Tracing: TracingConfig{SamplingRatio: 1.5}})
	if err == nil {
		t.Fatal("expected error for out-of-range sampling ratio")
	}
}
