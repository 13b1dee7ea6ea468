package transporthttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arborfoundry/scoutagent/internal/apierr"
	"github.com/arborfoundry/scoutagent/internal/broker"
	"github.com/go-chi/chi/v5"
)

// handleSubscribe streams the broker's per-job events as SSE frames
// until the client disconnects (spec.md §6 Subscribe).
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, ok := s.q.Get(jobID); !ok {
		writeError(w, apierr.New(apierr.NotFound, "job not found: "+jobID))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apierr.New(apierr.ListenerError, "streaming unsupported by this response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.b.Subscribe(jobID)
	defer s.b.Unsubscribe(jobID, sub)

	ctx := r.Context()
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		var event broker.Event
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			event = e
		case <-keepalive.C:
			event = broker.Event{Name: "keepalive", Timestamp: time.Now()}
		}

		if writeSSE(w, jobID, event) != nil {
			return
		}
		flusher.Flush()

		if isTerminalStatus(event) || event.Name == "job_error" {
			return
		}
	}
}

func isTerminalStatus(event broker.Event) bool {
	if event.Name != "job_status" {
		return false
	}
	status, _ := event.Payload["status"].(string)
	return status == "completed" || status == "failed" || status == "cancelled"
}

func writeSSE(w http.ResponseWriter, jobID string, event broker.Event) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, encodeSSEPayload(jobID, event))
	return err
}

func encodeSSEPayload(jobID string, event broker.Event) string {
	payload := make(map[string]any, len(event.Payload)+3)
	for k, v := range event.Payload {
		payload[k] = v
	}
	payload["job_id"] = jobID
	payload["timestamp"] = event.Timestamp
	if event.Name == "stream_connected" {
		payload["message"] = "subscribed to job " + jobID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}
