// Package transporthttp is the thin HTTP/SSE layer realizing the
// External Interfaces contract (spec.md §6): Submit, Get status, List,
// Cancel, Subscribe (SSE), Provide clarification.
//
// Grounded on pkg/transport/http_metrics_middleware.go's chi + otel
// request middleware (kept as-is in pkg/transport and mounted here) and
// on the teacher's general chi-router-with-JSON-handlers shape.
package transporthttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/arborfoundry/scoutagent/internal/agentcontext"
	"github.com/arborfoundry/scoutagent/internal/apierr"
	"github.com/arborfoundry/scoutagent/internal/broker"
	"github.com/arborfoundry/scoutagent/internal/executor"
	"github.com/arborfoundry/scoutagent/internal/job"
	"github.com/arborfoundry/scoutagent/internal/queue"
	"github.com/arborfoundry/scoutagent/internal/tools"
	"github.com/arborfoundry/scoutagent/pkg/transport"
	"github.com/go-chi/chi/v5"
)

// ClarificationStore resolves a job_id to the agent context awaiting
// clarification. executor.Pool implements it from the agent contexts
// it tracks by job_id while each job runs; the server is handed the
// lookup at construction instead of reaching into the pool's
// internals.
type ClarificationStore interface {
	Lookup(jobID string) (*agentcontext.Context, bool)
}

// Server wires the Job Queue, SSE Broker, and Job Executor pool behind
// chi routes.
type Server struct {
	router *chi.Mux
	q      *queue.Manager
	b      *broker.Broker
	pool   *executor.Pool
	clar   ClarificationStore
}

// New builds a Server and registers its routes.
func New(q *queue.Manager, b *broker.Broker, pool *executor.Pool, clar ClarificationStore) *Server {
	s := &Server{router: chi.NewRouter(), q: q, b: b, pool: pool, clar: clar}
	s.router.Use(transport.Middleware)
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Post("/v1/jobs", s.handleSubmit)
	s.router.Get("/v1/jobs", s.handleList)
	s.router.Get("/v1/jobs/{jobID}", s.handleGet)
	s.router.Post("/v1/jobs/{jobID}/cancel", s.handleCancel)
	s.router.Get("/v1/jobs/{jobID}/events", s.handleSubscribe)
	s.router.Post("/v1/jobs/{jobID}/clarification", s.handleClarification)
}

type submitRequest struct {
	Query     string         `json:"query"`
	AgentType string         `json:"agent_type"`
	DeepLevel int            `json:"deep_level"`
	Priority  int            `json:"priority"`
	Tags      []string       `json:"tags"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "malformed request body", err))
		return
	}

	submitterID := r.Header.Get("X-Submitter-ID")
	id, err := s.q.Submit(r.Context(), job.Request{
		Query:     req.Query,
		AgentType: req.AgentType,
		DeepLevel: req.DeepLevel,
		Priority:  req.Priority,
		Tags:      req.Tags,
		Metadata:  req.Metadata,
	}, submitterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	rec, ok := s.q.Get(jobID)
	if !ok {
		writeError(w, apierr.New(apierr.NotFound, "job not found: "+jobID))
		return
	}
	snap := rec.Snapshot()
	writeJSON(w, http.StatusOK, &snap)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := queue.ListFilter{State: job.State(q.Get("status"))}
	if tags := q["tags"]; len(tags) > 0 {
		f.AnyTag = tags
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		if limit > 100 {
			limit = 100
		}
		f.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = offset
	}
	res := s.q.List(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   res.Jobs,
		"total":  res.Total,
		"limit":  res.Limit,
		"offset": res.Offset,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, ok := s.q.Get(jobID); !ok {
		writeError(w, apierr.New(apierr.NotFound, "job not found: "+jobID))
		return
	}
	s.pool.Cancel(jobID)
	cancelled := s.q.Cancel(jobID)
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}

type clarificationRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleClarification(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, ok := s.q.Get(jobID); !ok {
		writeError(w, apierr.New(apierr.NotFound, "job not found: "+jobID))
		return
	}
	var req clarificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.Validation, "malformed request body", err))
		return
	}

	agentCtx, ok := s.clar.Lookup(jobID)
	if !ok {
		writeError(w, apierr.New(apierr.NotAwaiting, "job is not awaiting clarification"))
		return
	}

	if err := agentCtx.ProvideClarification(req.Text, clarificationTemplate); err != nil {
		if errors.Is(err, agentcontext.ErrNotAwaitingClarification) {
			writeError(w, apierr.New(apierr.NotAwaiting, "job is not awaiting clarification"))
			return
		}
		writeError(w, apierr.Wrap(apierr.PersistenceError, "failed to provide clarification", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

// clarificationTemplate formats the answer text as a user turn with the
// tool layer's tools.ClarificationTemplate.
func clarificationTemplate(text string) string { return tools.ClarificationTemplate(text) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apierr.Validation:
		status = http.StatusBadRequest
	case apierr.QueueFull:
		status = http.StatusServiceUnavailable
	case apierr.NotFound:
		status = http.StatusNotFound
	case apierr.NotAwaiting:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{"error": fmt.Sprintf("%v", err), "kind": string(kind)})
}
