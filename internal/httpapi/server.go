// Package httpapi exposes the supervisor over HTTP: job submission, job and
// audit record queries, health, and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autoninja/pkg/logx"
	"autoninja/pkg/metrics"
	"autoninja/pkg/persistence"
	"autoninja/pkg/pipeline"
	"autoninja/pkg/utils"
	"autoninja/pkg/version"
)

// Server wires the pipeline and store into HTTP handlers.
type Server struct {
	pipeline *pipeline.Pipeline
	store    *persistence.Store
	usage    *metrics.QueryService
	logger   *logx.Logger
}

// NewServer creates the HTTP server facade. usage may be nil when no
// Prometheus server is configured; the usage endpoints then report 503.
func NewServer(p *pipeline.Pipeline, store *persistence.Store, usage *metrics.QueryService) *Server {
	return &Server{
		pipeline: p,
		store:    store,
		usage:    usage,
		logger:   logx.NewLogger("httpapi"),
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Get("/jobs/{jobID}/records", s.handleGetJobRecords)
		r.Get("/usage/{stage}", s.handleStageUsage)
		r.Get("/throttle/{scope}", s.handleThrottleSaturation)
	})

	return r
}

type createJobRequest struct {
	Request string `json:"request_text"`
	// JobID optionally names the job; re-submitting an id restarts it.
	JobID string `json:"job_id"`
}

type createJobResponse struct {
	Job     *persistence.Job            `json:"job"`
	Verdict *pipeline.ValidationVerdict `json:"verdict,omitempty"`
	Outputs map[string]json.RawMessage  `json:"outputs,omitempty"`
	Error   string                      `json:"error,omitempty"`
}

// handleCreateJob runs a pipeline synchronously. Pipelines take minutes under
// the invocation throttle, so callers should set generous client timeouts.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Request == "" {
		s.writeError(w, http.StatusBadRequest, "request_text must not be empty")
		return
	}
	if req.JobID != "" && !utils.IsValidJobName(req.JobID) {
		s.writeError(w, http.StatusBadRequest, "job_id must look like job-{keyword}-{YYYYMMDD-HHMMSS}")
		return
	}

	started := time.Now()
	result, err := s.pipeline.Run(r.Context(), req.Request, req.JobID)
	if result == nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("job %s finished with status %s in %s",
		result.Job.ID, result.Job.Status, time.Since(started).Round(time.Second))

	resp := createJobResponse{
		Job:     result.Job,
		Verdict: result.Verdict,
		Outputs: rawOutputs(result.Outputs),
	}
	status := http.StatusCreated
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.store.GetJob(r.Context(), jobID)
	if errors.Is(err, persistence.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetJobRecords(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.store.GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	records, err := s.store.GetStageRecords(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":  jobID,
		"records": records,
	})
}

// handleStageUsage aggregates invocation and token counters for a stage from
// the configured Prometheus server.
func (s *Server) handleStageUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.writeError(w, http.StatusServiceUnavailable, "usage queries not configured (set metrics.prometheus_url)")
		return
	}
	usage, err := s.usage.GetStageUsage(r.Context(), chi.URLParam(r, "stage"))
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleThrottleSaturation(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.writeError(w, http.StatusServiceUnavailable, "usage queries not configured (set metrics.prometheus_url)")
		return
	}
	scope := chi.URLParam(r, "scope")
	saturation, err := s.usage.GetThrottleSaturation(r.Context(), scope)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"scope":                scope,
		"mean_wait_seconds_1h": saturation,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// rawOutputs re-types stage documents so they embed as JSON, not strings.
func rawOutputs(outputs map[string]string) map[string]json.RawMessage {
	if len(outputs) == 0 {
		return nil
	}
	raw := make(map[string]json.RawMessage, len(outputs))
	for stage, doc := range outputs {
		raw[stage] = json.RawMessage(doc)
	}
	return raw
}
