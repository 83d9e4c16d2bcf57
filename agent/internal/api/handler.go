package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/obsidianstack/scraper/agent/internal/scheduler"
)

// Jobs is the scheduler view the API reads. *scheduler.Scheduler implements it.
type Jobs interface {
	Entries() []scheduler.Status
	Entry(name string) (scheduler.Status, bool)
	Trigger(ctx context.Context, name string) (scheduler.Result, error)
}

// Sources are the components the API reports on. Clients, Sinks and Series
// are optional.
type Sources struct {
	Jobs    Jobs
	Clients interface{ Len() int }
	Sinks   interface{ Sinks() []string }
	Series  interface{ Count() int }
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	src Sources
	mux *http.ServeMux
}

// New creates a Handler over src and registers all routes.
func New(src Sources) http.Handler {
	h := &Handler{src: src, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/jobs", h.listJobs)
	h.mux.HandleFunc("/api/v1/jobs/", h.job) // subtree, extracts {name}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.src.Jobs.Entries()
	resp := HealthResponse{
		Jobs:  len(entries),
		Sinks: []string{},
	}
	for _, e := range entries {
		if !e.Healthy() {
			resp.FailingJobs++
		}
	}
	if h.src.Clients != nil {
		resp.Clients = h.src.Clients.Len()
	}
	if h.src.Sinks != nil {
		resp.Sinks = h.src.Sinks.Sinks()
	}
	if h.src.Series != nil {
		resp.Series = h.src.Series.Count()
	}

	switch {
	case resp.Jobs == 0:
		resp.Status = "unknown"
	case resp.FailingJobs > 0:
		resp.Status = "degraded"
	default:
		resp.Status = "ok"
	}
	jsonResp(w, http.StatusOK, resp)
}

// listJobs returns GET /api/v1/jobs.
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.src.Jobs.Entries())
}

// job serves GET /api/v1/jobs/{name} and POST /api/v1/jobs/{name}/run.
func (h *Handler) job(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	if rest == "" {
		h.listJobs(w, r)
		return
	}

	if name, ok := strings.CutSuffix(rest, "/run"); ok {
		h.runJob(w, r, name)
		return
	}

	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st, ok := h.src.Jobs.Entry(rest)
	if !ok {
		jsonErr(w, http.StatusNotFound, "job not found")
		return
	}
	jsonResp(w, http.StatusOK, st)
}

func (h *Handler) runJob(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := h.src.Jobs.Entry(name); !ok {
		jsonErr(w, http.StatusNotFound, "job not found")
		return
	}

	res, err := h.src.Jobs.Trigger(r.Context(), name)
	if errors.Is(err, scheduler.ErrStopped) {
		jsonErr(w, http.StatusServiceUnavailable, "scheduler stopped")
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := RunResponse{
		Job:             res.Job,
		RunID:           res.RunID,
		Started:         res.Started.UTC().Format(time.RFC3339),
		DurationSeconds: res.Duration.Seconds(),
		OK:              res.OK(),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
