package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hearthfin/hearth/internal/config"
	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
)

const accountHolderHeader = "X-Account-Holder"

// backpressureWait is how long a request may wait for a concurrency slot
// before it is rejected.
const backpressureWait = 100 * time.Millisecond

type Router struct {
	cfg    config.Config
	intake ports.StatementIntake
	jobs   ports.JobReader
	admin  ports.JobAdmin
	query  ports.FinanceAnswerer

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

func NewRouter(
	cfg config.Config,
	intake ports.StatementIntake,
	jobs ports.JobReader,
	admin ports.JobAdmin,
	query ports.FinanceAnswerer,
) *Router {
	return &Router{
		cfg:    cfg,
		intake: intake,
		jobs:   jobs,
		admin:  admin,
		query:  query,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/statements", rt.uploadStatement)
	mux.HandleFunc("/v1/jobs", rt.listJobs)
	mux.HandleFunc("/v1/jobs/", rt.jobSubtree)
	mux.HandleFunc("/v1/query", rt.askQuestion)
	if rt.Metrics != nil {
		mux.Handle("/metrics", rt.Metrics)
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadStatement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read uploaded file"})
		return
	}

	job, err := rt.intake.Upload(r.Context(), rt.accountHolder(r), fileHeader.Filename, content)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) listJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	jobs, err := rt.jobs.History(r.Context(), rt.accountHolder(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []domain.ImportJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (rt *Router) jobSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		rt.getJob(w, r, id)
	case "progress":
		rt.streamProgress(w, r, id)
	case "retry-categorize":
		rt.retryCategorize(w, r, id)
	case "force-complete":
		rt.forceComplete(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job action"})
	}
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	job, err := rt.jobs.GetJob(r.Context(), rt.accountHolder(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// streamProgress writes one SSE event per progress snapshot. The snapshot
// channel closes after the terminal one, which ends the stream.
func (rt *Router) streamProgress(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	// Foreign jobs must read as absent before any stream is opened.
	if _, err := rt.jobs.GetJob(r.Context(), rt.accountHolder(r), id); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported by response writer"})
		return
	}

	updates, err := rt.jobs.Watch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for snap := range updates {
		payload, err := json.Marshal(snap)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (rt *Router) retryCategorize(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	job, err := rt.admin.RetryCategorize(r.Context(), rt.accountHolder(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) forceComplete(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	target := domain.JobStatus(req.Status)
	if target == "" {
		target = domain.StatusCompleted
	}

	job, err := rt.admin.ForceComplete(r.Context(), id, target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) askQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	answer, err := rt.query.Ask(r.Context(), rt.accountHolder(r), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (rt *Router) accountHolder(r *http.Request) string {
	owner := strings.TrimSpace(r.Header.Get(accountHolderHeader))
	if owner == "" {
		owner = rt.cfg.DefaultAccountHolder
	}
	return owner
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
