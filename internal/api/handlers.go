package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/scene-chipper/internal/audit"
	"github.com/robert-malhotra/scene-chipper/internal/config"
	"github.com/robert-malhotra/scene-chipper/internal/store"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// RunSource reads recorded acquisition runs.
type RunSource interface {
	ListRuns(ctx context.Context, limit int) ([]audit.Run, error)
	GetRun(ctx context.Context, runID string) (*audit.Run, error)
	Failures(ctx context.Context, runID string) ([]audit.SampleOutcome, error)
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	collections *config.CollectionRegistry
	runs        RunSource
	store       store.Store
	metrics     http.Handler
	logger      *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(collections *config.CollectionRegistry, logger *slog.Logger) *Handlers {
	return &Handlers{
		collections: collections,
		logger:      logger,
	}
}

// WithRuns enables the run history endpoints.
func (h *Handlers) WithRuns(runs RunSource) *Handlers {
	h.runs = runs
	return h
}

// WithStore enables serving persisted chips.
func (h *Handlers) WithStore(s store.Store) *Handlers {
	h.store = s
	return h
}

// WithMetrics enables the metrics endpoint.
func (h *Handlers) WithMetrics(m http.Handler) *Handlers {
	h.metrics = m
	return h
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":      "ok",
		"collections": h.collections.Count(),
		"run_history": h.runs != nil,
	}
	WriteJSON(w, http.StatusOK, response)
}

// Collections lists the configured collections.
// GET /collections
func (h *Handlers) Collections(w http.ResponseWriter, r *http.Request) {
	ids := h.collections.IDs()
	out := make([]*config.CollectionConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.collections.Get(id))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"collections": out})
}

// Collection returns one collection definition.
// GET /collections/{collectionId}
func (h *Handlers) Collection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "collectionId")
	c := h.collections.Get(id)
	if c == nil {
		WriteNotFound(w, "collection not found: "+id)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

// Runs lists recorded runs, newest first.
// GET /runs?limit=N
func (h *Handlers) Runs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteInvalidParameter(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.internalError(w, r, "failed to list runs", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// Run returns one run with every sample outcome.
// GET /runs/{runId}
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	run, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, audit.ErrRunNotFound) {
		WriteNotFound(w, "run not found: "+runID)
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to load run", err)
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// RunFailures returns the failed samples of one run.
// GET /runs/{runId}/failures
func (h *Handlers) RunFailures(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	failures, err := h.runs.Failures(r.Context(), runID)
	if errors.Is(err, audit.ErrRunNotFound) {
		WriteNotFound(w, "run not found: "+runID)
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to load failures", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"run_id": runID, "failures": failures, "count": len(failures)})
}

// Chip serves the persisted raster of one sample as PNG.
// GET /chips/{sampleId}
func (h *Handlers) Chip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sampleId")
	exists, err := h.store.Exists(id)
	if errors.Is(err, store.ErrInvalidID) {
		WriteInvalidParameter(w, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to look up chip", err)
		return
	}
	if !exists {
		WriteNotFound(w, "no chip for sample: "+id)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, h.store.Path(id))
}

// Metrics exposes Prometheus metrics.
// GET /metrics
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	reqID := GetRequestID(r.Context())
	h.logger.ErrorContext(r.Context(), msg,
		slog.String("request_id", reqID),
		slog.String("error", err.Error()),
	)
	WriteInternalErrorWithRequestID(w, msg, reqID)
}
