package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"trackpoint/models"
	"trackpoint/store"

	"github.com/rs/zerolog/log"
)

const dayLayout = "2006-01-02"

// Reports is the read side of the event store.
type Reports interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]models.Event, error)
	CountEvents(ctx context.Context, filter store.EventFilter) (int64, error)
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
	GetOverviewStats(ctx context.Context, startDate, endDate string) ([]store.DailyStat, error)
	GetTodayStats(ctx context.Context) (store.TodayStats, error)
	GetEventStats(ctx context.Context, startDate, endDate string) ([]store.EventStat, error)
	GetFunnelAnalysis(ctx context.Context, steps []string, startDate, endDate string) (*store.FunnelResult, error)
	GetRetentionAnalysis(ctx context.Context, startDate, endDate string, days int) (*store.RetentionResult, error)
}

type Handler struct {
	reports Reports
	cache   *reportCache
	now     func() time.Time
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler serves queries from reports. Analytical reports are cached for ttl;
// a ttl of 0 disables the cache.
func NewHandler(reports Reports, ttl time.Duration, opts ...Option) *Handler {
	h := &Handler{
		reports: reports,
		cache:   newReportCache(ttl),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Invalidate drops every cached report. It is registered as a store subscriber so
// that a cached report never outlives a write.
func (h *Handler) Invalidate(_ []models.Event) {
	h.cache.flush()
}

// Register mounts the query routes on mux. wrap guards every route except the
// health check.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("/api/events", wrap(h.EventsHandler()))
	mux.Handle("/api/events/recent", wrap(h.RecentEventsHandler()))
	mux.Handle("/api/stats/overview", wrap(h.OverviewHandler()))
	mux.Handle("/api/stats/events", wrap(h.EventStatsHandler()))
	mux.Handle("/api/stats/funnel", wrap(h.FunnelHandler()))
	mux.Handle("/api/stats/retention", wrap(h.RetentionHandler()))
	mux.Handle("/api/health", h.HealthHandler())
}

// HealthHandler serves GET /api/health.
func (h *Handler) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": h.now().UnixMilli(),
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return false
	}
	return true
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// fail answers a query error: 400 for a bad date range, 500 for anything else.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrInvalidQueryRange) {
		badRequest(w, err.Error())
		return
	}
	var se *store.StorageError
	if errors.As(err, &se) {
		log.Error().Err(se.Err).Str("op", se.Op).Str("path", r.URL.Path).Msg("api: storage failure")
	} else {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("api: query failed")
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("writeJSON: failed to encode response")
	}
}
