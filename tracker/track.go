package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"trackpoint/apps"
	"trackpoint/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// MaxTimestampDrift is the maximum difference between an event timestamp and server
	// time before the event is logged as coming from a skewed client clock
	MaxTimestampDrift = 5 * time.Minute

	maxBodyBytes = 4 << 20
)

// EventStore is the write side of the event store.
type EventStore interface {
	Insert(ctx context.Context, event models.Event) error
	InsertBatch(ctx context.Context, events []models.Event) error
}

// AppDirectory resolves the app an API key belongs to.
type AppDirectory interface {
	GetAppByAPIKey(apiKey string) (*apps.App, error)
}

type EventTracker struct {
	store         EventStore
	appDir        AppDirectory
	requireAPIKey bool
	now           func() time.Time
}

type Option func(*EventTracker)

// RequireAPIKey rejects deliveries without a known X-API-Key header.
func RequireAPIKey(required bool) Option {
	return func(h *EventTracker) { h.requireAPIKey = required }
}

func WithClock(now func() time.Time) Option {
	return func(h *EventTracker) { h.now = now }
}

func NewEventTracker(store EventStore, appDir AppDirectory, opts ...Option) *EventTracker {
	h := &EventTracker{
		store:  store,
		appDir: appDir,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type trackResponse struct {
	Success  bool     `json:"success"`
	EventIDs []string `json:"eventIds,omitempty"`
	Message  string   `json:"message,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// PostHandler serves POST /track with a single event.
func (h *EventTracker) PostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Str("client", clientIP).Msg("PostHandler: request")

		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, trackResponse{Message: "Method not allowed"})
			return
		}

		app, status := h.authorize(r, clientIP)
		if status != 0 {
			writeJSON(w, status, trackResponse{Message: http.StatusText(status)})
			return
		}

		var event models.Event
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&event); err != nil {
			log.Warn().Err(err).Str("client", clientIP).Msg("PostHandler: failed to decode event")
			writeJSON(w, http.StatusBadRequest, trackResponse{Message: "Invalid event format"})
			return
		}

		serverNow := h.now()
		h.enrichEvent(&event, app, serverNow)
		if err := models.Validate(&event); err != nil {
			log.Warn().Err(err).Str("client", clientIP).Str("event", event.EventID).Msg("PostHandler: invalid event")
			writeJSON(w, http.StatusBadRequest, trackResponse{Message: "Invalid event format", Errors: []string{err.Error()}})
			return
		}

		if err := h.store.Insert(r.Context(), event); err != nil {
			log.Error().Err(err).Str("app", event.AppID).Str("event", event.EventID).Msg("PostHandler: failed to save event")
			writeJSON(w, http.StatusInternalServerError, trackResponse{Message: "Failed to save event"})
			return
		}

		log.Debug().
			Str("app", event.AppID).
			Str("event", event.EventID).
			Str("type", string(event.EventType)).
			Str("name", event.EventName).
			Str("device", event.DeviceID).
			Msg("PostHandler: event stored")
		writeJSON(w, http.StatusOK, trackResponse{Success: true, EventIDs: []string{event.EventID}})
	}
}

// BatchHandler serves POST /track/batch with a {events, sentAt} payload. The batch is
// stored atomically or not at all.
func (h *EventTracker) BatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Str("client", clientIP).Msg("BatchHandler: request")

		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, trackResponse{Message: "Method not allowed"})
			return
		}

		app, status := h.authorize(r, clientIP)
		if status != 0 {
			writeJSON(w, status, trackResponse{Message: http.StatusText(status)})
			return
		}

		var payload models.BatchPayload
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
			log.Warn().Err(err).Str("client", clientIP).Msg("BatchHandler: failed to decode payload")
			writeJSON(w, http.StatusBadRequest, trackResponse{Message: "Invalid batch payload"})
			return
		}

		serverNow := h.now()
		var problems []string
		if payload.SentAt <= 0 {
			problems = append(problems, "sentAt: must be positive")
		}
		ids := make([]string, 0, len(payload.Events))
		for i := range payload.Events {
			h.enrichEvent(&payload.Events[i], app, serverNow)
			if err := models.Validate(&payload.Events[i]); err != nil {
				problems = append(problems, fmt.Sprintf("events[%d]: %v", i, err))
			}
			ids = append(ids, payload.Events[i].EventID)
		}
		if len(problems) > 0 {
			log.Warn().Strs("errors", problems).Str("client", clientIP).Msg("BatchHandler: invalid batch")
			writeJSON(w, http.StatusBadRequest, trackResponse{Message: "Invalid batch payload", Errors: problems})
			return
		}

		if err := h.store.InsertBatch(r.Context(), payload.Events); err != nil {
			log.Error().Err(err).Int("events", len(payload.Events)).Msg("BatchHandler: failed to save events")
			writeJSON(w, http.StatusInternalServerError, trackResponse{Message: "Failed to save events"})
			return
		}

		log.Debug().Int("events", len(ids)).Str("client", clientIP).Msg("BatchHandler: batch stored")
		writeJSON(w, http.StatusOK, trackResponse{Success: true, EventIDs: ids})
	}
}

// authorize resolves the app of the X-API-Key header. It returns a non-zero HTTP
// status when the request must be rejected.
func (h *EventTracker) authorize(r *http.Request, clientIP string) (*apps.App, int) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		if h.requireAPIKey {
			log.Warn().Str("client", clientIP).Msg("authorize: missing API key")
			return nil, http.StatusUnauthorized
		}
		return nil, 0
	}
	if h.appDir == nil {
		return nil, 0
	}

	app, err := h.appDir.GetAppByAPIKey(apiKey)
	if err != nil {
		log.Warn().Str("client", clientIP).Msg("authorize: invalid API key")
		return nil, http.StatusUnauthorized
	}
	if origin := r.Header.Get("Origin"); !app.AllowsOrigin(origin) {
		log.Warn().Str("app", app.ID).Str("origin", origin).Str("client", clientIP).Msg("authorize: origin not allowed")
		return nil, http.StatusForbidden
	}
	return app, 0
}

// enrichEvent fills in what the server owns: the app bound to the API key, a missing
// event id and the receive time.
func (h *EventTracker) enrichEvent(event *models.Event, app *apps.App, serverNow time.Time) {
	if app != nil {
		event.AppID = app.ID
	}

	// Generate event ID if missing
	if event.EventID == "" {
		event.EventID = uuid.Must(uuid.NewV7()).String()
	}

	event.ServerTime = serverNow.UnixMilli()

	if event.Timestamp > 0 {
		drift := time.UnixMilli(event.Timestamp).Sub(serverNow)
		if drift > MaxTimestampDrift || drift < -MaxTimestampDrift {
			log.Debug().
				Dur("drift", drift).
				Str("event", event.EventID).
				Str("device", event.DeviceID).
				Msg("enrichEvent: client clock drift")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("writeJSON: failed to encode response")
	}
}

func extractClientIP(r *http.Request) string {
	// Check X-Forwarded-For
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
