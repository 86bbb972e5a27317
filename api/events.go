package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"trackpoint/models"
	"trackpoint/store"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

type eventsResponse struct {
	Events []models.Event `json:"events"`
	Total  int64          `json:"total"`
}

// EventsHandler serves GET /api/events?startDate&endDate&eventName&eventType&appId&limit&offset.
func (h *Handler) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		filter, err := parseEventFilter(r.URL.Query())
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		events, err := h.reports.QueryEvents(r.Context(), filter)
		if err != nil {
			fail(w, r, err)
			return
		}
		total, err := h.reports.CountEvents(r.Context(), filter)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, eventsResponse{Events: events, Total: total})
	}
}

// RecentEventsHandler serves GET /api/events/recent?limit=.
func (h *Handler) RecentEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		limit, err := intParam(r.URL.Query(), "limit", 0)
		if err != nil || limit < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		if limit > maxEventsLimit {
			limit = maxEventsLimit
		}

		events, err := h.reports.GetRecentEvents(r.Context(), limit)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

func parseEventFilter(q url.Values) (store.EventFilter, error) {
	filter := store.EventFilter{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		EventName: q.Get("eventName"),
		EventType: models.EventType(q.Get("eventType")),
		AppID:     q.Get("appId"),
	}
	if filter.EventType != "" && !filter.EventType.Valid() {
		return filter, fmt.Errorf("unknown eventType %q", filter.EventType)
	}

	limit, err := intParam(q, "limit", defaultEventsLimit)
	if err != nil || limit <= 0 {
		return filter, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}
	offset, err := intParam(q, "offset", 0)
	if err != nil || offset < 0 {
		return filter, fmt.Errorf("offset must be a non-negative integer")
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
