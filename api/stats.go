package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trackpoint/store"
)

// defaultRangeDays is the span used when a report request names no start date.
const defaultRangeDays = 7

type overviewResponse struct {
	Today store.TodayStats `json:"today"`
	Daily []store.DailyStat `json:"daily"`
}

// OverviewHandler serves GET /api/stats/overview?startDate&endDate.
func (h *Handler) OverviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		start, end := h.dateRange(r.URL.Query())
		key := reportKey("overview", url.Values{
			"startDate": {start},
			"endDate":   {end},
			"today":     {h.now().UTC().Format(dayLayout)},
		})

		v, err := h.cache.get(key, func() (any, error) {
			today, err := h.reports.GetTodayStats(r.Context())
			if err != nil {
				return nil, err
			}
			daily, err := h.reports.GetOverviewStats(r.Context(), start, end)
			if err != nil {
				return nil, err
			}
			return overviewResponse{Today: today, Daily: daily}, nil
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// EventStatsHandler serves GET /api/stats/events?startDate&endDate.
func (h *Handler) EventStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		start, end := h.dateRange(r.URL.Query())
		key := reportKey("events", url.Values{"startDate": {start}, "endDate": {end}})

		v, err := h.cache.get(key, func() (any, error) {
			stats, err := h.reports.GetEventStats(r.Context(), start, end)
			if err != nil {
				return nil, err
			}
			return map[string]any{"stats": stats}, nil
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// FunnelHandler serves GET /api/stats/funnel?steps=a&steps=b&startDate&endDate.
// steps may also be given as one comma separated value.
func (h *Handler) FunnelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		q := r.URL.Query()
		steps := funnelSteps(q["steps"])
		if len(steps) == 0 {
			badRequest(w, "steps is required")
			return
		}
		start, end := h.dateRange(q)
		key := reportKey("funnel", url.Values{"steps": steps, "startDate": {start}, "endDate": {end}})

		v, err := h.cache.get(key, func() (any, error) {
			return h.reports.GetFunnelAnalysis(r.Context(), steps, start, end)
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// RetentionHandler serves GET /api/stats/retention?startDate&endDate&days.
func (h *Handler) RetentionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		q := r.URL.Query()
		days, err := intParam(q, "days", 0)
		if err != nil {
			badRequest(w, "days must be an integer")
			return
		}
		start, end := h.dateRange(q)
		key := reportKey("retention", url.Values{"startDate": {start}, "endDate": {end}, "days": {strconv.Itoa(days)}})

		v, err := h.cache.get(key, func() (any, error) {
			return h.reports.GetRetentionAnalysis(r.Context(), start, end, days)
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// dateRange returns the requested range, defaulting to the last seven days ending
// today (UTC). Malformed values are passed through for the store to reject.
func (h *Handler) dateRange(q url.Values) (start, end string) {
	start, end = q.Get("startDate"), q.Get("endDate")
	if end == "" {
		end = h.now().UTC().Format(dayLayout)
	}
	if start == "" {
		last, err := time.ParseInLocation(dayLayout, end, time.UTC)
		if err != nil {
			last = h.now().UTC()
		}
		start = last.AddDate(0, 0, -(defaultRangeDays - 1)).Format(dayLayout)
	}
	return start, end
}

func funnelSteps(raw []string) []string {
	var steps []string
	for _, v := range raw {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				steps = append(steps, s)
			}
		}
	}
	return steps
}
