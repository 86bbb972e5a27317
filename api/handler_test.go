package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"trackpoint/models"
	"trackpoint/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func ms(day string, hour int) int64 {
	d, err := time.ParseInLocation(dayLayout, day, time.UTC)
	if err != nil {
		panic(err)
	}
	return d.Add(time.Duration(hour) * time.Hour).UnixMilli()
}

func event(name string, typ models.EventType, device string, ts int64) models.Event {
	return models.Event{
		EventID:    uuid.NewString(),
		EventName:  name,
		EventType:  typ,
		Timestamp:  ts,
		DeviceID:   device,
		SessionID:  "s-" + device,
		Platform:   models.PlatformWeb,
		AppID:      "app-1",
		AppVersion: "1.0.0",
		SDKVersion: "0.1.0",
		Properties: models.Properties{},
	}
}

// newTestAPI returns a handler over a real store seeded with two devices: d1 views a
// page and signs up on 2024-01-09, d2 views a page on 2024-01-10.
func newTestAPI(t *testing.T, ttl time.Duration) (*Handler, *store.Store, *http.ServeMux) {
	t.Helper()
	db, err := store.Open("file:" + filepath.Join(t.TempDir(), "track.db"))
	require.NoError(t, err)
	s, err := store.New(db, store.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.InsertBatch(context.Background(), []models.Event{
		event("page_view", models.EventTypePageView, "d1", ms("2024-01-09", 10)),
		event("signup", models.EventTypeClick, "d1", ms("2024-01-09", 11)),
		event("page_view", models.EventTypePageView, "d2", ms("2024-01-10", 9)),
	}))

	h := NewHandler(s, ttl, WithClock(func() time.Time { return testNow }))
	s.Subscribe(h.Invalidate)
	mux := http.NewServeMux()
	h.Register(mux, func(next http.Handler) http.Handler { return next })
	return h, s, mux
}

func get(t *testing.T, mux http.Handler, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestEventsHandler(t *testing.T) {
	_, _, mux := newTestAPI(t, 0)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantLen    int
		wantTotal  int64
	}{
		{"default", "/api/events", http.StatusOK, 3, 3},
		{"paged", "/api/events?limit=2&offset=0", http.StatusOK, 2, 3},
		{"second page", "/api/events?limit=2&offset=2", http.StatusOK, 1, 3},
		{"by type", "/api/events?eventType=click", http.StatusOK, 1, 1},
		{"by name and day", "/api/events?eventName=page_view&startDate=2024-01-10&endDate=2024-01-10", http.StatusOK, 1, 1},
		{"unknown type", "/api/events?eventType=scroll", http.StatusBadRequest, 0, 0},
		{"bad limit", "/api/events?limit=abc", http.StatusBadRequest, 0, 0},
		{"zero limit", "/api/events?limit=0", http.StatusBadRequest, 0, 0},
		{"negative offset", "/api/events?offset=-1", http.StatusBadRequest, 0, 0},
		{"bad date", "/api/events?startDate=10-01-2024", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp eventsResponse
			require.Equal(t, tt.wantStatus, get(t, mux, tt.target, &resp))
			if tt.wantStatus == http.StatusOK {
				require.Len(t, resp.Events, tt.wantLen)
				require.Equal(t, tt.wantTotal, resp.Total)
			}
		})
	}
}

func TestRecentEventsHandler(t *testing.T) {
	_, _, mux := newTestAPI(t, 0)

	var resp struct {
		Events []models.Event `json:"events"`
	}
	require.Equal(t, http.StatusOK, get(t, mux, "/api/events/recent?limit=1", &resp))
	require.Len(t, resp.Events, 1)
	require.Equal(t, "d2", resp.Events[0].DeviceID)

	require.Equal(t, http.StatusBadRequest, get(t, mux, "/api/events/recent?limit=-3", nil))
}

func TestOverviewHandler(t *testing.T) {
	_, _, mux := newTestAPI(t, 0)

	var resp overviewResponse
	require.Equal(t, http.StatusOK, get(t, mux, "/api/stats/overview", &resp))
	require.Equal(t, store.TodayStats{PV: 1, UV: 1, EventCount: 1}, resp.Today)
	require.Len(t, resp.Daily, defaultRangeDays)
	require.Equal(t, "2024-01-04", resp.Daily[0].Date)
	require.Equal(t, store.DailyStat{Date: "2024-01-09", PV: 1, UV: 1, EventCount: 2}, resp.Daily[5])
	require.Equal(t, store.DailyStat{Date: "2024-01-10", PV: 1, UV: 1, EventCount: 1}, resp.Daily[6])

	require.Equal(t, http.StatusOK, get(t, mux, "/api/stats/overview?startDate=2024-01-10&endDate=2024-01-09", &resp))
	require.Empty(t, resp.Daily)

	require.Equal(t, http.StatusBadRequest, get(t, mux, "/api/stats/overview?startDate=2024-13-01", nil))
}

func TestEventStatsHandler(t *testing.T) {
	_, _, mux := newTestAPI(t, 0)

	var resp struct {
		Stats []store.EventStat `json:"stats"`
	}
	require.Equal(t, http.StatusOK, get(t, mux, "/api/stats/events", &resp))
	require.Equal(t, []store.EventStat{
		{EventName: "page_view", EventType: models.EventTypePageView, Count: 2},
		{EventName: "signup", EventType: models.EventTypeClick, Count: 1},
	}, resp.Stats)
}

func TestFunnelHandler(t *testing.T) {
	_, _, mux := newTestAPI(t, 0)

	for _, target := range []string{
		"/api/stats/funnel?steps=page_view&steps=signup&startDate=2024-01-09&endDate=2024-01-10",
		"/api/stats/funnel?steps=page_view,signup",
	} {
		var resp store.FunnelResult
		require.Equal(t, http.StatusOK, get(t, mux, target, &resp), target)
		require.Len(t, resp.Steps, 2)
		require.Equal(t, 2, resp.Steps[0].Users)
		require.Equal(t, 1, resp.Steps[1].Users)
		require.Equal(t, 50.0, resp.Steps[1].ConversionRate)
		require.Equal(t, 50.0, resp.OverallConversion)
	}

	require.Equal(t, http.StatusBadRequest, get(t, mux, "/api/stats/funnel", nil))
	require.Equal(t, http.StatusBadRequest, get(t, mux, "/api/stats/funnel?steps=a&startDate=nope", nil))
}

func TestRetentionHandler(t *testing.T) {
	_, _, mux := newTestAPI(t, 0)

	var resp store.RetentionResult
	require.Equal(t, http.StatusOK, get(t, mux, "/api/stats/retention?startDate=2024-01-09&endDate=2024-01-10&days=2", &resp))
	require.Equal(t, 2, resp.Days)
	require.Len(t, resp.Cohorts, 2)
	require.Equal(t, "2024-01-09", resp.Cohorts[0].CohortDate)
	require.Equal(t, 1, resp.Cohorts[0].CohortSize)

	require.Equal(t, http.StatusBadRequest, get(t, mux, "/api/stats/retention?days=abc", nil))
}

func TestReportCacheIsFlushedOnWrite(t *testing.T) {
	h, s, mux := newTestAPI(t, time.Minute)

	var before overviewResponse
	require.Equal(t, http.StatusOK, get(t, mux, "/api/stats/overview", &before))
	require.Equal(t, 1, h.cache.len())

	var cached overviewResponse
	require.Equal(t, http.StatusOK, get(t, mux, "/api/stats/overview", &cached))
	require.Equal(t, before, cached)

	require.NoError(t, s.Insert(context.Background(), event("page_view", models.EventTypePageView, "d3", ms("2024-01-10", 11))))
	require.Zero(t, h.cache.len())

	var after overviewResponse
	require.Equal(t, http.StatusOK, get(t, mux, "/api/stats/overview", &after))
	require.Equal(t, int64(2), after.Today.PV)
	require.Equal(t, int64(2), after.Today.UV)
}

func TestRegisterGuardsAllButHealth(t *testing.T) {
	h, _, _ := newTestAPI(t, 0)
	mux := http.NewServeMux()
	h.Register(mux, func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	})

	var health map[string]any
	require.Equal(t, http.StatusOK, get(t, mux, "/api/health", &health))
	require.Equal(t, "ok", health["status"])
	require.Equal(t, float64(testNow.UnixMilli()), health["timestamp"])

	for _, target := range []string{"/api/events", "/api/events/recent", "/api/stats/overview", "/api/stats/funnel?steps=a"} {
		require.Equal(t, http.StatusUnauthorized, get(t, mux, target, nil), target)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, _, mux := newTestAPI(t, 0)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats/overview", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
