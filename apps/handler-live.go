package apps

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const appsPathPrefix = "/api/apps/"

// LiveHandler serves GET /api/apps/<appID>/live with the per-minute counts of the
// last CounterWindowMinutes minutes, or from ?start-minutes-since-epoch= on.
func (m *Manager) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("LiveHandler: received request")

		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		appID, startMinutes, err := m.parseRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, exists := m.GetApp(appID); !exists {
			http.Error(w, "App not found", http.StatusNotFound)
			return
		}

		counts := m.LiveCounts(appID, startMinutes)
		log.Debug().
			Str("app", appID).
			Time("since", fromMinutesSinceEpoch(startMinutes)).
			Int("minutes", len(counts)).
			Msg("LiveHandler: counts served")

		w.Header().Set("Content-Type", "application/json")
		resp := struct {
			AppID   string        `json:"appId"`
			Minutes []MinuteCount `json:"minutes"`
		}{AppID: appID, Minutes: counts}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("LiveHandler: failed to encode response")
		}
	}
}

func (m *Manager) parseRequest(r *http.Request) (string, int64, error) {
	appID, err := extractAppID(r.URL.Path)
	if err != nil {
		return "", 0, fmt.Errorf("invalid app ID")
	}

	// Default: the whole window
	startMinutes := toMinutesSinceEpoch(m.nowUTC()) - (CounterWindowMinutes - 1)

	if startStr := r.URL.Query().Get("start-minutes-since-epoch"); startStr != "" {
		parsed, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return "", 0, fmt.Errorf("invalid start-minutes-since-epoch format")
		}
		startMinutes = parsed
	}

	return appID, startMinutes, nil
}

func (m *Manager) nowUTC() time.Time {
	if m.now == nil {
		return time.Now().UTC()
	}
	return m.now().UTC()
}

// extractAppID extracts the app ID from a URL path like /api/apps/<appID>/live.
func extractAppID(path string) (string, error) {
	if !strings.HasPrefix(path, appsPathPrefix) {
		return "", fmt.Errorf("invalid path")
	}

	rest := strings.TrimPrefix(path, appsPathPrefix)
	if rest == "" {
		return "", fmt.Errorf("missing app ID")
	}

	// Split on first / to get appID
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", fmt.Errorf("empty app ID")
	}
	if len(parts) != 2 || parts[1] != "live" {
		return "", fmt.Errorf("unknown resource")
	}

	return parts[0], nil
}
