package apps

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type appResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	APIKey         string    `json:"api_key"`
	AllowedOrigins []string  `json:"allowed_origins"`
	CreatedAt      time.Time `json:"created_at"`
}

func toResponse(app *App) appResponse {
	origins := app.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}
	return appResponse{
		ID:             app.ID,
		Name:           app.Name,
		APIKey:         app.APIKey,
		AllowedOrigins: origins,
		CreatedAt:      app.CreatedAt,
	}
}

// AppsHandler serves /api/apps: POST creates an app, GET lists them.
func (m *Manager) AppsHandler() http.HandlerFunc {
	add := m.AddAppHandler()
	list := m.ListAppsHandler()
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			add(w, r)
		case http.MethodGet:
			list(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (m *Manager) AddAppHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("AddAppHandler: received request")

		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Name           string   `json:"name"`
			AllowedOrigins []string `json:"allowed_origins"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if req.Name == "" {
			http.Error(w, "Name is required", http.StatusBadRequest)
			return
		}

		app, err := m.CreateApp(req.Name, req.AllowedOrigins...)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to create app: %v", err), http.StatusInternalServerError)
			return
		}
		log.Info().Str("app", app.ID).Str("name", app.Name).Msg("AddAppHandler: app created")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(toResponse(app)); err != nil {
			log.Error().Err(err).Msg("AddAppHandler: failed to encode response")
		}
	}
}

func (m *Manager) ListAppsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		apps := m.ListApps()
		resp := make([]appResponse, 0, len(apps))
		for _, app := range apps {
			resp = append(resp, toResponse(app))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"apps": resp}); err != nil {
			log.Error().Err(err).Msg("ListAppsHandler: failed to encode response")
		}
	}
}
