package apps

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"trackpoint/models"

	"github.com/google/uuid"
)

// // PURPOSE: manage a list of apps
// used for
// - checking the api-key in tracking call
// - add/list apps in admin page
// - live per-minute counters of each app
// //
type Manager struct {
	path       string
	data       *Data
	counters   map[string]*LiveCounter // Per-app counters
	dataMu     sync.RWMutex            // Protects data
	countersMu sync.RWMutex            // Protects counters
	now        func() time.Time
}

type Data struct {
	Apps map[string]*App `json:"apps"`
}

type App struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	APIKey         string    `json:"api_key"`
	AllowedOrigins []string  `json:"allowed_origins,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AllowsOrigin reports whether a browser request from origin may track into the app.
// An app without allowed origins accepts every origin.
func (a *App) AllowsOrigin(origin string) bool {
	if len(a.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range a.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func NewManager(path string) (*Manager, error) {
	m := &Manager{
		path: path,
		data: &Data{
			Apps: make(map[string]*App),
		},
		counters: make(map[string]*LiveCounter),
		now:      time.Now,
	}

	// Try to load the metadata file
	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, create a new one
			if err := m.save(); err != nil {
				return nil, fmt.Errorf("create new apps metadata file: %w", err)
			}
		} else {
			return nil, fmt.Errorf("load apps metadata: %w", err)
		}
	}

	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &m.data); err != nil {
		return err
	}
	if m.data.Apps == nil {
		m.data.Apps = make(map[string]*App)
	}
	return nil
}

func (m *Manager) save() error {
	// NO need for lock because it is accessed under LOCK when app is added

	data, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal apps metadata: %w", err)
	}

	if dir := filepath.Dir(m.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create apps metadata directory: %w", err)
		}
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("write apps metadata: %w", err)
	}

	return nil
}

// AddEvents feeds stored events into the live counter of their app.
func (m *Manager) AddEvents(events []models.Event) {
	for i := range events {
		m.counter(events[i].AppID).Add(&events[i])
	}
}

func (m *Manager) counter(appID string) *LiveCounter {
	m.countersMu.RLock()
	c, exists := m.counters[appID]
	m.countersMu.RUnlock()
	if exists {
		return c
	}

	m.countersMu.Lock()
	defer m.countersMu.Unlock()
	// Initialize counter for app if not exists
	if c, exists = m.counters[appID]; !exists {
		c = NewLiveCounter(m.nowUTC)
		m.counters[appID] = c
	}
	return c
}

// LiveCounts returns the per-minute counts of appID from startMinutes on.
func (m *Manager) LiveCounts(appID string, startMinutes int64) []MinuteCount {
	return m.counter(appID).CountsSince(startMinutes)
}

// Close stops the advance routine of every live counter.
func (m *Manager) Close() {
	m.countersMu.Lock()
	defer m.countersMu.Unlock()
	for _, c := range m.counters {
		c.Stop()
	}
}

func (m *Manager) CreateApp(name string, allowedOrigins ...string) (*App, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()

	// Generate ID by hashing the name
	hash := sha256.Sum256([]byte(name))
	id := fmt.Sprintf("%x", hash)[:8] // Use first 8 characters of hex-encoded hash

	if _, exists := m.data.Apps[id]; exists {
		return nil, fmt.Errorf("app with name %s already exists (ID: %s)", name, id)
	}

	apiKey, err := GenerateUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("unable to create API key: %w", err)
	}

	app := &App{
		ID:             id,
		Name:           name,
		APIKey:         apiKey,
		AllowedOrigins: allowedOrigins,
		CreatedAt:      m.nowUTC(),
	}

	m.data.Apps[id] = app

	if err := m.save(); err != nil {
		delete(m.data.Apps, id) // Rollback on save failure
		return nil, fmt.Errorf("save app: %w", err)
	}

	return app, nil
}

func (m *Manager) GetApp(id string) (*App, bool) {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()

	app, exists := m.data.Apps[id]
	return app, exists
}

func (m *Manager) GetAppByAPIKey(apiKey string) (*App, error) {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()

	for _, app := range m.data.Apps {
		if app.APIKey == apiKey {
			return app, nil
		}
	}

	return nil, fmt.Errorf("invalid API key")
}

// ListApps returns the registered apps, oldest first.
func (m *Manager) ListApps() []*App {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()

	apps := make([]*App, 0, len(m.data.Apps))
	for _, app := range m.data.Apps {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].Name < apps[j].Name
		}
		return apps[i].CreatedAt.Before(apps[j].CreatedAt)
	})

	return apps
}

func GenerateUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
