// Package api implements the inbound External Interfaces layer: the
// request surface used by a viewer (start_service,
// stop_service, set_current_manga, request_translation, get_translated_page,
// check_cache_status, cancel_task, get_service_status), plus two
// administrative routes (invalidate_cache, cache_entries) for cache-management
// tooling. It is distinct from the read-only dashboard/metrics API in internal/metrics:
// every handler here causes a state transition or reads the authoritative
// cache/queue state, not a derived metrics snapshot.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mangatl/mangatl/internal/cachekey"
	"github.com/mangatl/mangatl/internal/config"
	"github.com/mangatl/mangatl/internal/coordinator"
	"github.com/mangatl/mangatl/internal/priority"
	"github.com/mangatl/mangatl/internal/source"
	"github.com/mangatl/mangatl/internal/tasks"
	"github.com/mangatl/mangatl/internal/tracing"
	"github.com/mangatl/mangatl/internal/value"
)

// EngineConfigurator stores the API key supplied for a translator_type
// before start_service reports success. The key is stored as given; it is
// not checked against the engine. Kept as an interface so tests can stub it without a real OS keychain.
type EngineConfigurator interface {
	Set(engineID, key string) error
}

// Server exposes the External Interfaces over HTTP, guarded by the same
// bearer-token scheme as the dashboard.
type Server struct {
	router      chi.Router
	store       *tasks.Store
	coord       *coordinator.Coordinator
	loader      source.Loader
	cfg         *config.Config
	engineVault EngineConfigurator
	workerCount int
	addr        string
	httpServer  *http.Server

	mu      sync.Mutex
	running bool
	engine  string
}

// Config bundles the collaborators a Server needs.
type Config struct {
	Store       *tasks.Store
	Coordinator *coordinator.Coordinator
	Loader      source.Loader
	Cfg         *config.Config
	Vault       EngineConfigurator
	WorkerCount int
	Addr        string
}

// New wires a Server over its collaborators. The service starts in the
// stopped state; request_translation is rejected until start_service runs.
func New(cfg Config) *Server {
	s := &Server{
		store:       cfg.Store,
		coord:       cfg.Coordinator,
		loader:      cfg.Loader,
		cfg:         cfg.Cfg,
		engineVault: cfg.Vault,
		workerCount: cfg.WorkerCount,
		addr:        cfg.Addr,
		engine:      cfg.Cfg.Queue.DefaultEngine,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(tracing.HTTPMiddleware)

	r.Group(func(api chi.Router) {
		api.Use(s.authMiddleware)
		api.Post("/v1/start_service", s.handleStartService)
		api.Post("/v1/stop_service", s.handleStopService)
		api.Post("/v1/set_current_manga", s.handleSetCurrentManga)
		api.Post("/v1/request_translation", s.handleRequestTranslation)
		api.Get("/v1/get_translated_page", s.handleGetTranslatedPage)
		api.Get("/v1/check_cache_status", s.handleCheckCacheStatus)
		api.Post("/v1/cancel_task", s.handleCancelTask)
		api.Get("/v1/get_service_status", s.handleGetServiceStatus)
		api.Post("/v1/admin/invalidate_cache", s.handleInvalidateCache)
		api.Get("/v1/admin/cache_entries", s.handleListCacheEntries)
	})

	s.router = r
	return s
}

// Start begins listening on the configured address. It blocks until the
// server is shut down or an error occurs.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeout) * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("api server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// --- request/response payloads ---

type startServiceRequest struct {
	TranslatorType string `json:"translator_type"`
	APIKey         string `json:"api_key,omitempty"`
	Model          string `json:"model,omitempty"`
}

type okMessage struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type setCurrentMangaRequest struct {
	MangaRef         string `json:"manga_ref"`
	CurrentPageIndex int    `json:"current_page_index"`
	Direction        string `json:"direction,omitempty"`
}

type requestTranslationRequest struct {
	MangaRef         string                 `json:"manga_ref"`
	PageIndices      []int                  `json:"page_indices"`
	PriorityHint     string                 `json:"priority_hint,omitempty"`
	Language         string                 `json:"language,omitempty"`
	EngineID         string                 `json:"engine_id,omitempty"`
	ForceRetranslate bool                   `json:"force_retranslate,omitempty"`
	Metadata         map[string]value.Value `json:"metadata,omitempty"`
}

type requestTranslationResponse struct {
	OK      bool     `json:"ok"`
	TaskIDs []string `json:"task_ids"`
}

type getTranslatedPageResponse struct {
	IsTranslated bool   `json:"is_translated"`
	ImageBytes   []byte `json:"image_bytes,omitempty"`
	SourceLayer  string `json:"source_layer"`
}

type checkCacheStatusResponse struct {
	HasCache    bool   `json:"has_cache"`
	SourceLayer string `json:"source_layer"`
}

type cancelTaskRequest struct {
	TaskID string `json:"task_id"`
}

type invalidateCacheRequest struct {
	MangaRef string `json:"manga_ref"`
}

type listCacheEntriesResponse struct {
	Entries []coordinator.CacheEntry `json:"entries"`
}

type getServiceStatusResponse struct {
	QueueLength     int                `json:"queue_length"`
	ProcessingCount int                `json:"processing_count"`
	WorkerCount     int                `json:"worker_count"`
	Running         bool               `json:"running"`
	Stats           coordinator.Stats  `json:"stats"`
}

// --- handlers ---

// handleStartService configures the active translation engine and, when an
// api_key is supplied, stores it in the vault before reporting readiness.
// A key that fails to store is reported as an error and the
// service stays in its previous state, not a silent fallback.
func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	var req startServiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TranslatorType == "" {
		writeJSON(w, http.StatusBadRequest, okMessage{OK: false, Message: "translator_type is required"})
		return
	}

	if req.APIKey != "" {
		if err := s.engineVault.Set(req.TranslatorType, req.APIKey); err != nil {
			writeJSON(w, http.StatusInternalServerError, okMessage{OK: false, Message: "failed to store engine key"})
			return
		}
	}

	s.mu.Lock()
	s.running = true
	s.engine = req.TranslatorType
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, okMessage{OK: true, Message: fmt.Sprintf("service started with engine %q", req.TranslatorType)})
}

// handleStopService flips the admission gate so request_translation starts
// rejecting new work; tasks already queued or running are left untouched —
// stop_service is a faucet, not a drain.
func (s *Server) handleStopService(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, okMessage{OK: true, Message: "service stopped"})
}

func (s *Server) handleSetCurrentManga(w http.ResponseWriter, r *http.Request) {
	var req setCurrentMangaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MangaRef == "" {
		writeJSON(w, http.StatusBadRequest, okMessage{OK: false, Message: "manga_ref is required"})
		return
	}

	dir := priority.LTR
	if strings.EqualFold(req.Direction, "rtl") {
		dir = priority.RTL
	}

	s.store.Reorder(req.MangaRef, req.CurrentPageIndex, dir)
	writeJSON(w, http.StatusOK, okMessage{OK: true})
}

func (s *Server) handleRequestTranslation(w http.ResponseWriter, r *http.Request) {
	var req requestTranslationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MangaRef == "" || len(req.PageIndices) == 0 {
		writeJSON(w, http.StatusBadRequest, okMessage{OK: false, Message: "manga_ref and page_indices are required"})
		return
	}

	s.mu.Lock()
	running := s.running
	defaultEngine := s.engine
	s.mu.Unlock()
	if !running {
		writeJSON(w, http.StatusServiceUnavailable, okMessage{OK: false, Message: "service is not started"})
		return
	}

	language := req.Language
	if language == "" {
		language = "en"
	}
	engineID := req.EngineID
	if engineID == "" {
		engineID = defaultEngine
	}

	priorityValue := priorityHintToClass(req.PriorityHint)

	taskIDs := make([]string, 0, len(req.PageIndices))
	for _, pageIndex := range req.PageIndices {
		id, ok := s.store.Enqueue(tasks.Task{
			MangaRef:         req.MangaRef,
			PageIndex:        pageIndex,
			Language:         language,
			EngineID:         engineID,
			Priority:         priorityValue,
			RequestTime:      time.Now().UTC(),
			MaxRetries:       3,
			ForceRetranslate: req.ForceRetranslate,
			Metadata:         req.Metadata,
		}, req.ForceRetranslate)
		if ok {
			taskIDs = append(taskIDs, id)
		}
	}

	writeJSON(w, http.StatusOK, requestTranslationResponse{OK: len(taskIDs) > 0, TaskIDs: taskIDs})
}

func (s *Server) handleGetTranslatedPage(w http.ResponseWriter, r *http.Request) {
	mangaRef, pageIndex, language, engineID, ok := parsePageParams(w, r, s.cfg.Queue.DefaultEngine)
	if !ok {
		return
	}

	fingerprint, err := s.currentFingerprint(mangaRef, pageIndex)
	if err != nil {
		writeJSON(w, http.StatusOK, getTranslatedPageResponse{IsTranslated: false, SourceLayer: string(coordinator.SourceMiss)})
		return
	}

	key := cachekey.Translation{MangaRef: mangaRef, PageIndex: pageIndex, Language: language, EngineID: engineID}.Normalize()
	hit := s.coord.Lookup(key, fingerprint)
	writeJSON(w, http.StatusOK, getTranslatedPageResponse{
		IsTranslated: hit.Found,
		ImageBytes:   hit.RenderedBytes,
		SourceLayer:  string(hit.Source),
	})
}

func (s *Server) handleCheckCacheStatus(w http.ResponseWriter, r *http.Request) {
	mangaRef, pageIndex, language, engineID, ok := parsePageParams(w, r, s.cfg.Queue.DefaultEngine)
	if !ok {
		return
	}

	fingerprint, err := s.currentFingerprint(mangaRef, pageIndex)
	if err != nil {
		writeJSON(w, http.StatusOK, checkCacheStatusResponse{HasCache: false, SourceLayer: string(coordinator.SourceMiss)})
		return
	}

	key := cachekey.Translation{MangaRef: mangaRef, PageIndex: pageIndex, Language: language, EngineID: engineID}.Normalize()
	hit := s.coord.Lookup(key, fingerprint)
	writeJSON(w, http.StatusOK, checkCacheStatusResponse{HasCache: hit.Found, SourceLayer: string(hit.Source)})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	var req cancelTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TaskID == "" {
		writeJSON(w, http.StatusBadRequest, okMessage{OK: false, Message: "task_id is required"})
		return
	}
	ok := s.store.Cancel(req.TaskID)
	writeJSON(w, http.StatusOK, okMessage{OK: ok})
}

// handleInvalidateCache scrubs every cache layer for a MangaRef, for use
// once a source image is known to have changed on disk (re-imported chapter,
// corrected scan). Not part of the viewer-facing eight External Interfaces;
// an administrative path alongside the cache-management listings.
func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateCacheRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MangaRef == "" {
		writeJSON(w, http.StatusBadRequest, okMessage{OK: false, Message: "manga_ref is required"})
		return
	}
	s.coord.Invalidate(req.MangaRef)
	writeJSON(w, http.StatusOK, okMessage{OK: true})
}

// handleListCacheEntries returns every entry across C2/C3/C4, for the
// cache-management admin listing (spec.md §4.1's "administrative listings"
// mention, supplement #4).
func (s *Server) handleListCacheEntries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listCacheEntriesResponse{Entries: s.coord.ListEntries()})
}

func (s *Server) handleGetServiceStatus(w http.ResponseWriter, _ *http.Request) {
	queueLength, processingCount := s.store.Counts()
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, getServiceStatusResponse{
		QueueLength:     queueLength,
		ProcessingCount: processingCount,
		WorkerCount:     s.workerCount,
		Running:         running,
		Stats:           s.coord.StatsSnapshot(),
	})
}

// --- helpers ---

// currentFingerprint loads the source page and fingerprints it so cache
// reads are bound to the image as it exists right now: a stale fingerprint
// must never be served as a hit.
func (s *Server) currentFingerprint(mangaRef string, pageIndex int) (string, error) {
	raw, err := s.loader.Load(mangaRef, pageIndex)
	if err != nil {
		return "", err
	}
	fp, err := cachekey.ContentFingerprint(raw)
	if err != nil {
		return "", err
	}
	return fp.String(), nil
}

func priorityHintToClass(hint string) int {
	switch strings.ToUpper(hint) {
	case "P0_CURRENT", "CURRENT":
		return int(priority.P0Current)
	case "P1_ADJACENT", "ADJACENT":
		return int(priority.P1Adjacent)
	case "P2_SAME_WORK", "SAME_WORK":
		return int(priority.P2SameWork)
	default:
		return int(priority.P3Other)
	}
}

func parsePageParams(w http.ResponseWriter, r *http.Request, defaultEngine string) (mangaRef string, pageIndex int, language, engineID string, ok bool) {
	q := r.URL.Query()
	mangaRef = q.Get("manga_ref")
	if mangaRef == "" {
		writeJSON(w, http.StatusBadRequest, okMessage{OK: false, Message: "manga_ref is required"})
		return "", 0, "", "", false
	}
	pageIndex = 0
	fmt.Sscanf(q.Get("page_index"), "%d", &pageIndex)
	language = q.Get("language")
	if language == "" {
		language = "en"
	}
	engineID = q.Get("engine_id")
	if engineID == "" {
		engineID = defaultEngine
	}
	return mangaRef, pageIndex, language, engineID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, okMessage{OK: false, Message: "failed to read body"})
		return false
	}
	defer r.Body.Close()
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, okMessage{OK: false, Message: "invalid JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("api: failed to write JSON response")
	}
}

// authMiddleware enforces bearer-token auth on every route when enabled,
// mirroring the dashboard server's scheme so both surfaces share one token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header || token != s.cfg.Auth.Token {
			writeJSON(w, http.StatusForbidden, okMessage{OK: false, Message: "invalid token"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
