package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mangatl/mangatl/internal/api"
	"github.com/mangatl/mangatl/internal/config"
	"github.com/mangatl/mangatl/internal/coordinator"
	"github.com/mangatl/mangatl/internal/engines"
	"github.com/mangatl/mangatl/internal/imagecache"
	"github.com/mangatl/mangatl/internal/memcache"
	"github.com/mangatl/mangatl/internal/metrics"
	"github.com/mangatl/mangatl/internal/ocr"
	"github.com/mangatl/mangatl/internal/ratelimit"
	"github.com/mangatl/mangatl/internal/scheduler"
	"github.com/mangatl/mangatl/internal/source"
	"github.com/mangatl/mangatl/internal/store"
	"github.com/mangatl/mangatl/internal/tasks"
	"github.com/mangatl/mangatl/internal/translate"
	"github.com/mangatl/mangatl/internal/vault"
	"github.com/mangatl/mangatl/internal/version"
)

const (
	flushInterval   = 10 * time.Second
	sweepInterval   = 30 * time.Second
	historySweepGap = 1 * time.Hour
	historyMaxAge   = 24 * time.Hour
)

// Run is the main daemon orchestrator. It initialises every subsystem,
// starts the external-interface and dashboard servers, and blocks until a
// shutdown signal is received.
func Run(cfg *config.Config, foreground bool) error {
	// 1. Set up zerolog logger.
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	zerolog.SetGlobalLevel(logLevel)

	writers := []io.Writer{}

	logPath := filepath.Join(dataDir, "mangatl.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()
	writers = append(writers, logFile)

	if foreground {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
		writers = append(writers, consoleWriter)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "mangatl").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("mangatl starting")

	// 2. Check if already running.
	if IsRunning(dataDir) {
		return fmt.Errorf("mangatl is already running (PID file exists at %s)", filepath.Join(dataDir, pidFilename))
	}

	// 3. Open store.
	dbPath := filepath.Join(dataDir, "mangatl.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	log.Info().Str("db_path", dbPath).Msg("store opened")

	// 4. Create metrics collector.
	collector := metrics.NewCollector()

	// 5. Write PID file.
	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	// 6. Start config watcher.
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}

	var watcher *config.Watcher
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func(old, newCfg *config.Config) {
				log.Info().Msg("configuration reloaded")
				newLevel := parseLogLevel(newCfg.Server.LogLevel)
				zerolog.SetGlobalLevel(newLevel)
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	// 7. Background context for everything that should stop together at
	// shutdown: the pruner, the flusher, and the sweepers.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	prunerDone := make(chan struct{})
	go func() {
		defer close(prunerDone)
		runPruner(bgCtx, st, cfg.Cache.RetentionDays)
	}()

	// ---------------------------------------------------------------
	// 8. Wire up the translation pipeline.
	// ---------------------------------------------------------------

	// 8a. Vault and rate limiter.
	v := vault.New()

	engineLimits := make(map[string]ratelimit.Limits, len(cfg.RateLimit.EngineLimits))
	for id, lim := range cfg.RateLimit.EngineLimits {
		engineLimits[id] = ratelimit.Limits{Rate: lim.Rate, Burst: lim.Burst}
	}
	limiter := ratelimit.New(cfg.RateLimit.DefaultRate, cfg.RateLimit.DefaultBurst, engineLimits)

	// 8b. In-memory task queue, rehydrated from the durable store so a
	// restart doesn't lose pending work.
	taskStore := tasks.New(cfg.Queue.MaxConcurrentTasks, cfg.Queue.MaxQueueSize, 3, nil)
	if err := taskStore.LoadFromStore(st); err != nil {
		log.Warn().Err(err).Msg("failed to rehydrate task queue from durable store")
	}

	flushInt := time.Duration(cfg.Queue.PersistenceIntervalSeconds) * time.Second
	if flushInt <= 0 {
		flushInt = flushInterval
	}
	go taskStore.RunFlusher(bgCtx, st, flushInt)

	taskTimeout := time.Duration(cfg.Queue.TaskTimeoutSeconds) * time.Second
	go taskStore.RunTimeoutSweep(bgCtx, sweepInterval, taskTimeout)
	go taskStore.RunHistorySweep(bgCtx, historySweepGap, historyMaxAge)

	// 8c. Cache layers and coordinator.
	mem := memcache.New(cfg.Cache.MemoryMaxEntries)
	img, err := imagecache.Open(filepath.Join(dataDir, "images"))
	if err != nil {
		log.Warn().Err(err).Msg("failed to open persistent image cache; continuing in degraded mode")
	}
	coord := coordinator.New(mem, img, st)

	loader := source.NewFileLoader()

	// 8d. Build OCR/translate engines from the configured engine list,
	// resolving each engine's API key through the vault.
	var primaryOCR ocr.Provider
	var primaryTranslate, fallbackTranslate translate.Engine

	for id, ec := range cfg.Engines {
		if !ec.Enabled {
			continue
		}
		key, keyErr := v.Get(id)
		if keyErr != nil {
			log.Warn().Err(keyErr).Str("engine", id).Msg("no API key available; engine will be unavailable")
			continue
		}

		if primaryOCR == nil {
			primaryOCR = engines.NewOCREngineFromConfig(id, ec, key)
		}

		tr := engines.NewTranslateEngineFromConfig(id, ec, key)
		if id == cfg.Queue.DefaultEngine || primaryTranslate == nil {
			if primaryTranslate != nil {
				fallbackTranslate = primaryTranslate
			}
			primaryTranslate = tr
		} else if fallbackTranslate == nil {
			fallbackTranslate = tr
		}
	}

	cachedOCR := ocr.NewCachedProvider(primaryOCR, st)
	translateProvider := translate.New(primaryTranslate, fallbackTranslate, st)

	var harmon *translate.HarmonizationMap
	harmonPath := filepath.Join(dataDir, "harmonization_map.json")
	if _, statErr := os.Stat(harmonPath); statErr == nil {
		h, loadErr := translate.LoadHarmonizationMap(harmonPath)
		if loadErr != nil {
			log.Warn().Err(loadErr).Msg("failed to load harmonization map; continuing without it")
		} else {
			harmon = h
			defer harmon.Close()
		}
	}

	// 8e. Scheduler worker pool.
	sched := scheduler.New(scheduler.Config{
		Store:         taskStore,
		Loader:        loader,
		OCR:           cachedOCR,
		Translate:     translateProvider,
		Harmonization: harmon,
		Coordinator:   coord,
		Limiter:       limiter,
		Metrics:       collector,
		WorkerCount:   cfg.Queue.MaxConcurrentTasks,
	})

	schedErrCh := make(chan error, 1)
	go func() {
		if err := sched.Run(bgCtx); err != nil {
			schedErrCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	// ---------------------------------------------------------------
	// 9. Start the external-interface API server and the dashboard.
	// ---------------------------------------------------------------

	errCh := make(chan error, 3)

	apiAddr := fmt.Sprintf(":%d", cfg.Server.APIPort)
	apiServer := api.New(api.Config{
		Store:       taskStore,
		Coordinator: coord,
		Loader:      loader,
		Cfg:         cfg,
		Vault:       v,
		WorkerCount: cfg.Queue.MaxConcurrentTasks,
		Addr:        apiAddr,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	var dashServer *metrics.DashboardServer
	if cfg.Dashboard.Enabled {
		dashAddr := fmt.Sprintf(":%d", cfg.Server.DashboardPort)
		dashServer = metrics.NewDashboardServer(collector, st, cfg, dashAddr)

		go func() {
			if cfg.Server.TLSEnabled {
				if err := dashServer.StartTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil {
					errCh <- fmt.Errorf("dashboard server: %w", err)
				}
			} else {
				if err := dashServer.Start(); err != nil {
					errCh <- fmt.Errorf("dashboard server: %w", err)
				}
			}
		}()
	}

	scheme := "http"
	if cfg.Server.TLSEnabled {
		scheme = "https"
	}

	log.Info().
		Int("api_port", cfg.Server.APIPort).
		Int("dashboard_port", cfg.Server.DashboardPort).
		Bool("dashboard_enabled", cfg.Dashboard.Enabled).
		Msg("mangatl is ready")

	if foreground {
		fmt.Printf("\n  mangatl is running!\n")
		fmt.Printf("  API:       %s://localhost:%d\n", scheme, cfg.Server.APIPort)
		if cfg.Dashboard.Enabled {
			fmt.Printf("  Dashboard: %s://localhost:%d\n\n", scheme, cfg.Server.DashboardPort)
		} else {
			fmt.Println()
		}
	}

	// 10. Wait for shutdown signal or fatal error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	case err := <-schedErrCh:
		log.Error().Err(err).Msg("fatal scheduler error")
		return err
	}

	// 11. Graceful shutdown with 30-second timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down servers...")

	if dashServer != nil {
		if err := dashServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("dashboard server shutdown error")
		}
	}

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown error")
	}

	// 12. Clean up -- stop background loops and flush queue state one last
	// time before closing the store.
	bgCancel()
	<-prunerDone
	taskStore.FlushOnce(st)

	st.Close()
	if err := RemovePID(dataDir); err != nil {
		log.Error().Err(err).Msg("failed to remove PID file during shutdown")
	}

	log.Info().Msg("mangatl stopped")
	return nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("mangatl does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("mangatl is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to mangatl (PID %d)\n", pid)

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}

	return nil
}

// Status checks if the daemon is running and prints a summary.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("mangatl is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("mangatl is running (PID %d)\n", pid)

	dashURL := fmt.Sprintf("http://localhost:%d/api/stats", cfg.Server.DashboardPort)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(dashURL)
	if err != nil {
		fmt.Println("  (dashboard unreachable)")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	var stats metrics.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil
	}

	fmt.Printf("\n  Uptime:              %s\n", stats.Uptime)
	fmt.Printf("  Total Tasks:         %d\n", stats.TotalTasks)
	fmt.Printf("  Regions Recognized:  %d\n", stats.RegionsRecognized)
	fmt.Printf("  Chars Translated:    %d\n", stats.CharsTranslated)
	fmt.Printf("  Cache Hit Rate:      %.1f%% (%d hits / %d misses)\n", stats.CacheHitRate, stats.CacheHits, stats.CacheMisses)
	fmt.Printf("  Active Tasks:        %d\n", stats.ActiveTasks)

	return nil
}

// runPruner periodically prunes old data from the store.
func runPruner(ctx context.Context, st *store.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("data pruner: recovered from panic")
					}
				}()
				n, err := st.Prune(retentionDays)
				if err != nil {
					log.Error().Err(err).Msg("data pruning failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned old data")
				}
			}()
		}
	}
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
