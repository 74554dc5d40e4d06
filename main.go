package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/handlers"
	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
	"media-catalog/internal/media"
	"media-catalog/internal/memory"
	"media-catalog/internal/metrics"
	"media-catalog/internal/middleware"
	"media-catalog/internal/startup"
	"media-catalog/internal/watcher"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	memory.ConfigureFromEnv()
	memMonitor := memory.NewMonitor(memory.DefaultConfig())
	memMonitor.Start()

	if err := media.InitVips(); err != nil {
		logging.Warn("libvips unavailable: %v", err)
	}
	startup.LogGeneratorInit(media.IsVipsAvailable())

	gen, err := media.NewGenerator(media.Config{
		ThumbnailDir: config.ThumbnailDir,
		ConvertedDir: config.ConvertedDir,
		Width:        config.ThumbnailWidth,
		Height:       config.ThumbnailHeight,
	})
	if err != nil {
		logging.Fatal("Failed to initialize generator: %v", err)
	}

	db, err := database.New(context.Background(), config.DatabasePath, database.Options{
		MediaRoot:         config.MediaDir,
		RecordDerivatives: config.RecordDerivatives,
		// one pinned connection per worker and one for the scanner; the
		// watcher and API reads share the rest
		MaxOpenConns: config.ScanWorkers + 10,
	})
	if err != nil {
		logging.Fatal("Failed to initialize database: %v", err)
	}

	ingester := indexer.NewIngester(gen)
	idx := indexer.New(db, ingester, indexer.Config{
		Root:             config.MediaDir,
		Extensions:       config.Extensions,
		SkipHidden:       config.SkipHidden,
		Workers:          config.ScanWorkers,
		ChunkSize:        config.ScanChunkSize,
		ScanInterval:     config.ScanInterval,
		ProgressInterval: config.ProgressInterval,
	})
	idx.SetMemoryMonitor(memMonitor)
	if err := idx.Start(); err != nil {
		logging.Fatal("Failed to start indexer: %v", err)
	}

	var watch *watcher.Watcher
	if config.WatchEnabled {
		watch = startWatcher(db, ingester, config)
	}

	var collector *metrics.Collector
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit, runtime.Version())
		collector = metrics.NewCollector(db, time.Minute)
		collector.Start()
	}

	var watchStatus handlers.WatchStatus
	if watch != nil {
		watchStatus = watch
	}
	h := handlers.New(db, idx, watchStatus, config.PageSize)
	router := setupRouter(h, config)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           middleware.Logger(loggingConfig(config))(router),
		ReadHeaderTimeout: 15 * time.Second,
		// full scans over POST /api/scan run as long as they need
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	if config.MetricsEnabled {
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           h.MetricsHandler(),
			ReadHeaderTimeout: 15 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, idx, watch, func() {
		if collector != nil {
			collector.Stop()
		}
		memMonitor.Stop()
		if err := db.Close(); err != nil {
			logging.Warn("Database close error: %v", err)
		}
		media.ShutdownVips()
	})

	startup.LogServerStarted(config, time.Since(startTime))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("Server error: %v", err)
	}
	<-shutdownDone
}

func startWatcher(db *database.Database, ingester *indexer.Ingester, config *startup.Config) *watcher.Watcher {
	w := watcher.New(db, ingester, watcher.Config{
		Root:       config.MediaDir,
		Extensions: config.Extensions,
		Debounce:   config.WatchDebounce,
		SkipHidden: config.SkipHidden,
	})
	if err := w.Start(context.Background()); err != nil {
		logging.Error("Failed to start file watcher, watching disabled: %v", err)
		return nil
	}
	return w
}

func loggingConfig(config *startup.Config) middleware.LoggingConfig {
	c := middleware.DefaultLoggingConfig()
	c.LogHealthChecks = config.LogHealthChecks
	return c
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()
	if config.MetricsEnabled {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/folders", h.ListFolders).Methods(http.MethodGet)
	api.HandleFunc("/folders/{id:[0-9]+}/subfolders", h.ListSubfolders).Methods(http.MethodGet)
	api.HandleFunc("/folders/{id:[0-9]+}/media", h.ListFolderMedia).Methods(http.MethodGet)
	api.HandleFunc("/media/{id:[0-9]+}", h.GetMediaItem).Methods(http.MethodGet)
	api.HandleFunc("/media/{id:[0-9]+}/full", h.GetFullResolution).Methods(http.MethodGet)
	api.HandleFunc("/media/{id:[0-9]+}/thumbnail", h.GetThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/scan", h.TriggerScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/status", h.ScanStatus).Methods(http.MethodGet)

	return r
}

var shutdownDone = make(chan struct{})

func handleShutdown(srv, metricsSrv *http.Server, idx *indexer.Indexer, watch *watcher.Watcher, release func()) {
	defer close(shutdownDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watch != nil {
		watch.Stop()
		startup.LogShutdownStep("File watcher stopped")
	}

	// Stopping the indexer also ends a scan running inside POST /api/scan,
	// which Shutdown would otherwise wait on.
	idx.Stop()
	startup.LogShutdownStep("Indexer stopped")

	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStep("HTTP server stopped")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	release()
	startup.LogShutdownStep("Resources released")
}
