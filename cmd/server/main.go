package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yegors/co-hud/internal/api"
	"github.com/yegors/co-hud/internal/bridge"
	"github.com/yegors/co-hud/internal/config"
	"github.com/yegors/co-hud/internal/dashboard"
	"github.com/yegors/co-hud/internal/observability"
	"github.com/yegors/co-hud/internal/settings"
	"github.com/yegors/co-hud/internal/speech"
	"github.com/yegors/co-hud/internal/storage/badger"
	"github.com/yegors/co-hud/internal/storage/sqlite"
	"github.com/yegors/co-hud/internal/websocket"
	"github.com/yegors/co-hud/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Co-HUD server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Recent tracks always live in SQLite; settings follow the configured backend
	db, err := sqlite.Open(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err), logger.String("path", cfg.Storage.SQLitePath))
		os.Exit(1)
	}
	defer db.Close()

	tracks, err := sqlite.NewTrackStorage(db, log)
	if err != nil {
		log.Error("Failed to initialize track storage", logger.Error(err))
		os.Exit(1)
	}

	backend, err := openSettingsBackend(cfg, db, log)
	if err != nil {
		log.Error("Failed to open settings backend", logger.Error(err), logger.String("backend", cfg.Storage.SettingsBackend))
		os.Exit(1)
	}
	store := settings.NewStore(backend, metrics, log)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsServer := websocket.NewServer(cfg.Server.CORSAllowedOrigins, metrics, log)
	mux := websocket.NewMux(log)
	wsServer.SetMessageHandler(mux)
	go wsServer.Run(ctx)

	// The HUD page hosts the recognizer; the manager drives it over the socket
	host := bridge.New(log)
	host.Register(mux)

	manager := speech.NewManager(host, store, speech.Config{
		DefaultLocale:    cfg.Speech.DefaultLocale,
		FallbackLocales:  cfg.Speech.FallbackLocales,
		Continuous:       cfg.Speech.ContinuousEnabled(),
		InterimResults:   cfg.Speech.InterimResultsEnabled(),
		DefaultListening: cfg.Speech.ListeningByDefault(),
	}, metrics, log)
	host.OnReady(manager.Resume)

	publisher := dashboard.NewPublisher(manager, store, wsServer, log)
	publisher.Register(mux)
	publisher.Start()
	defer publisher.Stop()

	router := api.NewRouter(manager, store, tracks, wsServer, metrics, cfg, log)
	handler := router.Routes()

	ports := append([]int{cfg.Server.Port}, cfg.Server.AdditionalPorts...)
	servers := make([]*http.Server, 0, len(ports))
	for _, port := range ports {
		server := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
			Handler:      handler,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error", logger.Error(err), logger.String("addr", s.Addr))
				cancel()
			}
		}(server)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down server", logger.String("signal", sig.String()))
	case <-ctx.Done():
		log.Info("Shutting down server after listener failure")
	}

	// The persisted listening intent is left alone so the next start resumes it
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("Server shutdown error", logger.Error(err), logger.String("addr", srv.Addr))
			}
		}(s)
	}
	wg.Wait()
	cancel()

	log.Info("Server stopped")
}

func openSettingsBackend(cfg *config.Config, db *sql.DB, log *logger.Logger) (settings.Backend, error) {
	switch cfg.Storage.SettingsBackend {
	case config.BackendBadger:
		s, err := badger.Open(cfg.Storage.BadgerDir, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return settings.NewMemoryBackend(), nil
	default:
		s, err := sqlite.NewSettingsStorage(db, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
