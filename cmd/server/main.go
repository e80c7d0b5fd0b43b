package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iconidentify/vidgrab/internal/api"
	"github.com/iconidentify/vidgrab/internal/api/handler"
	"github.com/iconidentify/vidgrab/internal/config"
	"github.com/iconidentify/vidgrab/internal/extractor"
	"github.com/iconidentify/vidgrab/internal/fetch"
	"github.com/iconidentify/vidgrab/internal/metrics"
	"github.com/iconidentify/vidgrab/internal/policy"
	"github.com/iconidentify/vidgrab/internal/ratelimit"
	"github.com/iconidentify/vidgrab/internal/repository"
	"github.com/iconidentify/vidgrab/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vidgrab %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// A local .env is optional; real deployments set the environment.
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting vidgrab",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure the spool directory exists
	if err := os.MkdirAll(cfg.Download.SpoolPath, 0755); err != nil {
		logger.Error("failed to create spool directory", "error", err)
		os.Exit(1)
	}

	// Download history store
	var history repository.HistoryStore = repository.NoopHistory{}
	if cfg.History.Enabled {
		store, err := repository.NewSQLiteHistory(cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history database", "error", err, "path", cfg.History.Path)
			os.Exit(1)
		}
		defer store.Close()
		history = store
	}

	// Rate limiter with a background janitor for idle client windows
	limiter := ratelimit.New(cfg.RateLimit.Enabled, cfg.RateLimit.PerMinute, cfg.RateLimit.Window)
	stopSweeper := make(chan struct{})
	go limiter.RunSweeper(stopSweeper, 5*time.Minute)

	// Extractors share one HTTP client bounded by the extraction timeout
	upstreamClient := &http.Client{Timeout: cfg.Extract.Timeout}
	registry := extractor.NewRegistry(
		extractor.NewInstagram(upstreamClient, cfg.Extract.InstagramBase, cfg.Download.UserAgent),
		extractor.NewTikTok(upstreamClient, cfg.Extract.TikwmBaseURL, cfg.Download.UserAgent),
	)

	m := metrics.New(prometheus.DefaultRegisterer)

	svc := service.NewDownloadService(
		policy.NewAllowList(cfg.Download.Domains()),
		policy.NewSizeGuard(cfg.Download.MaxSizeBytes()),
		limiter,
		registry,
		fetch.NewFetcher(cfg.Download.UserAgent),
		history,
		m,
		logger,
		cfg.Download.SpoolPath,
		cfg.Extract.Timeout,
	)

	// Retention purge for old history rows
	purgeCtx, cancelPurge := context.WithCancel(context.Background())
	if cfg.History.Enabled && cfg.History.RetentionDays > 0 {
		go runRetentionPurge(purgeCtx, history, cfg.History.RetentionDays, logger)
	}

	// Initialize handlers
	downloadHandler := handler.NewDownloadHandler(svc, cfg.Server.APIKey, logger)
	platformsHandler := handler.NewPlatformsHandler(svc)
	healthHandler := handler.NewHealthHandler(svc, Version, cfg.RateLimit.Enabled)
	historyHandler := handler.NewHistoryHandler(history, logger)
	docsHandler := handler.NewDocsHandler()

	// Setup router
	router := api.NewRouter(
		downloadHandler,
		platformsHandler,
		healthHandler,
		historyHandler,
		docsHandler,
		logger,
		cfg.Server.APIKeyRequired,
		cfg.Server.APIKey,
	)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Cancel background tasks
	cancelPurge()
	close(stopSweeper)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// runRetentionPurge drops history rows older than the retention window,
// once at startup and then daily.
func runRetentionPurge(ctx context.Context, history repository.HistoryStore, days int, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -days)
		removed, err := history.Purge(ctx, cutoff)
		if err != nil {
			logger.Error("history purge failed", "error", err)
		} else if removed > 0 {
			logger.Info("history purged", "removed", removed, "cutoff", cutoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
