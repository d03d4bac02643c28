package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mcpwizard/mcpwizard/internal/analyzer"
	"github.com/mcpwizard/mcpwizard/internal/api"
	"github.com/mcpwizard/mcpwizard/internal/cache"
	"github.com/mcpwizard/mcpwizard/internal/config"
	"github.com/mcpwizard/mcpwizard/internal/database"
	"github.com/mcpwizard/mcpwizard/internal/discovery"
	"github.com/mcpwizard/mcpwizard/internal/github"
	"github.com/mcpwizard/mcpwizard/internal/npm"
	"github.com/mcpwizard/mcpwizard/internal/scheduler"
	"github.com/mcpwizard/mcpwizard/internal/telemetry"
	"github.com/mcpwizard/mcpwizard/internal/vault"
)

func main() {
	logger := telemetry.NewLogger("mcpwizard")
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}
	logger.Info("database ready")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.NewMetrics(registry)

	githubClient := github.NewClient(cfg.GitHubToken, github.WithTimeout(cfg.ProviderTimeout))
	npmClient := npm.NewClient(npm.WithTimeout(cfg.ProviderTimeout))

	memCache := cache.NewMemory()

	svc := discovery.NewService(discovery.Config{
		Repositories: githubClient,
		Packages:     npmClient,
		RepoAnalyzer: analyzer.NewRepositoryAnalyzer(githubClient, telemetry.NewLogger("analyzer")),
		PkgAnalyzer:  analyzer.NewPackageAnalyzer(npmClient, telemetry.NewLogger("analyzer")),
		Store:        db,
		Cache:        memCache,
		Logger:       telemetry.NewLogger("discovery"),
		Metrics:      metrics,
		Workers:      cfg.Workers,
		JobRetention: cfg.JobRetention,
		DiscoveryTTL: cfg.DiscoveryCacheTTL,
		AnalysisTTL:  cfg.AnalysisCacheTTL,
	})

	sched := scheduler.New(scheduler.Config{
		Discovery:  svc,
		Store:      db,
		Logger:     telemetry.NewLogger("scheduler"),
		Queries:    cfg.RefreshQueries,
		Interval:   cfg.RefreshInterval,
		StaleAfter: cfg.StaleAfter,
		Workers:    cfg.Workers,
	})

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	go func() {
		if err := sched.Start(schedCtx); err != nil {
			logger.Error("scheduler error", zap.Error(err))
		}
	}()

	handler := api.New(api.Config{
		Store:       db,
		Discovery:   svc,
		Vault:       vault.New(),
		Logger:      telemetry.NewLogger("api"),
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Router(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		schedCancel()
		server.Shutdown(context.Background())
	}()

	logger.Info("mcpwizard listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Int("workers", cfg.Workers),
		zap.Duration("refresh_interval", cfg.RefreshInterval))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("mcpwizard stopped")
}
