package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fluxo/internal/backend"
	"fluxo/internal/cache"
	"fluxo/internal/cli"
	apphttp "fluxo/internal/http"
	"fluxo/internal/log"
	"fluxo/internal/services"
)

const dashboardCacheItems = 1000

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	summaries, charts, closeCaches := newDashboardCaches(logger, cfg.DashboardCacheTTL)
	dash := services.NewDashboard(res.Store, summaries, charts)
	ledger := services.NewLedger(res.Store, res.Publisher, dash)

	srv := apphttp.NewServer(":"+cfg.Port, ledger, dash, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		closeCaches()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting fluxo server", "port", cfg.Port, "backend", cfg.DataBackend, "change_events", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// newDashboardCaches returns TTL caches, or no caching when ttl is zero.
func newDashboardCaches(logger *log.Logger, ttl time.Duration) (cache.Cache[services.SummaryView], cache.Cache[services.ChartsView], func()) {
	if ttl <= 0 {
		return nil, nil, func() {}
	}
	summaries, err := cache.NewTTLCache[services.SummaryView](dashboardCacheItems, ttl)
	if err != nil {
		logger.Warn("Dashboard cache disabled", log.FieldError, err.Error())
		return nil, nil, func() {}
	}
	charts, err := cache.NewTTLCache[services.ChartsView](dashboardCacheItems, ttl)
	if err != nil {
		summaries.Close()
		logger.Warn("Dashboard cache disabled", log.FieldError, err.Error())
		return nil, nil, func() {}
	}
	return summaries, charts, func() {
		summaries.Close()
		charts.Close()
	}
}
