package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kasharian/internal/auth"
	"kasharian/internal/backend"
	"kasharian/internal/cache"
	"kasharian/internal/cli"
	"kasharian/internal/config"
	apphttp "kasharian/internal/http"
	applog "kasharian/internal/log"
	"kasharian/internal/middleware/ratelimit"
	"kasharian/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	guard, err := auth.NewGuard(auth.Options{
		Secret:            cfg.JWTSecret,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: cfg.AdminPasswordHash,
		ExtraUsers:        cfg.ExtraUsers,
		CookieSecure:      cfg.CookieSecure,
	})
	if err != nil {
		logger.Error("Failed to configure sessions", applog.FieldError, err)
		os.Exit(1)
	}

	ledger := services.NewLedger(result.Backend, services.LedgerOptions{
		Policy:  cfg.Policy(),
		IsAdmin: guard.IsAdmin,
		Logger:  logger,
	})
	aggregator := services.NewAggregator(ledger, cfg.CacheTTL)

	cacheManager := cache.NewManager()
	for _, c := range aggregator.Cleaners() {
		cacheManager.Register(c)
	}
	cacheManager.StartCleanup(time.Minute)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Ledger:         ledger,
		Aggregator:     aggregator,
		Guard:          guard,
		Logger:         logger,
		TrustedProxies: cfg.TrustedProxies,
		RateLimit:      ratelimit.DefaultConfig(),
	})
	if err != nil {
		logger.Error("Failed to configure HTTP server", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", applog.FieldError, err)
			}
		}
	})

	logger.Info("Starting kasharian server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"cash_policy", string(cfg.Policy()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
