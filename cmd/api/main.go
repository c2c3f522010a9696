package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/roastmyui/backend/internal/auth"
	"github.com/roastmyui/backend/internal/billing"
	"github.com/roastmyui/backend/internal/config"
	"github.com/roastmyui/backend/internal/dashboard"
	"github.com/roastmyui/backend/internal/db"
	"github.com/roastmyui/backend/internal/execution"
	"github.com/roastmyui/backend/internal/handlers"
	"github.com/roastmyui/backend/internal/httpserver"
	"github.com/roastmyui/backend/internal/ledger"
	"github.com/roastmyui/backend/internal/llm"
	"github.com/roastmyui/backend/internal/metrics"
	"github.com/roastmyui/backend/internal/middleware"
	"github.com/roastmyui/backend/internal/repository"
	"github.com/roastmyui/backend/internal/roast"
	"github.com/roastmyui/backend/internal/router"
	"github.com/roastmyui/backend/internal/screenshot"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	if err := db.Migrate(ctx, cfg.Database.URL); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Migrations applied")

	catalog, err := config.LoadCatalog(cfg.Polar.CatalogFile)
	if err != nil {
		slog.Error("Failed to load product catalog", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Ledger & repositories
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), cfg.Pricing.StartingCredits)
	userRepo := repository.NewUserRepo(pool)
	txRepo := repository.NewTransactionRepo(pool)
	roastRepo := repository.NewRoastRepo(pool)

	// Background grants
	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewGrantCreditsWorker(ledgerSvc, m, logger))
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	// Roast pipeline
	capturer := newCapturer(cfg.Screenshot, logger)
	generator, err := newGenerator(ctx, cfg.LLM)
	if err != nil {
		slog.Error("Failed to create model client", "error", err)
		os.Exit(1)
	}
	parser, err := llm.NewOutputParser()
	if err != nil {
		slog.Error("Failed to compile roast schema", "error", err)
		os.Exit(1)
	}
	invoker := llm.NewInvoker(generator, parser, cfg.LLM.Models, cfg.LLM.RateLimitDelay,
		llm.WithObserver(m), llm.WithLogger(logger))
	roastSvc := roast.NewService(ledgerSvc, capturer, invoker, roastRepo, cfg.Pricing, m,
		roast.Config{RequireScreenshot: cfg.Screenshot.Required}, logger)

	authSvc, err := auth.NewService(cfg.Auth)
	if err != nil {
		slog.Error("Failed to configure auth", "error", err)
		os.Exit(1)
	}

	// Billing
	var verifier billing.Verifier
	if cfg.Polar.WebhookSecret != "" {
		verifier, err = billing.NewVerifier(cfg.Polar.WebhookSecret)
		if err != nil {
			slog.Error("Invalid webhook secret", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("POLAR_WEBHOOK_SECRET not set; payment webhooks will be rejected")
	}
	polar := billing.NewPolar(cfg.Polar.APIURL, cfg.Polar.AccessToken, 15*time.Second)

	roastLimit, err := middleware.RateLimit(cfg.RateLimit.Roast, cfg.RateLimit.TrustForwardHeader)
	if err != nil {
		slog.Error("Invalid rate limit", "error", err)
		os.Exit(1)
	}

	apiRouter := router.New(router.Handlers{
		Roast:      handlers.NewRoastHandler(roastSvc, logger),
		Dashboard:  dashboard.NewHandler(authSvc, ledgerSvc, userRepo, txRepo, roastRepo, logger),
		Checkout:   billing.NewCheckoutHandler(polar, catalog, ledgerSvc, cfg.Polar.SuccessURL, m, logger),
		Webhook:    billing.NewWebhookHandler(verifier, catalog, userRepo, ledgerSvc, execution.NewEnqueuer(riverClient), m, logger),
		Auth:       middleware.Authenticate(authSvc),
		RoastLimit: roastLimit,
	})
	server := httpserver.New(cfg.Server, buildHandler(cfg.Server, apiRouter, m, pool.Ping), logger)

	// Start River client (processes grant jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	if err := riverClient.Start(riverCtx); err != nil {
		slog.Error("Failed to start River client", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := server.Start(); err != nil {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River shutdown error", "error", err)
	}
}

func newCapturer(cfg config.ScreenshotConfig, logger *slog.Logger) screenshot.Capturer {
	if cfg.Mode == "remote" {
		return screenshot.NewRemote(cfg.APIURL, cfg.APIKey, cfg.Timeout)
	}
	return screenshot.NewBrowser(cfg.Timeout, cfg.UserAgent, logger)
}

func newGenerator(ctx context.Context, cfg config.LLMConfig) (llm.Generator, error) {
	if cfg.Provider == "openai" {
		return llm.NewOpenAICompatible(cfg.APIKey, cfg.BaseURL, cfg.Models[0], cfg.Temperature)
	}
	return llm.NewGemini(ctx, cfg.APIKey, cfg.Temperature, cfg.SearchGrounding)
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
