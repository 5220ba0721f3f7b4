package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solutionhub/internal/config"
	"solutionhub/internal/diagram"
	"solutionhub/internal/domain"
	"solutionhub/internal/explorer"
	apphttp "solutionhub/internal/http"
	"solutionhub/internal/integrations/telegram"
	"solutionhub/internal/integrations/webhook"
	"solutionhub/internal/persist"
	"solutionhub/internal/security/secretbox"
	"solutionhub/internal/solution"
	storepkg "solutionhub/internal/store"
	"solutionhub/internal/store/file"
	"solutionhub/internal/store/memory"
	"solutionhub/internal/store/postgres"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	st := openStore(cfg, logger)

	var sealer persist.Sealer
	if cfg.StateEncryptionKey != "" {
		box, err := secretbox.New(cfg.StateEncryptionKey)
		if err != nil {
			logger.Error("invalid state encryption key", "error", err)
			os.Exit(1)
		}
		sealer = box
	}
	adapter := persist.NewAdapter(st, sealer, logger)

	publishers := domain.Publishers{
		webhook.NewClient(cfg.WebhookURL, cfg.WebhookTimeout, cfg.WebhookMaxRetries, cfg.WebhookRetryBase, cfg.WebhookRetryMax),
		telegram.NewNotifier(cfg.TelegramBotToken, cfg.TelegramChatID),
	}
	factory := explorer.NewFactory(cfg.EngineHTTPTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	solutions := solution.NewRegistry(adapter, factory, solution.Options{
		Publisher:      publishers,
		Logger:         logger.With("component", "solutions"),
		ResolveTimeout: cfg.ConnectorTimeout,
		PublishTimeout: cfg.PublishTimeout,
	})
	solutions.Initialize(ctx)

	diagrams := diagram.NewRegistry(adapter, diagram.Options{
		Publisher:      publishers,
		Logger:         logger.With("component", "diagrams"),
		PublishTimeout: cfg.PublishTimeout,
	})
	diagrams.Load()
	if err := solutions.AddSolutionEntry(domain.SolutionEntry{URI: domain.OpenDiagramsURI, Service: diagrams}); err != nil {
		logger.Error("registering open diagrams failed", "error", err)
		os.Exit(1)
	}

	go func() {
		failed := 0
		for _, res := range solutions.Wait() {
			if res.Err != nil {
				failed++
			}
		}
		logger.Info("solution connectors resolved", "failed", failed)
	}()

	srv := apphttp.NewServer(cfg, solutions, diagrams, factory, logger.With("component", "http"))
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("solutionhub listening", "addr", cfg.ListenAddr, "store", cfg.StoreMode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	if closer, ok := st.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func openStore(cfg config.Config, logger *slog.Logger) storepkg.Store {
	switch cfg.StoreMode {
	case "postgres":
		if cfg.DatabaseURL == "" {
			logger.Warn("STORE_MODE=postgres without DATABASE_URL, using memory store")
			return memory.NewStore()
		}
		pgStore, err := postgres.NewStore(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("postgres store unavailable, falling back to memory store", "error", err)
			return memory.NewStore()
		}
		return pgStore
	case "memory":
		return memory.NewStore()
	default:
		return file.NewStore(cfg.StateFile)
	}
}
