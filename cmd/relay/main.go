package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/feishu-coze-relay/internal/config"
	"github.com/tjfontaine/feishu-coze-relay/internal/coze"
	"github.com/tjfontaine/feishu-coze-relay/internal/server"
	"github.com/tjfontaine/feishu-coze-relay/internal/storage"
	"github.com/tjfontaine/feishu-coze-relay/internal/storage/memory"
	"github.com/tjfontaine/feishu-coze-relay/internal/storage/sqlite"
	"github.com/tjfontaine/feishu-coze-relay/internal/telemetry"
	"github.com/tjfontaine/feishu-coze-relay/internal/tokens"
	"github.com/tjfontaine/feishu-coze-relay/internal/webhook"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logger
	level := slog.LevelInfo
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdown, err := telemetry.InitTracer(cfg.App.Name, cfg.App.Version, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store := buildStore(cfg, logger)
	if store != nil {
		defer store.Close()
	}

	if cfg.Coze.AccessToken == "" {
		logger.Warn("coze access token is not configured, workflow calls will fail")
	}

	opts := []coze.ClientOption{
		coze.WithBaseURL(cfg.Coze.BaseURL),
		coze.WithWorkflow(cfg.Coze.WorkflowID, cfg.Coze.AppID),
		coze.WithConversationName(cfg.Coze.ConversationName),
		coze.WithLogger(logger),
	}
	if d, err := time.ParseDuration(cfg.Coze.Timeout); err == nil && d > 0 {
		opts = append(opts, coze.WithTimeout(d))
	}
	client := coze.NewClient(cfg.Coze.AccessToken, opts...)

	handler := webhook.NewHandler(client, store, tokens.NewCounter())

	srv := server.New(cfg, logger)
	srv.Router.Post("/webhook/feishu", handler.HandleFeishuEvent)
	srv.Router.Get("/health", server.HealthHandler(cfg.App.Version))

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	logger.Info("relay started",
		slog.String("addr", srv.Addr),
		slog.String("storage", cfg.Storage.Type),
		slog.String("coze_base_url", cfg.Coze.BaseURL),
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping relay...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Relay shutdown complete")
}

// buildStore constructs the exchange store named by the storage config.
// A nil return disables exchange logging.
func buildStore(cfg *config.Config, logger *slog.Logger) storage.ExchangeStore {
	switch cfg.Storage.Type {
	case "sqlite":
		store, err := sqlite.New(cfg.Storage.SQLite.Path)
		if err != nil {
			log.Fatalf("Failed to open sqlite store: %v", err)
		}
		logger.Info("exchange log enabled", slog.String("path", cfg.Storage.SQLite.Path))
		return store
	case "memory":
		logger.Info("exchange log enabled", slog.String("type", "memory"))
		return memory.New()
	case "none":
		logger.Info("exchange log disabled")
		return nil
	default:
		log.Fatalf("Unknown storage type %q", cfg.Storage.Type)
		return nil
	}
}
