package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mothercollective/intake/internal/anthropic"
	"github.com/mothercollective/intake/internal/api"
	"github.com/mothercollective/intake/internal/auth"
	"github.com/mothercollective/intake/internal/autosave"
	"github.com/mothercollective/intake/internal/config"
	"github.com/mothercollective/intake/internal/events"
	"github.com/mothercollective/intake/internal/interview"
	"github.com/mothercollective/intake/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("intake starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Interview responder
	interviewer := interview.New(llm, db, slog.Default())

	// Admin gate
	if cfg.JWTSecret == "" || cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		slog.Error("INTAKE_JWT_SECRET, INTAKE_ADMIN_EMAIL and INTAKE_ADMIN_PASSWORD_HASH are required")
		os.Exit(1)
	}
	admin := auth.NewAdmin(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPasswordHash)

	// Progress events (optional, intake works without NATS, just no events)
	var pub *events.Publisher
	if cfg.NatsURL != "" {
		pub, err = events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without progress events")
	}

	// Coalesced draft autosave
	saver := autosave.New(cfg.AutosaveQuiet, db.SaveDraft, slog.Default())
	defer saver.Close()

	// HTTP API
	srv := api.NewServer(cfg.Port, db, interviewer, saver, admin, pub, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("intake ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("intake stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
