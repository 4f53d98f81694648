package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/sentinel/internal/anthropic"
	"github.com/MikeSquared-Agency/sentinel/internal/api"
	"github.com/MikeSquared-Agency/sentinel/internal/config"
	"github.com/MikeSquared-Agency/sentinel/internal/gemini"
	"github.com/MikeSquared-Agency/sentinel/internal/hermes"
	"github.com/MikeSquared-Agency/sentinel/internal/persona"
	"github.com/MikeSquared-Agency/sentinel/internal/processor"
	"github.com/MikeSquared-Agency/sentinel/internal/reply"
	"github.com/MikeSquared-Agency/sentinel/internal/report"
	"github.com/MikeSquared-Agency/sentinel/internal/session"
	"github.com/MikeSquared-Agency/sentinel/internal/store"
)

func main() {
	cfg := config.Load()
	logger, closeLog := config.SetupLogger(cfg.LogLevel, cfg.LogFile)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("sentinel starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Personas
	personas, err := loadPersonas(cfg.PersonasFile)
	if err != nil {
		slog.Error("failed to load personas", "error", err)
		os.Exit(1)
	}
	slog.Info("personas loaded", "count", personas.Len(), "default", personas.DefaultID())

	// Database (optional; sessions are memory-only without it)
	var db *store.Store
	if cfg.DatabaseURL != "" {
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, sessions will not survive a restart")
	}

	storeOpts := []session.Option{
		session.WithCapacity(cfg.SessionCacheSize),
		session.WithTTL(cfg.SessionTTL),
		session.WithLogger(logger),
	}
	if db != nil {
		storeOpts = append(storeOpts, session.WithLoader(db))
	}
	sessions := session.NewMemoryStore(personas, storeOpts...)

	// Reply generator (optional; canned templates otherwise)
	gen := newGenerator(ctx, cfg)
	engine := reply.New(personas, gen, reply.Config{
		Timeout:       cfg.GenTimeout,
		HistoryWindow: cfg.GenHistoryWindow,
	}, logger)

	procCfg := processor.Config{
		Gate:             report.Gate{TurnThreshold: cfg.ReportTurnThreshold},
		ExtractFromReply: cfg.ExtractFromReply,
	}
	if db != nil {
		procCfg.Recorder = db
	}

	// NATS/Hermes (optional)
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		procCfg.Publisher = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Collector (optional)
	if cfg.ReportURL != "" {
		procCfg.Notifier = report.NewReporter(cfg.ReportURL, cfg.ReportAPIKey, cfg.ReportTimeout, logger)
		slog.Info("reporting enabled", "url", cfg.ReportURL, "turn_threshold", cfg.ReportTurnThreshold)
	} else {
		slog.Warn("REPORT_URL not set, intelligence will not be reported")
	}

	proc := processor.New(sessions, personas, engine, procCfg, logger)

	// HTTP API
	deps := api.Deps{
		Processor: proc,
		Sessions:  sessions,
		Personas:  personas,
		APIKey:    cfg.APIKey,
		Logger:    logger,
	}
	if db != nil {
		deps.Archive = db
	}
	if cfg.APIKey == "" {
		slog.Warn("SENTINEL_API_KEY not set, chat endpoint is unauthenticated")
	}
	srv := api.NewServer(cfg.Port, deps)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("sentinel ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	proc.Wait()
	cancel()
	slog.Info("sentinel stopped")
}

func loadPersonas(path string) (*persona.Registry, error) {
	if path == "" {
		return persona.Default()
	}
	return persona.LoadFile(path)
}

func newGenerator(ctx context.Context, cfg config.Config) reply.Generator {
	switch cfg.GenProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			slog.Warn("GEMINI_API_KEY not set, replying from templates only")
			return nil
		}
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Error("gemini client unavailable, replying from templates only", "error", err)
			return nil
		}
		slog.Info("gemini client ready", "model", cfg.GeminiModel)
		return client
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			slog.Warn("ANTHROPIC_API_KEY not set, replying from templates only")
			return nil
		}
		client, err := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			slog.Error("anthropic client unavailable, replying from templates only", "error", err)
			return nil
		}
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
		return client
	default:
		slog.Info("generative replies disabled", "provider", cfg.GenProvider)
		return nil
	}
}
