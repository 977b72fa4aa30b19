// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lexi-tutor/lexi-api/internal/audiostream"
	"github.com/lexi-tutor/lexi-api/internal/config"
	"github.com/lexi-tutor/lexi-api/internal/handler"
	"github.com/lexi-tutor/lexi-api/internal/llm"
	natsclient "github.com/lexi-tutor/lexi-api/internal/nats"
	"github.com/lexi-tutor/lexi-api/internal/scheduler"
	"github.com/lexi-tutor/lexi-api/internal/service"
	"github.com/lexi-tutor/lexi-api/internal/store"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
	"github.com/lexi-tutor/lexi-api/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	restore := logger.SetGlobal(log)
	defer restore()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Options{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "lexi-api",
	})
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server", zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "lexi-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	db, err := store.Open(store.Config{
		Driver:   cfg.DatabaseDriver,
		DSN:      cfg.DatabaseDSN,
		LogLevel: cfg.LogLevel,
	}, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	var svcOpts []service.Option
	var natsClient *natsclient.Client
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		events := natsclient.NewEventStream(natsClient, log)
		if err := events.EnsureStream(ctx); err != nil {
			return err
		}
		svcOpts = append(svcOpts, service.WithEvents(events))
	} else {
		log.Info("NATS_URL not set, conversation events disabled")
	}

	llmClient, err := llm.NewClient(llm.Provider(cfg.LLMProvider), cfg.LLMAPIKey(), cfg.LLMBaseURL())
	if err != nil {
		// Turns fail with a provider error until a key is configured.
		log.Warn("language model unavailable", zap.String("provider", cfg.LLMProvider), zap.Error(err))
		llmClient = nil
	}

	var speech *llm.OpenAISpeech
	if cfg.OpenAIAPIKey != "" {
		speech, err = llm.NewOpenAISpeech(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TTSVoice)
		if err != nil {
			return err
		}
	} else {
		log.Info("OPENAI_API_KEY not set, voice turns disabled")
	}

	messages := store.NewMessageStore(db)
	conversations := store.NewConversationStore(db)
	profiles := store.NewProfileStore(db)

	turnCfg := service.DefaultTurnConfig()
	turnCfg.Model = cfg.LLMModel
	turnCfg.Temperature = cfg.LLMTemperature

	sessionSvc := service.NewSessionService(conversations, log, svcOpts...)
	turnSvc := service.NewTurnService(messages, conversations, profiles, llmClient, turnCfg, log, svcOpts...)
	statsSvc := service.NewStatsService(conversations, profiles, log, svcOpts...)
	retentionSvc := service.NewRetentionService(conversations, profiles, cfg.RetentionDays, log, svcOpts...)

	registry := audiostream.NewRegistry(cfg.AudioStreamTTL, log)
	go registry.Run(ctx, time.Minute)

	sweeper := scheduler.NewRetentionSweeper(cfg.RetentionCron, retentionSvc, log)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start retention sweeper: %w", err)
	}
	defer sweeper.Stop()

	handlers := handler.Handlers{
		Health:        handler.NewHealthHandler(db, natsClient),
		Conversations: handler.NewConversationHandler(sessionSvc, log),
		Turns:         handler.NewTurnHandler(turnSvc, log),
		Stats:         handler.NewStatsHandler(statsSvc, retentionSvc, cfg.PruneOnStats, log),
	}
	if speech != nil {
		handlers.Voice = handler.NewVoiceHandler(turnSvc, speech, speech, registry, log)
	}

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(handlers, handler.RouterConfig{
			JWTSecret:         cfg.JWTSecret,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
			AllowedOrigins:    cfg.CORSOrigins,
		}, log),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
