package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/sebapoblete09/WhatsApp-receiver/internal/config"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/gate"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/genai"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/logger"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/meta"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/orchestrator"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/retrieval"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/server"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/transcript"
	"github.com/sebapoblete09/WhatsApp-receiver/internal/webhook"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideTranscriptClient,
			provideMetaClient,
			provideGenAIClient,
			provideGate,
			provideOrchestrator,
			provideWebhookHandler,
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideTranscriptClient(log *slog.Logger, cfg config.Config) *transcript.Client {
	timeout := time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	return transcript.NewClient(log, cfg.Backend.BaseURL, cfg.Backend.AuthToken, timeout)
}

func provideMetaClient(log *slog.Logger, cfg config.Config) *meta.Client {
	timeout := time.Duration(cfg.Meta.TimeoutSeconds) * time.Second
	return meta.NewClient(log, cfg.Meta.GraphBaseURL, cfg.Meta.APIVersion, cfg.Meta.AccessToken, cfg.Meta.PhoneNumberID, timeout)
}

func provideGenAIClient(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) *genai.Client {
	client := genai.NewClient(log, cfg.Gemini.APIKey, genai.Options{
		BaseURL:         cfg.Gemini.BaseURL,
		Model:           cfg.Gemini.Model,
		VisionModel:     cfg.Gemini.VisionModel,
		EmbeddingModel:  cfg.Gemini.EmbeddingModel,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		Timeout:         time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
	})

	if cfg.Generation.Grounded {
		store, err := retrieval.NewStore(log, retrieval.Config{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			APIKey:         cfg.Qdrant.APIKey,
			UseTLS:         cfg.Qdrant.UseTLS,
			Collection:     cfg.Qdrant.Collection,
			TopK:           cfg.Generation.TopK,
			ScoreThreshold: cfg.Generation.ScoreThreshold,
		})
		if err != nil {
			log.Warn("retrieval store unavailable, grounded generation degrades to free generation",
				slog.String("error", err.Error()),
			)
		} else {
			client.SetRetriever(store)
			lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return store.Close() }})
		}
	}

	return client
}

func provideGate(log *slog.Logger, transcriptClient *transcript.Client) *gate.Gate {
	return gate.New(log, transcriptClient)
}

func provideOrchestrator(log *slog.Logger, cfg config.Config, convGate *gate.Gate, transcriptClient *transcript.Client, metaClient *meta.Client, genaiClient *genai.Client) *orchestrator.Orchestrator {
	return orchestrator.New(
		log,
		convGate,
		transcriptClient,
		metaClient,
		genaiClient,
		metaClient,
		transcriptClient,
		orchestrator.Options{
			GroundedGeneration: cfg.Generation.Grounded,
			BotDisplayName:     "Bot IA",
			AdminDisplayName:   "admin",
		},
	)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, orch *orchestrator.Orchestrator) *webhook.Handler {
	return webhook.NewHandler(log, orch, webhook.Options{
		VerifyToken:  cfg.Meta.VerifyToken,
		AdminToken:   cfg.Admin.AuthToken,
		EventTimeout: time.Duration(cfg.Orchestrator.EventTimeoutSeconds) * time.Second,
	})
}

func provideServer(log *slog.Logger, cfg config.Config, webhookHandler *webhook.Handler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, webhookHandler)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
