// Package bootstrap builds the runtime components shared by the server and the
// command line tools from a loaded configuration.
package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/config"
	emotionservice "github.com/zhouzirui/mindwave/backend/internal/service/emotion"
	"github.com/zhouzirui/mindwave/backend/internal/service/inference"
	"github.com/zhouzirui/mindwave/backend/internal/store"
)

// NewLogger returns a console logger in development and JSON otherwise.
func NewLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Development {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// OpenStore opens the configured snapshot backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
	switch cfg.Backend {
	case config.StoreSQLite:
		return store.NewSQLiteStore(ctx, cfg.SQLiteDSN)
	case config.StoreRedis:
		return store.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return store.NewMemoryStore(), nil
	}
}

// NewInferenceClient returns the HTTP endpoint client, or the Ark-backed
// model client when the model backend is selected.
func NewInferenceClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (inference.Client, error) {
	if cfg.Inference.Backend != config.InferenceModel {
		logger.Info().Str("url", cfg.Inference.URL).Msg("using HTTP inference endpoint")
		return inference.NewHTTPClient(inference.HTTPOptions{
			URL:          cfg.Inference.URL,
			Timeout:      cfg.Inference.Timeout,
			MaxAttempts:  cfg.Inference.MaxAttempts,
			RetryBackoff: cfg.Inference.RetryBackoff,
			Logger:       logger,
		}), nil
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}

	classifier, err := emotionservice.NewService(ctx, chatModel, emotionservice.Config{
		Enabled:      cfg.AI.EmotionLLMEnabled,
		HistoryLimit: cfg.AI.EmotionHistoryLimit,
		Logger:       logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("emotion classifier unavailable, falling back to heuristics")
		classifier = nil
	} else if classifier.Enabled() {
		logger.Info().Msg("emotion classifier enabled")
	}

	logger.Info().Str("model", cfg.AI.Model).Msg("using Ark chat model for replies")
	return inference.NewModelClient(ctx, chatModel, classifier, inference.ModelOptions{
		Timeout: cfg.Inference.Timeout,
		Logger:  logger,
	})
}
