package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "APP_ENV", "LOG_LEVEL", "INFERENCE_BACKEND", "INFERENCE_URL", "INFERENCE_TIMEOUT",
		"INFERENCE_MAX_ATTEMPTS", "INFERENCE_RETRY_BACKOFF", "HISTORY_LIMIT", "STORE_BACKEND",
		"SQLITE_DSN", "REDIS_URL", "AUTH_JWT_SECRET", "SEND_RATE_PER_MINUTE", "ARK_API_KEY",
		"ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
		"AI_EMOTION_LLM_ENABLED", "AI_EMOTION_HISTORY_LIMIT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, InferenceHTTP, cfg.Inference.Backend)
	assert.Equal(t, "http://localhost:8000/chat", cfg.Inference.URL)
	assert.Equal(t, 60*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, 1, cfg.Inference.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Inference.RetryBackoff)
	assert.Equal(t, 10, cfg.Inference.HistoryLimit)

	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, 30, cfg.Auth.SendRatePerMinute)

	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, 6, cfg.AI.EmotionHistoryLimit)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("APP_ENV", "production")
	t.Setenv("INFERENCE_BACKEND", "MODEL")
	t.Setenv("INFERENCE_TIMEOUT", "0s")
	t.Setenv("INFERENCE_MAX_ATTEMPTS", "3")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao")
	t.Setenv("ARK_TEMPERATURE", "0.4")
	t.Setenv("AI_EMOTION_HISTORY_LIMIT", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.False(t, cfg.Log.Development)
	assert.Equal(t, InferenceModel, cfg.Inference.Backend)
	assert.Zero(t, cfg.Inference.Timeout)
	assert.Equal(t, 3, cfg.Inference.MaxAttempts)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, "redis://cache:6379/2", cfg.Store.RedisURL)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.4, *cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 1, cfg.AI.EmotionHistoryLimit)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                   "80 80",
		"INFERENCE_BACKEND":      "grpc",
		"INFERENCE_TIMEOUT":      "soon",
		"INFERENCE_MAX_ATTEMPTS": "0",
		"HISTORY_LIMIT":          "0",
		"STORE_BACKEND":          "postgres",
		"SEND_RATE_PER_MINUTE":   "many",
		"ARK_TOP_P":              "high",
		"AI_EMOTION_LLM_ENABLED": "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Run("negative HISTORY_LIMIT", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HISTORY_LIMIT", "-3")
		_, err := Load()
		assert.Error(t, err)
	})
}
