package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mindwave/backend/internal/config"
	"github.com/zhouzirui/mindwave/backend/internal/service/inference"
	"github.com/zhouzirui/mindwave/backend/internal/store"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenStore(ctx, config.StoreConfig{Backend: config.StoreMemory})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, mem)

	dsn := filepath.Join(t.TempDir(), "snapshots.db")
	lite, err := OpenStore(ctx, config.StoreConfig{Backend: config.StoreSQLite, SQLiteDSN: dsn})
	require.NoError(t, err)
	defer lite.Close()
	assert.IsType(t, &store.SQLiteStore{}, lite)

	_, err = OpenStore(ctx, config.StoreConfig{Backend: config.StoreRedis, RedisURL: "not a url"})
	assert.Error(t, err)
}

func TestNewInferenceClient(t *testing.T) {
	ctx := context.Background()

	client, err := NewInferenceClient(ctx, &config.Config{
		Inference: config.InferenceConfig{Backend: config.InferenceHTTP, URL: "http://localhost:8000/chat", MaxAttempts: 1},
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &inference.HTTPClient{}, client)

	_, err = NewInferenceClient(ctx, &config.Config{
		Inference: config.InferenceConfig{Backend: config.InferenceModel},
	}, zerolog.Nop())
	assert.Error(t, err, "model backend without credentials")
}

func TestNewLoggerLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	NewLogger(config.LogConfig{Level: "warn"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	NewLogger(config.LogConfig{Level: "bogus"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
