package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting of the service.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Inference InferenceConfig
	Store     StoreConfig
	Auth      AuthConfig
	AI        AIConfig
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	inference, err := loadInferenceConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Log:       loadLogConfig(),
		Inference: inference,
		Store:     store,
		Auth:      auth,
		AI:        ai,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" or "127.0.0.1:8080" are taken as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig() LogConfig {
	env := strings.ToLower(getEnvOrDefault("APP_ENV", "development"))
	return LogConfig{
		Level:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Development: env == "development" || env == "dev",
	}
}

// Inference backends.
const (
	InferenceHTTP  = "http"
	InferenceModel = "model"
)

// InferenceConfig describes how replies are produced.
type InferenceConfig struct {
	Backend      string
	URL          string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	HistoryLimit int
}

func loadInferenceConfig() (InferenceConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("INFERENCE_BACKEND", InferenceHTTP))
	if backend != InferenceHTTP && backend != InferenceModel {
		return InferenceConfig{}, fmt.Errorf("invalid INFERENCE_BACKEND value: %q", backend)
	}

	timeout, err := parseDurationEnv("INFERENCE_TIMEOUT", 60*time.Second)
	if err != nil {
		return InferenceConfig{}, err
	}

	attempts, err := parseIntEnv("INFERENCE_MAX_ATTEMPTS", 1)
	if err != nil {
		return InferenceConfig{}, err
	}
	if attempts < 1 {
		return InferenceConfig{}, fmt.Errorf("INFERENCE_MAX_ATTEMPTS must be at least 1, got %d", attempts)
	}

	backoff, err := parseDurationEnv("INFERENCE_RETRY_BACKOFF", 500*time.Millisecond)
	if err != nil {
		return InferenceConfig{}, err
	}

	history, err := parseIntEnv("HISTORY_LIMIT", 10)
	if err != nil {
		return InferenceConfig{}, err
	}
	if history < 1 {
		return InferenceConfig{}, fmt.Errorf("HISTORY_LIMIT must be at least 1, got %d", history)
	}

	return InferenceConfig{
		Backend:      backend,
		URL:          getEnvOrDefault("INFERENCE_URL", "http://localhost:8000/chat"),
		Timeout:      timeout,
		MaxAttempts:  attempts,
		RetryBackoff: backoff,
		HistoryLimit: history,
	}, nil
}

// Snapshot store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// StoreConfig selects where snapshots live.
type StoreConfig struct {
	Backend   string
	SQLiteDSN string
	RedisURL  string
}

func loadStoreConfig() (StoreConfig, error) {
	cfg := StoreConfig{
		Backend:   strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreMemory)),
		SQLiteDSN: getEnvOrDefault("SQLITE_DSN", "mindwave.db"),
		RedisURL:  getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
	}
	switch cfg.Backend {
	case StoreMemory, StoreSQLite, StoreRedis:
		return cfg, nil
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value: %q", cfg.Backend)
	}
}

// AuthConfig controls how callers are identified. Without a JWT secret the
// X-User-ID header is trusted, which is only suitable for development.
type AuthConfig struct {
	JWTSecret         string
	SendRatePerMinute int
}

func loadAuthConfig() (AuthConfig, error) {
	rate, err := parseIntEnv("SEND_RATE_PER_MINUTE", 30)
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{
		JWTSecret:         strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
		SendRatePerMinute: rate,
	}, nil
}

// AIConfig describes the chat model used by the model inference backend.
type AIConfig struct {
	APIKey              string
	AccessKey           string
	SecretKey           string
	Model               string
	BaseURL             string
	Region              string
	Temperature         *float64
	TopP                *float64
	MaxTokens           *int
	EmotionLLMEnabled   bool
	EmotionHistoryLimit int
}

// Enabled reports whether credentials and a model were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or ARK_ACCESS_KEY and ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	emotionEnabled, err := parseBoolEnv("AI_EMOTION_LLM_ENABLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	emotionHistory := 6
	if historyOverride, err := parseOptionalIntEnv("AI_EMOTION_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if historyOverride != nil {
		if *historyOverride < 1 {
			emotionHistory = 1
		} else {
			emotionHistory = *historyOverride
		}
	}

	return AIConfig{
		APIKey:              strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:           strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:           strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:               strings.TrimSpace(os.Getenv("Model")),
		BaseURL:             getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:              getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:         temperature,
		TopP:                topP,
		MaxTokens:           maxTokens,
		EmotionLLMEnabled:   emotionEnabled,
		EmotionHistoryLimit: emotionHistory,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
