package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the assistant backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	Debug            bool

	AuthServiceURL      string
	AuthRequestTimeout  time.Duration
	EntitlementCacheTTL time.Duration

	DatabaseURL        string
	MemoryBackend      string
	MemoryEmbeddingDim int

	OpenAIAPIKey     string
	ChatModel        string
	EmbeddingModel   string
	ChatMaxTokens    int
	ChatTemperature  float64
	AIRequestTimeout time.Duration

	MaxAudioUploadBytes int64

	DispatchPollInterval time.Duration

	BcryptCost int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "lara"),
		ShutdownTimeout:  15 * time.Second,

		AuthServiceURL:      envOrDefault("AUTH_SERVICE_URL", "http://localhost:3000"),
		AuthRequestTimeout:  10 * time.Second,
		EntitlementCacheTTL: 30 * time.Second,

		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		MemoryBackend:      envOrDefault("MEMORY_BACKEND", "auto"),
		MemoryEmbeddingDim: 1536,

		OpenAIAPIKey:     stringsTrimSpace("OPENAI_API_KEY"),
		ChatModel:        envOrDefault("CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel:   envOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		ChatMaxTokens:    1000,
		ChatTemperature:  0.7,
		AIRequestTimeout: 30 * time.Second,

		MaxAudioUploadBytes: 10 << 20,

		DispatchPollInterval: 5 * time.Second,

		BcryptCost: 12,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Debug, err = boolFromEnv("APP_DEBUG", cfg.Debug)
	if err != nil {
		return Config{}, err
	}
	cfg.AuthRequestTimeout, err = durationFromEnv("AUTH_REQUEST_TIMEOUT", cfg.AuthRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EntitlementCacheTTL, err = durationFromEnv("ENTITLEMENT_CACHE_TTL", cfg.EntitlementCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryEmbeddingDim, err = intFromEnv("MEMORY_EMBEDDING_DIM", cfg.MemoryEmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatMaxTokens, err = intFromEnv("CHAT_MAX_TOKENS", cfg.ChatMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatTemperature, err = floatFromEnv("CHAT_TEMPERATURE", cfg.ChatTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.AIRequestTimeout, err = durationFromEnv("AI_REQUEST_TIMEOUT", cfg.AIRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAudioUploadBytes, err = int64FromEnv("MAX_AUDIO_UPLOAD_BYTES", cfg.MaxAudioUploadBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.DispatchPollInterval, err = durationFromEnv("DISPATCH_POLL_INTERVAL", cfg.DispatchPollInterval)
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.MemoryBackend)) {
	case "auto", "postgres", "chromem":
	default:
		return Config{}, fmt.Errorf("MEMORY_BACKEND must be one of auto|postgres|chromem, got %q", cfg.MemoryBackend)
	}
	if cfg.MemoryEmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("MEMORY_EMBEDDING_DIM must be positive")
	}
	if cfg.ChatMaxTokens <= 0 {
		return Config{}, fmt.Errorf("CHAT_MAX_TOKENS must be positive")
	}
	if cfg.MaxAudioUploadBytes <= 0 {
		return Config{}, fmt.Errorf("MAX_AUDIO_UPLOAD_BYTES must be positive")
	}
	if cfg.DispatchPollInterval < time.Second {
		return Config{}, fmt.Errorf("DISPATCH_POLL_INTERVAL must be at least 1s")
	}
	if strings.TrimSpace(cfg.AuthServiceURL) == "" {
		return Config{}, fmt.Errorf("AUTH_SERVICE_URL must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
