package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StoragePath string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	EbayAppID    string
	EbayGlobalID string
	EbayBaseURL  string

	MaxUploadBytes int64

	PipelineWorkers int
	PipelineQueue   int

	StageMaxAttempts int
	StageRetryBase   time.Duration
	StageTimeout     time.Duration
	JobDeadline      time.Duration
	JobRetention     time.Duration

	VisionCacheTTL time.Duration
	MarketCacheTTL time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	DefaultLocale  string
	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. DATABASE_URL and REDIS_ADDR are optional: without
// them the service falls back to the in-memory job store and cache.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EbayAppID:        os.Getenv("EBAY_APP_ID"),
		EbayGlobalID:     getEnv("EBAY_GLOBAL_ID", "EBAY-DE"),
		EbayBaseURL:      getEnv("EBAY_BASE_URL", "https://svcs.ebay.com/services/search/FindingService/v1"),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_MB", 10)) * 1024 * 1024,
		PipelineWorkers:  getEnvInt("PIPELINE_WORKERS", 4),
		PipelineQueue:    getEnvInt("PIPELINE_QUEUE", 64),
		StageMaxAttempts: getEnvInt("STAGE_MAX_ATTEMPTS", 3),
		StageRetryBase:   time.Millisecond * time.Duration(getEnvInt("STAGE_RETRY_BASE_MS", 1000)),
		StageTimeout:     time.Second * time.Duration(getEnvInt("STAGE_TIMEOUT_SECONDS", 20)),
		JobDeadline:      time.Second * time.Duration(getEnvInt("JOB_DEADLINE_SECONDS", 60)),
		JobRetention:     time.Minute * time.Duration(getEnvInt("JOB_RETENTION_MINUTES", 60)),
		VisionCacheTTL:   time.Hour * time.Duration(getEnvInt("VISION_CACHE_TTL_HOURS", 24)),
		MarketCacheTTL:   time.Minute * time.Duration(getEnvInt("MARKET_CACHE_TTL_MINUTES", 60)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		DefaultLocale:    getEnv("DEFAULT_LOCALE", "de"),
		AllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
