package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// State store backends.
const (
	StateStoreMemory   = "memory"
	StateStorePostgres = "postgres"
	StateStoreRedis    = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DefaultLocale string
	GeoIPDBPath   string

	DatabaseURL   string
	RedisURL      string
	QueueRedisURL string
	StateStore    string
	StateTTL      time.Duration

	VideoAPIKey  string
	VideoAPIBase string
	VideoModel   string

	SubmitConcurrency int
	WorkerConcurrency int
	SubmitTimeout     time.Duration
	PollInterval      time.Duration
	PollMaxWait       time.Duration
	StatusTimeout     time.Duration
	DownloadTimeout   time.Duration

	FFmpegPath     string
	WorkDir        string
	StoragePath    string
	StorageBaseURL string

	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PresignTTL      time.Duration

	CostPerSecond float64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	APITokens        []string
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		QueueRedisURL: os.Getenv("QUEUE_REDIS_URL"),
		StateStore:    strings.ToLower(getEnv("STATE_STORE", StateStoreMemory)),
		StateTTL:      time.Hour * time.Duration(getEnvInt("STATE_TTL_HOURS", 24)),

		VideoAPIKey:  getEnv("VIDEO_API_KEY", getEnv("MODEL_VIDEO_API_KEY", os.Getenv("MODEL_AGENT_API_KEY"))),
		VideoAPIBase: getEnv("VIDEO_API_BASE", getEnv("MODEL_VIDEO_API_BASE", "https://ark.cn-beijing.volces.com/api/v3")),
		VideoModel:   getEnv("VIDEO_MODEL", os.Getenv("MODEL_VIDEO_NAME")),

		SubmitConcurrency: getEnvInt("SUBMIT_CONCURRENCY", 3),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		SubmitTimeout:     time.Second * time.Duration(getEnvInt("SUBMIT_TIMEOUT_SECONDS", 30)),
		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)),
		PollMaxWait:       time.Second * time.Duration(getEnvInt("POLL_MAX_WAIT_SECONDS", 600)),
		StatusTimeout:     time.Second * time.Duration(getEnvInt("STATUS_TIMEOUT_SECONDS", 10)),
		DownloadTimeout:   time.Second * time.Duration(getEnvInt("DOWNLOAD_TIMEOUT_SECONDS", 120)),

		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		WorkDir:        getEnv("WORK_DIR", os.TempDir()),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PresignTTL:      time.Hour * time.Duration(getEnvInt("S3_PRESIGN_TTL_HOURS", 168)),

		CostPerSecond: getEnvFloat("COST_PER_SECOND", 1.5),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		APITokens:        getEnvList("API_TOKENS"),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	switch cfg.StateStore {
	case StateStoreMemory:
	case StateStorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STATE_STORE=postgres")
		}
	case StateStoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when STATE_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported STATE_STORE %q", cfg.StateStore)
	}

	if cfg.QueueRedisURL != "" && cfg.StateStore == StateStoreMemory {
		return nil, fmt.Errorf("QUEUE_REDIS_URL requires a shared STATE_STORE (postgres or redis)")
	}
	if cfg.SubmitConcurrency < 1 {
		return nil, fmt.Errorf("SUBMIT_CONCURRENCY must be at least 1")
	}
	if cfg.PollInterval <= 0 || cfg.PollMaxWait <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS and POLL_MAX_WAIT_SECONDS must be positive")
	}

	return cfg, nil
}

// S3Enabled reports whether object storage is configured.
func (c *Config) S3Enabled() bool {
	return c != nil && c.S3Bucket != ""
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

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
