package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreLocal = "local"
	StoreS3    = "s3"
	StoreMinio = "minio"
)

// Config holds application configuration.
type Config struct {
	Port                 string   `mapstructure:"PORT"`
	Env                  string   `mapstructure:"ENV"`
	CORSAllowOrigin      []string `mapstructure:"-"`
	ObjectStoreType      string   `mapstructure:"OBJECT_STORE"`
	LocalStoreDir        string   `mapstructure:"LOCAL_STORE_DIR"`
	AWSRegion            string   `mapstructure:"AWS_REGION"`
	S3Bucket             string   `mapstructure:"S3_BUCKET"`
	S3Prefix             string   `mapstructure:"S3_PREFIX"`
	SSEKMSKeyID          string   `mapstructure:"SSE_KMS_KEY_ID"`
	MinioEndpoint        string   `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey       string   `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey       string   `mapstructure:"MINIO_SECRET_KEY"`
	MinioUseSSL          bool     `mapstructure:"MINIO_USE_SSL"`
	MinioBucket          string   `mapstructure:"MINIO_BUCKET"`
	LLMProvider          string   `mapstructure:"LLM_PROVIDER"`
	LLMModel             string   `mapstructure:"LLM_MODEL"`
	OpenAIAPIKey         string   `mapstructure:"OPENAI_API_KEY"`
	OpenAITimeoutSeconds int      `mapstructure:"OPENAI_TIMEOUT_SECONDS"`
	OpenAIBaseURL        string   `mapstructure:"OPENAI_BASE_URL"`
	OpenAIMaxAttempts    int      `mapstructure:"OPENAI_MAX_ATTEMPTS"`
	// Models that reject temperature 0, from LLM_NO_TEMP0_MODELS.
	NoZeroTempModels     []string      `mapstructure:"-"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	JWKSURL              string        `mapstructure:"AUTH_JWKS_URL"`
	JWKSRefresh          time.Duration `mapstructure:"AUTH_JWKS_REFRESH"`
	ProcessingQueueURL   string        `mapstructure:"PROCESSING_QUEUE_URL"`
	ProcessingMode       string        `mapstructure:"PROCESSING_MODE"`
	StuckProcessingAfter time.Duration `mapstructure:"STUCK_PROCESSING_AFTER"`
	LogFormat            string        `mapstructure:"LOG_FORMAT"`

	// Pool overrides; zero keeps the profile default.
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBConnMaxIdleTime time.Duration `mapstructure:"DB_CONN_MAX_IDLE_TIME"`
	DBPingTimeout     time.Duration `mapstructure:"DB_PING_TIMEOUT"`

	WorkerConcurrency        int `mapstructure:"WORKER_CONCURRENCY"`
	SQSVisibilityTimeoutSecs int `mapstructure:"SQS_VISIBILITY_TIMEOUT_SECONDS"`
	ShutdownTimeoutSeconds   int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS"`
}

var keys = []string{
	"PORT", "ENV", "CORS_ALLOW_ORIGINS", "OBJECT_STORE", "LOCAL_STORE_DIR",
	"AWS_REGION", "S3_BUCKET", "S3_PREFIX", "SSE_KMS_KEY_ID",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_USE_SSL", "MINIO_BUCKET",
	"LLM_PROVIDER", "LLM_MODEL", "OPENAI_API_KEY", "OPENAI_TIMEOUT_SECONDS",
	"OPENAI_BASE_URL", "OPENAI_MAX_ATTEMPTS", "LLM_NO_TEMP0_MODELS",
	"DATABASE_URL", "JWT_SECRET", "AUTH_JWKS_URL", "AUTH_JWKS_REFRESH", "PROCESSING_QUEUE_URL", "PROCESSING_MODE",
	"STUCK_PROCESSING_AFTER", "LOG_FORMAT",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME", "DB_PING_TIMEOUT",
	"WORKER_CONCURRENCY", "SQS_VISIBILITY_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT_SECONDS",
}

// Load reads configuration from the environment, falling back to a local
// .env file and then to defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "dev")
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:5173")
	v.SetDefault("OBJECT_STORE", StoreLocal)
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("MINIO_BUCKET", "documents")
	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_TIMEOUT_SECONDS", 60)
	v.SetDefault("OPENAI_MAX_ATTEMPTS", 3)
	v.SetDefault("AUTH_JWKS_REFRESH", "1h")
	v.SetDefault("PROCESSING_MODE", "sync")
	v.SetDefault("STUCK_PROCESSING_AFTER", "15m")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("SQS_VISIBILITY_TIMEOUT_SECONDS", 1200)
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 30)

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	cfg.ProcessingMode = normalizeProcessingMode(cfg.ProcessingMode)
	cfg.CORSAllowOrigin = splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS"))
	cfg.NoZeroTempModels = splitAndTrim(v.GetString("LLM_NO_TEMP0_MODELS"))
	if cfg.StuckProcessingAfter <= 0 {
		cfg.StuckProcessingAfter = 15 * time.Minute
	}
	if cfg.OpenAITimeoutSeconds <= 0 {
		cfg.OpenAITimeoutSeconds = 60
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}

// Validate reports settings that make the process unable to run.
func (c Config) Validate() error {
	switch c.ObjectStoreType {
	case StoreS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when OBJECT_STORE=s3")
		}
	case StoreMinio:
		if c.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when OBJECT_STORE=minio")
		}
	}
	if c.ProcessingMode == "queue" && c.ProcessingQueueURL == "" {
		return fmt.Errorf("PROCESSING_QUEUE_URL is required when PROCESSING_MODE=queue")
	}
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// OpenAITimeout returns the per-request timeout for the LLM client.
func (c Config) OpenAITimeout() time.Duration {
	return time.Duration(c.OpenAITimeoutSeconds) * time.Second
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "test":
		return "test"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StoreS3:
		return StoreS3
	case StoreMinio:
		return StoreMinio
	default:
		return StoreLocal
	}
}

func normalizeProcessingMode(raw string) string {
	if strings.ToLower(strings.TrimSpace(raw)) == "queue" {
		return "queue"
	}
	return "sync"
}
