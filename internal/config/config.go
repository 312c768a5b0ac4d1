package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Server
	ApiPort            string
	ServiceApiPort     string
	CorsAllowedOrigins []string

	// Identity provider (Supabase)
	SupabaseURL        string
	SupabaseJwtSecret  string
	SupabaseAnonKey    string
	AllowedEmailDomain string

	// Image storage
	StorageBackend     string // "local" or "s3"
	UploadDir          string
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageBaseS3URL     string
	ImageMaxDimension  int
	ImageMaxSizeMB     int

	// Plate registry (SOAP)
	PlacaApiURL      string
	PlacaApiUsername string
	PlacaApiTimeout  time.Duration

	// DeepSeek
	DeepSeekApiKey  string
	DeepSeekApiURL  string
	DeepSeekModel   string
	DeepSeekTimeout time.Duration

	// Messaging
	NatsURL string

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	EmailLogFile    string
	MockServices    bool

	// Logging
	LogLevel  string
	LogFormat string

	// Rate limiting (public endpoints)
	RateLimitRefillRate int // tokens per second
	RateLimitBucketSize int
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		secs, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(secs) * time.Second, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "integrador")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "9090")
	cfg.CorsAllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "*"))

	cfg.SupabaseURL = strings.TrimRight(getEnv("SUPABASE_URL", ""), "/")
	cfg.SupabaseJwtSecret = getEnv("SUPABASE_JWT_SECRET", "")
	cfg.SupabaseAnonKey = getEnv("SUPABASE_ANON_KEY", "")
	cfg.AllowedEmailDomain = strings.ToLower(getEnv("ALLOWED_EMAIL_DOMAIN", ""))
	if cfg.SupabaseURL == "" && cfg.SupabaseJwtSecret == "" {
		return nil, fmt.Errorf("either SUPABASE_URL or SUPABASE_JWT_SECRET must be set")
	}

	cfg.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", "local"))
	if cfg.StorageBackend != "local" && cfg.StorageBackend != "s3" {
		return nil, fmt.Errorf("invalid STORAGE_BACKEND: %q", cfg.StorageBackend)
	}
	cfg.UploadDir = getEnv("UPLOAD_DIR", "uploads")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.ImageBaseS3URL = strings.TrimRight(getEnv("IMAGE_BASE_S3_URL", ""), "/")
	if cfg.StorageBackend == "s3" && cfg.AwsS3Bucket == "" {
		return nil, fmt.Errorf("missing required environment variable: AWS_S3_BUCKET")
	}

	cfg.PlacaApiURL = getEnv("PLACA_API_URL", "https://www.placaapi.pe/api/reg.asmx")
	cfg.PlacaApiUsername = getEnv("PLACA_API_USERNAME", "")

	cfg.DeepSeekApiKey = getEnv("DEEPSEEK_API_KEY", "")
	cfg.DeepSeekApiURL = getEnv("DEEPSEEK_API_URL", "https://api.deepseek.com/v1/chat/completions")
	cfg.DeepSeekModel = getEnv("DEEPSEEK_MODEL", "deepseek-chat")

	cfg.NatsURL = getEnv("NATS_URL", "")

	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@integrador.example.com")
	cfg.EmailLogFile = getEnv("LOG_EMAILS", "")
	cfg.MockServices = getEnv("MOCK_SERVICES", "") == "true"

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "json"))

	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.CacheTTL, err = getSeconds("CACHE_TTL_SECONDS", "60")
	if err != nil {
		return nil, err
	}

	cfg.PlacaApiTimeout, err = getSeconds("PLACA_API_TIMEOUT_SECONDS", "20")
	if err != nil {
		return nil, err
	}

	cfg.DeepSeekTimeout, err = getSeconds("DEEPSEEK_TIMEOUT_SECONDS", "30")
	if err != nil {
		return nil, err
	}

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.ImageMaxDimension, err = strconv.Atoi(getEnv("IMAGE_MAX_DIMENSION", "1600"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_MAX_DIMENSION: %w", err)
	}

	cfg.ImageMaxSizeMB, err = strconv.Atoi(getEnv("IMAGE_MAX_SIZE_MB", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid IMAGE_MAX_SIZE_MB: %w", err)
	}

	cfg.RateLimitRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_RATE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RATE: %w", err)
	}
	cfg.RateLimitBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_BURST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	return cfg, nil
}

// ImageMaxSizeBytes returns the per-upload size limit in bytes.
func (c *Config) ImageMaxSizeBytes() int64 {
	return int64(c.ImageMaxSizeMB) * 1024 * 1024
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
