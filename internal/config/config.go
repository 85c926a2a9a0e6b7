// Package config loads a single immutable Config struct from the
// environment and passes it by reference to every component; nothing
// here is a package-level mutable var.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is loaded once at startup and passed by reference. Nothing in
// this package is mutated after Load returns.
type Config struct {
	// Vision client / retry
	GeminiAPIKey   string
	ModelName      string
	RetryAttempts  int
	RetryMinWait   time.Duration
	RetryMaxWait   time.Duration
	VisionDeadline time.Duration

	// Preprocessor
	RasterDPI           int
	MaxImageDimension   int
	EnablePreprocessing bool
	MaxUploadSizeBytes  int64

	// Database
	DatabaseURL          string
	DBPoolMaxConns       int32
	DBTransactionTimeout time.Duration

	// Search indexing
	FTSLanguages             []string
	FTSPartialIndexLanguages []string

	// Company resolver
	NormalizeTaxID      bool
	TaxIDFallbackToName bool

	// Duplicate-upload coalescing
	RedisAddr            string
	DuplicateCheckWindow time.Duration

	// Partition maintenance
	ArchivePartitionsOlderThanYears int
	ArchiveJobCron                  string

	// HTTP server
	Port           string
	UploadDir      string
	AllowedOrigins string

	// Orchestrator outer deadline
	OrchestratorDeadline time.Duration
}

// Load reads the environment (optionally pre-populated from a .env
// file, for local-dev convenience) and returns a fully-populated,
// immutable Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is the common case in deployed environments;
		// this is not fatal.
	}

	cfg := &Config{
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		ModelName:      getEnv("MODEL_NAME", "gemini-2.5-flash"),
		RetryAttempts:  getEnvInt("API_RETRY_ATTEMPTS", 3),
		RetryMinWait:   getEnvSeconds("API_RETRY_MIN_WAIT", 2),
		RetryMaxWait:   getEnvSeconds("API_RETRY_MAX_WAIT", 10),
		VisionDeadline: getEnvSeconds("VISION_CALL_DEADLINE", 60),

		RasterDPI:           getEnvInt("RASTER_DPI", 200),
		MaxImageDimension:   getEnvInt("MAX_IMAGE_DIMENSION", 2000),
		EnablePreprocessing: getEnvBool("ENABLE_IMAGE_PREPROCESSING", true),
		MaxUploadSizeBytes:  int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 20)) * 1024 * 1024,

		DatabaseURL:          getEnv("DATABASE_URL", "postgres://localhost:5432/invoices"),
		DBPoolMaxConns:       int32(getEnvInt("DB_POOL_MAX_CONNS", 10)),
		DBTransactionTimeout: getEnvSeconds("DB_TRANSACTION_TIMEOUT", 30),

		FTSLanguages:             getEnvList("FTS_LANGUAGES", []string{"simple", "english"}),
		FTSPartialIndexLanguages: getEnvList("FTS_PARTIAL_INDEX_LANGUAGES", []string{"russian"}),

		NormalizeTaxID:      getEnvBool("NORMALIZE_TAX_ID", true),
		TaxIDFallbackToName: getEnvBool("TAX_ID_FALLBACK_TO_NAME", true),

		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		DuplicateCheckWindow: getEnvSeconds("DUPLICATE_CHECK_WINDOW_SECONDS", 60),

		ArchivePartitionsOlderThanYears: getEnvInt("ARCHIVE_PARTITIONS_OLDER_THAN_YEARS", 7),
		ArchiveJobCron:                  getEnv("ARCHIVE_JOB_CRON", "0 3 1 * *"),

		Port:           getEnv("PORT", "8080"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),

		OrchestratorDeadline: getEnvSeconds("ORCHESTRATOR_DEADLINE_SECONDS", 300),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defSeconds)) * time.Second
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
