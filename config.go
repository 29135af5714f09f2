package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultUploadLimit    = 10 << 20
	defaultArchiveWorkers = 3
)

// LoadConfig reads the environment into a Config and validates it.
func LoadConfig() (*Config, error) {
	apiKey := getEnv("GOOGLE_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("GEMINI_API_KEY", "")
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GoogleApiKey:     apiKey,
		Model:            getEnv("GEMINI_MODEL", defaultModel),
		AnalyzerBackend:  strings.ToLower(getEnv("ANALYZER_BACKEND", "genai")),
		VerifyOnStartup:  getEnvBool("GEMINI_VERIFY_ON_STARTUP", true),
		AnalysisTimeout:  getEnvDuration("ANALYSIS_TIMEOUT", 90*time.Second),
		LegacyScoreBands: getEnvBool("MATCH_SCORE_LEGACY_BANDS", false),

		SessionTTL:     getEnvDuration("SESSION_TTL", 2*time.Hour),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", defaultUploadLimit)),

		DBUrl:          getEnv("DB_URL", ""),
		RABBITMQUrl:    getEnv("RABBITMQ_URL", ""),
		ArchiveWorkers: getEnvInt("ARCHIVE_WORKERS", defaultArchiveWorkers),
	}

	r2 := R2Config{
		AccountID: getEnv("R2_ACCCOUNT_ID", ""),
		Bucket:    getEnv("R2_BUCKET", ""),
		AccessKey: getEnv("R2_ACCESS_KEY", ""),
		SecretKey: getEnv("R2_SECRET_KEY", ""),
	}
	if r2.AccountID != "" || r2.Bucket != "" || r2.AccessKey != "" || r2.SecretKey != "" {
		cfg.R2 = &r2
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.GoogleApiKey == "" {
		return errors.New("empty GOOGLE_API_KEY in env")
	}
	if c.Model == "" {
		return errors.New("GEMINI_MODEL cannot be empty")
	}
	switch c.AnalyzerBackend {
	case "genai", "agent":
	default:
		return fmt.Errorf("unknown ANALYZER_BACKEND %q", c.AnalyzerBackend)
	}
	if c.AnalysisTimeout <= 0 {
		return errors.New("ANALYSIS_TIMEOUT must be > 0")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.ArchiveWorkers <= 0 {
		return errors.New("ARCHIVE_WORKERS must be > 0")
	}
	if c.R2 != nil {
		if c.R2.AccountID == "" {
			return errors.New("empty R2_ACCCOUNT_ID in environment")
		}
		if c.R2.Bucket == "" {
			return errors.New("empty R2_BUCKET in environment")
		}
		if c.R2.AccessKey == "" {
			return errors.New("empty R2_ACCESS_KEY in environment")
		}
		if c.R2.SecretKey == "" {
			return errors.New("empty R2_SECRET_KEY in environment")
		}
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
