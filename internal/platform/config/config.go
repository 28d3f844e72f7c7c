package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr                  string
	Environment           string
	DatabaseURL           string
	JWTSecret             string
	SealSecret            string
	SealKeyID             string
	RetiredSealKeyIDs     []string
	JurisdictionProfiles  string
	IssuerName            string
	VerifyBaseURL         string
	RenderPoolSize        int
	RenderAcquireTimeout  time.Duration
	RenderTimeout         time.Duration
	DocumentOwnerPassword string
	MaxBodyBytes          int64
	RateLimitPerMinute    int
	RunMigrations         bool
	LedgerPath            string
}

// Load reads the environment after merging any .env files listed in files
// (".env" when none are given). Missing files are not an error.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("env file not loaded", "file", f, "err", err)
		}
	}
	return Config{
		Addr:                  getEnv("APP_ADDR", ":8080"),
		Environment:           getEnv("APP_ENV", "development"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		SealSecret:            getEnv("SEAL_SECRET", ""),
		SealKeyID:             getEnv("SEAL_KEY_ID", "k1"),
		RetiredSealKeyIDs:     getEnvList("SEAL_RETIRED_KEY_IDS"),
		JurisdictionProfiles:  getEnv("JURISDICTION_PROFILES", ""),
		IssuerName:            getEnv("ISSUER_NAME", ""),
		VerifyBaseURL:         getEnv("VERIFY_BASE_URL", ""),
		RenderPoolSize:        getEnvInt("RENDER_POOL_SIZE", 4),
		RenderAcquireTimeout:  getEnvDuration("RENDER_ACQUIRE_TIMEOUT", 10*time.Second),
		RenderTimeout:         getEnvDuration("RENDER_TIMEOUT", 30*time.Second),
		DocumentOwnerPassword: getEnv("DOCUMENT_OWNER_PASSWORD", ""),
		MaxBodyBytes:          int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		RunMigrations:         getEnvBool("RUN_MIGRATIONS", true),
		LedgerPath:            getEnv("LEDGER_PATH", "paystub.db"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// Validate checks the settings the HTTP service needs. The CLI only needs
// ValidateSealing.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Environment == "production" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if err := c.ValidateSealing(); err != nil {
		return err
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

func (c Config) ValidateSealing() error {
	if strings.TrimSpace(c.SealSecret) == "" {
		return fmt.Errorf("SEAL_SECRET is required")
	}
	if strings.TrimSpace(c.SealKeyID) == "" {
		return fmt.Errorf("SEAL_KEY_ID must not be empty")
	}
	if c.RenderPoolSize < 1 {
		return fmt.Errorf("RENDER_POOL_SIZE must be at least 1")
	}
	if c.RenderAcquireTimeout <= 0 || c.RenderTimeout <= 0 {
		return fmt.Errorf("RENDER_ACQUIRE_TIMEOUT and RENDER_TIMEOUT must be positive")
	}
	if c.VerifyBaseURL != "" && !strings.HasPrefix(c.VerifyBaseURL, "https://") && !strings.HasPrefix(c.VerifyBaseURL, "http://") {
		return fmt.Errorf("VERIFY_BASE_URL must be an http(s) URL")
	}
	return nil
}
