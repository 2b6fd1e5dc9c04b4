package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Port        string
	Environment string
	LogLevel    string

	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ListPageSize int

	TransitionMaxAttempts     int
	TransitionBackoffInitial  time.Duration
	TransitionBackoffMax      time.Duration

	NotifierInterval  time.Duration
	NotifierBatchSize int

	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	WorkerBatchBudget  time.Duration

	ReconcilerInterval time.Duration
	PostingStaleAfter  time.Duration

	PatchBaseURL      string
	PatchAPIToken     string
	MomsBaseURL       string
	MomsAPIToken      string
	SojournerBaseURL  string
	SojournerAPIToken string
	SiteRateLimit     int // requests per minute, per destination
	SiteTimeout       time.Duration

	// TestSiteFailWith makes the test destination fail with the given
	// reason, for exercising the rollback path.
	TestSiteFailWith string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "stjames-events"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Port:        getenv("PORT", "8080"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBName:     getenv("DB_NAME", "stjames"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", ""),
		DBSSLMode:  getenv("DB_SSL_MODE", "disable"),

		ListPageSize: getenvInt("LIST_PAGE_SIZE", 50),

		TransitionMaxAttempts:    getenvInt("TRANSITION_MAX_ATTEMPTS", 10),
		TransitionBackoffInitial: getenvDuration("TRANSITION_BACKOFF_INITIAL", 20*time.Millisecond),
		TransitionBackoffMax:     getenvDuration("TRANSITION_BACKOFF_MAX", 2*time.Second),

		NotifierInterval:  getenvDuration("NOTIFIER_INTERVAL", 30*time.Second),
		NotifierBatchSize: getenvInt("NOTIFIER_BATCH_SIZE", 3),

		WorkerPollInterval: getenvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerBatchSize:    getenvInt("WORKER_BATCH_SIZE", 5),
		WorkerBatchBudget:  getenvDuration("WORKER_BATCH_BUDGET", 30*time.Second),

		ReconcilerInterval: getenvDuration("RECONCILER_INTERVAL", time.Minute),
		PostingStaleAfter:  getenvDuration("POSTING_STALE_AFTER", 15*time.Minute),

		PatchBaseURL:      getenv("PATCH_BASE_URL", "https://patch.example.com"),
		PatchAPIToken:     strings.TrimSpace(getenv("PATCH_API_TOKEN", "")),
		MomsBaseURL:       getenv("MOMS_BASE_URL", "https://moms.example.com"),
		MomsAPIToken:      strings.TrimSpace(getenv("MOMS_API_TOKEN", "")),
		SojournerBaseURL:  getenv("SOJOURNER_BASE_URL", "https://sojourner.example.com"),
		SojournerAPIToken: strings.TrimSpace(getenv("SOJOURNER_API_TOKEN", "")),
		SiteRateLimit:     getenvInt("SITE_RATE_LIMIT", 30),
		SiteTimeout:       getenvDuration("SITE_TIMEOUT", 15*time.Second),

		TestSiteFailWith: getenv("TEST_SITE_FAIL_WITH", ""),
	}

	return &cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
