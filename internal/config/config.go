package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Sync server
	WSBaseURL  string
	APIBaseURL string

	// Credentials: a tokens file ({"access","refresh"}) wins over a static token
	AuthTokensFile string
	AccessToken    string

	// Scopes the CLI attaches to
	ProjectID string
	UserID    string

	ReconnectDelay  time.Duration
	PersistDebounce time.Duration
	PersistTimeout  time.Duration
	HTTPTimeout     time.Duration

	// Local status API
	StatusHost string
	StatusPort string

	// Save journal
	JournalEnabled bool
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		WSBaseURL:  getEnv("WS_BASE_URL", "ws://localhost:8000"),
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8000"),

		AuthTokensFile: getEnv("AUTH_TOKENS_FILE", ""),
		AccessToken:    getEnv("ACCESS_TOKEN", ""),

		ProjectID: getEnv("PROJECT_ID", ""),
		UserID:    getEnv("USER_ID", ""),

		ReconnectDelay:  getEnvDuration("RECONNECT_DELAY", 5*time.Second),
		PersistDebounce: getEnvDuration("PERSIST_DEBOUNCE", 2*time.Second),
		PersistTimeout:  getEnvDuration("PERSIST_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 15*time.Second),

		StatusHost: getEnv("STATUS_HOST", "localhost"),
		StatusPort: getEnv("STATUS_PORT", "8081"),

		JournalEnabled: getEnvBool("JOURNAL_ENABLED", false),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "livesync"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the client cannot run without
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.WSBaseURL, "ws://") && !strings.HasPrefix(c.WSBaseURL, "wss://") {
		return fmt.Errorf("WS_BASE_URL must start with ws:// or wss://, got %q", c.WSBaseURL)
	}
	if c.ProjectID == "" && c.UserID == "" {
		return fmt.Errorf("PROJECT_ID or USER_ID is required")
	}
	if c.AuthTokensFile == "" && c.AccessToken == "" {
		return fmt.Errorf("AUTH_TOKENS_FILE or ACCESS_TOKEN is required")
	}
	if c.ReconnectDelay <= 0 || c.PersistDebounce <= 0 || c.PersistTimeout <= 0 {
		return fmt.Errorf("RECONNECT_DELAY, PERSIST_DEBOUNCE and PERSIST_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// StatusAddr is the listen address of the local status API
func (c *Config) StatusAddr() string {
	return fmt.Sprintf("%s:%s", c.StatusHost, c.StatusPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5s", "250ms") or plain milliseconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms := getEnvInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
