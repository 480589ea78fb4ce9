package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Session / portal auth. None of these carry embedded defaults; the
	// server refuses to start without them.
	SessionSecret      string
	SessionTTL         time.Duration
	PortalUsername     string
	PortalPasswordHash string // hex SHA-256 of the portal password
	PortalPatientID    int

	// OpenAI (validator + chat orchestrator)
	OpenAIAPIKey   string
	ChatModel      string
	ValidatorModel string

	// Injection classifier (HuggingFace inference endpoint)
	ClassifierURL   string
	ClassifierToken string

	// Chat behavior
	ChatMaxToolSteps       int
	ChatTimeout            time.Duration
	ChatEnforceTenantScope bool
	ChatDisclaimerEnabled  bool
	ChatDisclaimerLevel    string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
		PortalUsername:     getEnv("PORTAL_USERNAME", ""),
		PortalPasswordHash: strings.ToLower(getEnv("PORTAL_PASSWORD_SHA256", "")),
		PortalPatientID:    getEnvAsInt("PORTAL_PATIENT_ID", 0),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		ChatModel:      getEnv("CHAT_MODEL", "gpt-4o"),
		ValidatorModel: getEnv("VALIDATOR_MODEL", "gpt-4o"),

		ClassifierURL:   getEnv("CLASSIFIER_URL", "https://api-inference.huggingface.co/models/meta-llama/Prompt-Guard-86M"),
		ClassifierToken: getEnv("CLASSIFIER_TOKEN", ""),

		ChatMaxToolSteps:       getEnvAsInt("CHAT_MAX_TOOL_STEPS", 3),
		ChatTimeout:            getEnvAsDuration("CHAT_TIMEOUT", 30*time.Second),
		ChatEnforceTenantScope: getEnvAsBool("CHAT_ENFORCE_TENANT_SCOPE", false),
		ChatDisclaimerEnabled:  getEnvAsBool("CHAT_DISCLAIMER_ENABLED", false),
		ChatDisclaimerLevel:    getEnv("CHAT_DISCLAIMER_LEVEL", "medium"),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// Validate rejects configurations that would force the server to fall back to
// embedded secrets. There are none to fall back to.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(c.SessionSecret) < 32 {
		missing = append(missing, "SESSION_SECRET (min 32 chars)")
	}
	if c.PortalUsername == "" {
		missing = append(missing, "PORTAL_USERNAME")
	}
	if len(c.PortalPasswordHash) != 64 {
		missing = append(missing, "PORTAL_PASSWORD_SHA256 (hex SHA-256)")
	}
	if c.PortalPatientID <= 0 {
		missing = append(missing, "PORTAL_PATIENT_ID")
	}
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return errors.New("config: missing or invalid: " + strings.Join(missing, ", "))
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
