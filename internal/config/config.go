// Package config provides configuration for the API server.
//
// Every setting is read from an environment variable of the same name
// (PORT, LLM_TIMEOUT, ...). An optional YAML file may provide the same keys
// in lower case; environment variables win over the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	Env                string

	// NATS settings
	NATSEnabled       bool
	NATSURL           string
	NATSClientName    string
	NATSStream        string
	NATSSubjectPrefix string
	NATSRetention     time.Duration
	NATSCAFile        string
	NATSCertFile      string
	NATSKeyFile       string
	NATSToken         string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string
	ImageModel      string
	LLMTimeout      time.Duration
	LLMMaxRetries   int

	// Assistant settings
	MaxToolRounds      int
	DefaultLanguage    string
	MaxHistoryTurns    int
	SessionIdleTimeout time.Duration

	// Storage
	StoreDriver  string
	DatabaseURL  string
	SnapshotPath string

	// Reviews
	ReviewDriver          string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ExpertBaseReviewCount int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"SERVER_READ_TIMEOUT":  30 * time.Second,
	"SERVER_WRITE_TIMEOUT": 120 * time.Second,
	"ENV":                  "production",

	"NATS_ENABLED":        false,
	"NATS_URL":            "nats://localhost:4222",
	"NATS_CLIENT_NAME":    "companion-api",
	"NATS_STREAM":         "COMPANION",
	"NATS_SUBJECT_PREFIX": "companion",
	"NATS_RETENTION":      365 * 24 * time.Hour,
	"NATS_CA_FILE":        "",
	"NATS_CERT_FILE":      "",
	"NATS_KEY_FILE":       "",
	"NATS_TOKEN":          "",

	"JWT_SECRET": "development-secret-change-in-production",

	"ANTHROPIC_API_KEY": "",
	"OPENAI_API_KEY":    "",
	"DEFAULT_LLM":       "openai",
	"LLM_MODEL":         "",
	"IMAGE_MODEL":       "",
	"LLM_TIMEOUT":       30 * time.Second,
	"LLM_MAX_RETRIES":   1,

	"MAX_TOOL_ROUNDS":      8,
	"DEFAULT_LANGUAGE":     "en",
	"MAX_HISTORY_TURNS":    0,
	"SESSION_IDLE_TIMEOUT": 30 * time.Minute,

	"STORE_DRIVER":  "memory",
	"DATABASE_URL":  "",
	"SNAPSHOT_PATH": "",

	"REVIEW_DRIVER":            "store",
	"REDIS_ADDR":               "localhost:6379",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"EXPERT_BASE_REVIEW_COUNT": 25,

	"RATE_LIMIT_REQUESTS": 60,
	"RATE_LIMIT_WINDOW":   time.Minute,

	"LOG_LEVEL": "info",

	"TRACING_ENDPOINT": "localhost:4318",
	"TRACING_ENABLED":  false,
}

// Load reads configuration from the environment, overlaid on the YAML file
// at path when path is not empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		// Server
		ServerPort:         v.GetString("PORT"),
		ServerReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
		ServerWriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		Env:                v.GetString("ENV"),

		// NATS
		NATSEnabled:       v.GetBool("NATS_ENABLED"),
		NATSURL:           v.GetString("NATS_URL"),
		NATSClientName:    v.GetString("NATS_CLIENT_NAME"),
		NATSStream:        v.GetString("NATS_STREAM"),
		NATSSubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		NATSRetention:     v.GetDuration("NATS_RETENTION"),
		NATSCAFile:        v.GetString("NATS_CA_FILE"),
		NATSCertFile:      v.GetString("NATS_CERT_FILE"),
		NATSKeyFile:       v.GetString("NATS_KEY_FILE"),
		NATSToken:         v.GetString("NATS_TOKEN"),

		// JWT
		JWTSecret: v.GetString("JWT_SECRET"),

		// LLM
		AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		DefaultLLM:      strings.ToLower(v.GetString("DEFAULT_LLM")),
		LLMModel:        v.GetString("LLM_MODEL"),
		ImageModel:      v.GetString("IMAGE_MODEL"),
		LLMTimeout:      v.GetDuration("LLM_TIMEOUT"),
		LLMMaxRetries:   v.GetInt("LLM_MAX_RETRIES"),

		// Assistant
		MaxToolRounds:      v.GetInt("MAX_TOOL_ROUNDS"),
		DefaultLanguage:    v.GetString("DEFAULT_LANGUAGE"),
		MaxHistoryTurns:    v.GetInt("MAX_HISTORY_TURNS"),
		SessionIdleTimeout: v.GetDuration("SESSION_IDLE_TIMEOUT"),

		// Storage
		StoreDriver:  strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:  v.GetString("DATABASE_URL"),
		SnapshotPath: v.GetString("SNAPSHOT_PATH"),

		// Reviews
		ReviewDriver:          strings.ToLower(v.GetString("REVIEW_DRIVER")),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		ExpertBaseReviewCount: v.GetInt("EXPERT_BASE_REVIEW_COUNT"),

		// Rate limiting
		RateLimitRequests: v.GetInt("RATE_LIMIT_REQUESTS"),
		RateLimitWindow:   v.GetDuration("RATE_LIMIT_WINDOW"),

		// Logging
		LogLevel: v.GetString("LOG_LEVEL"),

		// Tracing
		TracingEndpoint: v.GetString("TRACING_ENDPOINT"),
		TracingEnabled:  v.GetBool("TRACING_ENABLED"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ReviewDriver {
	case "store", "redis":
	default:
		return fmt.Errorf("unknown REVIEW_DRIVER %q", c.ReviewDriver)
	}

	switch c.DefaultLanguage {
	case "en", "ar":
	default:
		return fmt.Errorf("unsupported DEFAULT_LANGUAGE %q", c.DefaultLanguage)
	}

	if c.MaxToolRounds <= 0 {
		return fmt.Errorf("MAX_TOOL_ROUNDS must be positive, got %d", c.MaxToolRounds)
	}
	if c.LLMMaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must not be negative, got %d", c.LLMMaxRetries)
	}
	return nil
}
