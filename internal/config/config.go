package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultMaxBodySize int64 = 2 * 1024 * 1024 // 2MB
	DefaultConfigPath        = "config.yaml"
)

// ReviewConfig holds the knobs of the review pipeline itself.
type ReviewConfig struct {
	Language           string   `yaml:"language"` // natural language for comments, empty = model default
	Exclude            []string `yaml:"exclude"`  // glob patterns, matched against path and base name
	MaxTokensPerBatch  int      `yaml:"max_tokens_per_batch"`
	MaxHunksPerBatch   int      `yaml:"max_hunks_per_batch"`
	ParallelBatches    int      `yaml:"parallel_batches"`
	MaxCommentsPerCall int      `yaml:"max_comments_per_call"`

	Retry struct {
		Attempts   int           `yaml:"attempts"`
		Backoff    time.Duration `yaml:"backoff"`
		MaxBackoff time.Duration `yaml:"max_backoff"`
	} `yaml:"retry"`
}

// PromptsConfig holds configuration for prompt loading
type PromptsConfig struct {
	Dir string `yaml:"dir"` // Root directory for prompt override files
}

// StorageConfig holds configuration for run persistence
type StorageConfig struct {
	Driver  string        `yaml:"driver"` // sqlite, or empty to disable
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config holds the configuration for the diff review service
type Config struct {
	Log struct {
		Level    string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
		Format   string `yaml:"format"` // text, json
		Output   string `yaml:"output"` // stdout, stderr, /path/to/file
		Rotation struct {
			MaxSize    int  `yaml:"max_size"`    // Megabytes
			MaxBackups int  `yaml:"max_backups"` // Number of old files to keep
			MaxAge     int  `yaml:"max_age"`     // Days to keep
			Compress   bool `yaml:"compress"`
		} `yaml:"rotation"`
	} `yaml:"log"`

	Server struct {
		Port             int           `yaml:"port"`
		ConcurrencyLimit int64         `yaml:"concurrency_limit"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxBodySize      int64         `yaml:"max_body_size"`
		WebhookSecret    string        `yaml:"-"` // From Env
	} `yaml:"server"`

	GitHub struct {
		Token   string `yaml:"-"` // From Env
		BaseURL string `yaml:"base_url"` // empty = api.github.com, set for GHE
	} `yaml:"github"`

	LLM struct {
		Model          string        `yaml:"model"`
		Endpoint       string        `yaml:"endpoint"`
		APIKey         string        `yaml:"api_key"` // From YAML or Env
		Timeout        time.Duration `yaml:"timeout"`
		MaxConcurrency int           `yaml:"max_concurrency"`
	} `yaml:"llm"`

	Review ReviewConfig `yaml:"review"`

	Prompts PromptsConfig `yaml:"prompts"`

	Storage StorageConfig `yaml:"storage"`
}

// GetLogLevel returns the slog.Level based on Log.Level string
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads configuration from the YAML file and supplements it with
// environment variables. The INPUT_* names follow the GitHub Actions
// convention so the binary works unchanged as an action step.
func LoadConfig() *Config {
	cfg := &Config{}

	// Set defaults before loading
	cfg.Log.Level = "INFO"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"
	cfg.Log.Rotation.MaxSize = 100
	cfg.Log.Rotation.MaxBackups = 10
	cfg.Log.Rotation.MaxAge = 7
	cfg.Log.Rotation.Compress = true

	cfg.Server.Port = 8080
	cfg.Server.ConcurrencyLimit = 10
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.MaxBodySize = DefaultMaxBodySize

	cfg.LLM.Endpoint = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.Timeout = 120 * time.Second
	cfg.LLM.MaxConcurrency = 3

	cfg.Review.MaxTokensPerBatch = 40000
	cfg.Review.MaxHunksPerBatch = 64
	cfg.Review.ParallelBatches = 3
	cfg.Review.MaxCommentsPerCall = 30
	cfg.Review.Retry.Attempts = 3
	cfg.Review.Retry.Backoff = 1 * time.Second
	cfg.Review.Retry.MaxBackoff = 30 * time.Second

	cfg.Prompts.Dir = ""
	cfg.Storage.Timeout = 5 * time.Second

	// Try to load from YAML
	configPath := getEnv("CONFIG_PATH", DefaultConfigPath)
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Error("unmarshal config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", configPath)
	} else {
		if !os.IsNotExist(err) {
			slog.Error("read config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Debug("config not found, using defaults", "path", configPath)
	}

	// Secrets and action inputs always come from the environment
	cfg.GitHub.Token = firstEnv("INPUT_GITHUB_TOKEN", "GITHUB_TOKEN")
	cfg.LLM.APIKey = firstEnv("INPUT_API_KEY", "LLM_API_KEY", "OPENAI_API_KEY")
	cfg.Server.WebhookSecret = getEnv("WEBHOOK_SECRET", cfg.Server.WebhookSecret)

	if v := firstEnv("INPUT_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := firstEnv("INPUT_LANGUAGE"); v != "" {
		cfg.Review.Language = v
	}
	if v := firstEnv("INPUT_EXCLUDE"); v != "" {
		cfg.Review.Exclude = splitList(v)
	}

	if envPort := getEnvInt("PORT", 0); envPort != 0 {
		cfg.Server.Port = envPort
	}
	if envLogLevel := os.Getenv("LOG_LEVEL"); envLogLevel != "" {
		cfg.Log.Level = envLogLevel
	}
	if envLogFormat := os.Getenv("LOG_FORMAT"); envLogFormat != "" {
		cfg.Log.Format = envLogFormat
	}
	if envLogOutput := getEnv("LOG_OUTPUT", ""); envLogOutput != "" {
		cfg.Log.Output = envLogOutput
	}

	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.GitHub.Token == "" {
		errs = append(errs, "GITHUB_TOKEN is required")
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "LLM API key is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}
	if c.Review.ParallelBatches < 1 {
		errs = append(errs, fmt.Sprintf("parallel_batches must be >= 1, got %d", c.Review.ParallelBatches))
	}
	if c.Review.Retry.Attempts < 1 {
		errs = append(errs, fmt.Sprintf("retry attempts must be >= 1, got %d", c.Review.Retry.Attempts))
	}
	if c.Storage.Driver != "" && c.Storage.Driver != "sqlite" {
		errs = append(errs, fmt.Sprintf("unsupported storage driver: %s", c.Storage.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// splitList splits a comma-separated action input into trimmed entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
