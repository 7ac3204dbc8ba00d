package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the annai API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// RetrievalConfig holds the retrieval gate settings. SimilarityThreshold,
// TopK and FallbackContactURL have no sane defaults and must be present:
// a silently defaulted threshold would mask misconfiguration.
type RetrievalConfig struct {
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	TopK                int      `yaml:"top_k"`
	FallbackContactURL  string   `yaml:"fallback_contact_url"`
	FallbackMessage     string   `yaml:"fallback_message"`  // must contain %s for the contact URL
	NotReadyMessage     string   `yaml:"not_ready_message"` // must contain %s for the contact URL
	MaxContextChars     int      `yaml:"max_context_chars"`
}

// IndexConfig holds index artifact and search backend settings.
type IndexConfig struct {
	Dir     string      `yaml:"dir"`
	Backend string      `yaml:"backend"` // memory, redis (default: memory)
	Metric  string      `yaml:"metric"`  // l2, cosine — memory backend only (default: l2)
	Require bool        `yaml:"require"` // refuse to start without an artifact instead of serving degraded
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis search backend.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"` // 0 = provider default
}

// ChatConfig holds chat completion provider settings.
type ChatConfig struct {
	APIKey       string  `yaml:"api_key"` // falls back to embedding.api_key
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	Temperature  float32 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// RateLimitConfig holds sliding-window admission control settings.
type RateLimitConfig struct {
	Capacity  int `yaml:"capacity"`
	WindowSec int `yaml:"window_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Retrieval.MaxContextChars <= 0 {
		c.Retrieval.MaxContextChars = 4000
	}
	if c.Retrieval.FallbackMessage == "" {
		c.Retrieval.FallbackMessage = "該当情報が見つかりません。こちらからお問い合わせください: %s"
	}
	if c.Retrieval.NotReadyMessage == "" {
		c.Retrieval.NotReadyMessage = "システムは現在準備中です。お急ぎの場合はこちらからお問い合わせください: %s"
	}
	if c.Index.Dir == "" {
		c.Index.Dir = "artifacts"
	}
	if c.Index.Backend == "" {
		c.Index.Backend = "memory"
	}
	if c.Index.Metric == "" {
		c.Index.Metric = "l2"
	}
	if c.Index.Redis.KeyPrefix == "" {
		c.Index.Redis.KeyPrefix = "annai:"
	}
	if c.Index.Redis.ReadinessTimeout <= 0 {
		c.Index.Redis.ReadinessTimeout = 10
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o-mini"
	}
	if c.Chat.Temperature == 0 {
		c.Chat.Temperature = 0.2
	}
	if c.Chat.APIKey == "" {
		c.Chat.APIKey = c.Embedding.APIKey
	}
	if c.Chat.SystemPrompt == "" {
		c.Chat.SystemPrompt = "あなたは日本語で簡潔に答えるアシスタントです。" +
			"与えられたコンテキストに基づいて、事実のみを短く回答してください。" +
			"不明確な場合は推測せず、フォーム誘導が適切な場合は誘導してください。"
	}
	if c.RateLimit.Capacity <= 0 {
		c.RateLimit.Capacity = 10
	}
	if c.RateLimit.WindowSec <= 0 {
		c.RateLimit.WindowSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Retrieval.SimilarityThreshold == nil {
		return fmt.Errorf("retrieval.similarity_threshold is required")
	}
	if t := *c.Retrieval.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0,1], got %v", t)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k is required and must be positive")
	}
	if c.Retrieval.FallbackContactURL == "" {
		return fmt.Errorf("retrieval.fallback_contact_url is required")
	}
	if !strings.Contains(c.Retrieval.FallbackMessage, "%s") {
		return fmt.Errorf("retrieval.fallback_message must contain %%s for the contact URL")
	}
	if !strings.Contains(c.Retrieval.NotReadyMessage, "%s") {
		return fmt.Errorf("retrieval.not_ready_message must contain %%s for the contact URL")
	}
	switch c.Index.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("index.backend must be \"memory\" or \"redis\", got %q", c.Index.Backend)
	}
	switch c.Index.Metric {
	case "l2", "cosine":
	default:
		return fmt.Errorf("index.metric must be \"l2\" or \"cosine\", got %q", c.Index.Metric)
	}
	if c.Index.Backend == "redis" && len(c.Index.Redis.Addrs) == 0 {
		return fmt.Errorf("index.redis.addrs is required for the redis backend")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
