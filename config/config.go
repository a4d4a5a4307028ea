// Package config provides configuration management for the luagen server.
// It covers the HTTP listener, the Groq provider credential and model
// override, generation parameters, logging and the optional circuit breaker.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvAPIKey holds the provider credential when the YAML leaves it empty.
	EnvAPIKey = "GROQ_API_KEY"
	// EnvModelOverride forces a model id when present in the catalog.
	EnvModelOverride = "GROQ_MODEL"

	// DefaultBaseURL is Groq's OpenAI-compatible API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
)

// Config represents the complete server configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Provider       ProviderConfig       `yaml:"provider"`
	Generation     GenerationConfig     `yaml:"generation"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Metrics        MetricsConfig        `yaml:"metrics"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 8080)
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout covers the whole handler, including up to three
	// sequential upstream calls (default: 120s)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ShutdownTimeout specifies how long to wait for in-flight requests
	// during graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// GeneratePath is the route of the generation handler (default: /api/generate)
	GeneratePath string `yaml:"generate_path"`
}

// ProviderConfig describes the OpenAI-compatible upstream.
type ProviderConfig struct {
	// BaseURL is the API root; /models and /chat/completions are appended
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer credential. Use ${GROQ_API_KEY} in YAML or
	// leave it empty to read the environment variable directly.
	APIKey string `yaml:"api_key"`

	// ModelOverride forces a model id when the catalog contains it
	ModelOverride string `yaml:"model_override"`
}

// GenerationConfig holds completion parameters and prompt overrides.
type GenerationConfig struct {
	Temperature    float32 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	StepsMaxTokens int     `yaml:"steps_max_tokens"`
	MaxSteps       int     `yaml:"max_steps"`

	// Prompts overrides the built-in system prompt templates, keyed by
	// "generate", "fix", "update" and "steps"
	Prompts map[string]string `yaml:"prompts,omitempty"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level"`

	// Format specifies log output format: json or text
	Format string `yaml:"format"`
}

// CircuitBreakerConfig configures the breaker that guards upstream calls.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxRequests is the number of requests allowed through in half-open state
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state
	Interval time.Duration `yaml:"interval"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is the number of consecutive failures needed to trip
	FailureThreshold uint32 `yaml:"failure_threshold"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the configuration used when no file is given and the
// base every YAML file is decoded on top of.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			GeneratePath:    "/api/generate",
		},
		Provider: ProviderConfig{
			BaseURL: DefaultBaseURL,
		},
		Generation: GenerationConfig{
			Temperature:    0.2,
			MaxTokens:      1200,
			StepsMaxTokens: 500,
			MaxSteps:       14,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			MaxRequests:      1,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadFile loads configuration from a YAML file
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references.
// Unset variables without a default expand to the empty string.
func expandEnvVars(s string) (string, error) {
	if strings.Count(s, "${") > strings.Count(s, "}") {
		return "", fmt.Errorf("unterminated variable reference")
	}

	return os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	}), nil
}

// Load loads configuration from an io.Reader. The YAML is decoded on top of
// DefaultConfig, environment fallbacks are applied, then the result is validated.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv fills the credential and model override from GROQ_API_KEY and
// GROQ_MODEL when the configuration leaves them empty.
func (c *Config) ApplyEnv() {
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		c.Provider.APIKey = os.Getenv(EnvAPIKey)
	}
	if strings.TrimSpace(c.Provider.ModelOverride) == "" {
		c.Provider.ModelOverride = os.Getenv(EnvModelOverride)
	}
}

// Validate checks if the configuration is valid. A missing API key is
// deliberately accepted: it is reported per request as a configuration error.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}
	if !strings.HasPrefix(c.Server.GeneratePath, "/") {
		return fmt.Errorf("generate path must start with '/': %q", c.Server.GeneratePath)
	}

	u, err := url.Parse(c.Provider.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid provider base_url: %q", c.Provider.BaseURL)
	}

	// go-openai drops a zero temperature from the request, which would leave
	// the provider default in force.
	if c.Generation.Temperature <= 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("temperature out of range (0, 2]: %v", c.Generation.Temperature)
	}
	if c.Generation.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive: %d", c.Generation.MaxTokens)
	}
	if c.Generation.StepsMaxTokens <= 0 {
		return fmt.Errorf("steps_max_tokens must be positive: %d", c.Generation.StepsMaxTokens)
	}
	if c.Generation.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive: %d", c.Generation.MaxSteps)
	}
	for name := range c.Generation.Prompts {
		switch name {
		case "generate", "fix", "update", "steps":
		default:
			return fmt.Errorf("unknown prompt override: %s", name)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold == 0 {
			return fmt.Errorf("circuit breaker failure threshold must be positive")
		}
		if c.CircuitBreaker.Timeout < 0 || c.CircuitBreaker.Interval < 0 {
			return fmt.Errorf("negative circuit breaker durations")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path)
	}

	return nil
}
