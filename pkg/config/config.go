// Package config provides configuration structures and loading logic for the gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Provider  ProviderConfig  `yaml:"provider"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Policy    PolicyConfig    `yaml:"policy"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address      string     `yaml:"address"`
	CORS         CORSConfig `yaml:"cors"`
	ReadTimeout  Duration   `yaml:"read_timeout"`
	WriteTimeout Duration   `yaml:"write_timeout"`

	// TrustedProxies lists direct peers whose X-Forwarded-For header is
	// trusted when resolving the client address for rate limiting.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// CORSConfig controls the CORS response headers.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allow_origins"`
	AllowMethods     []string `yaml:"allow_methods"`
	AllowHeaders     []string `yaml:"allow_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// AuthConfig selects the active auth backend and token parameters.
type AuthConfig struct {
	Backend    string            `yaml:"backend"` // null, token, static
	SigningKey string            `yaml:"signing_key"`
	TokenTTL   Duration          `yaml:"token_ttl"`
	Users      map[string]string `yaml:"users"` // static backend: username -> password
}

// RateLimitConfig controls the per-source-address request window.
type RateLimitConfig struct {
	Requests         int      `yaml:"requests"`
	Window           Duration `yaml:"window"`
	TrustedAddresses []string `yaml:"trusted_addresses"`
}

// ProviderConfig holds the upstream LLM provider settings.
type ProviderConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	Models         []string `yaml:"models"`
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	BackoffBase    Duration `yaml:"backoff_base"`

	// CircuitBreaker guards the provider when enabled.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig controls the optional provider circuit breaker.
type CircuitBreakerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	MaxFailures int      `yaml:"max_failures"`
	Cooldown    Duration `yaml:"cooldown"`
}

// PromptsConfig controls template seeding and hot reload.
type PromptsConfig struct {
	Dir   string `yaml:"dir"`   // optional directory of template YAML files
	Watch bool   `yaml:"watch"` // reload user templates on file changes
}

// PolicyConfig holds optional Rego access-policy modules keyed by name.
type PolicyConfig struct {
	Entrypoint string            `yaml:"entrypoint"`
	Modules    map[string]string `yaml:"modules"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Duration is a yaml-friendly time.Duration ("30s", "1m").
type Duration time.Duration

// UnmarshalYAML parses Go duration strings and bare second counts.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if secs, err := strconv.Atoi(value.Value); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(120 * time.Second),
			CORS: CORSConfig{
				AllowOrigins:     []string{"*"},
				AllowMethods:     []string{"*"},
				AllowHeaders:     []string{"*"},
				AllowCredentials: true,
			},
		},
		Auth: AuthConfig{
			Backend:  "token",
			TokenTTL: Duration(time.Hour),
		},
		RateLimit: RateLimitConfig{
			Requests: 10,
			Window:   Duration(60 * time.Second),
		},
		Provider: ProviderConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Models:         []string{"openai/gpt-4", "openai/gpt-3.5-turbo", "anthropic/claude-3-opus"},
			RequestTimeout: Duration(30 * time.Second),
			MaxRetries:     3,
			BackoffBase:    Duration(time.Second),
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Cooldown:    Duration(30 * time.Second),
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("MODELGATE_LISTEN_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("MODELGATE_SIGNING_KEY"); val != "" {
		cfg.Auth.SigningKey = val
	}
	if val := os.Getenv("MODELGATE_AUTH_BACKEND"); val != "" {
		cfg.Auth.Backend = val
	}
	if val := os.Getenv("MODELGATE_PROVIDER_API_KEY"); val != "" {
		cfg.Provider.APIKey = val
	}
	if val := os.Getenv("MODELGATE_PROVIDER_BASE_URL"); val != "" {
		cfg.Provider.BaseURL = val
	}
	if val := os.Getenv("MODELGATE_PROVIDER_MODELS"); val != "" {
		cfg.Provider.Models = splitList(val)
	}
	if val := os.Getenv("MODELGATE_TRUSTED_ADDRESSES"); val != "" {
		cfg.RateLimit.TrustedAddresses = splitList(val)
	}
	if val := os.Getenv("MODELGATE_TRUSTED_PROXIES"); val != "" {
		cfg.Server.TrustedProxies = splitList(val)
	}
	if val := os.Getenv("MODELGATE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("MODELGATE_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("MODELGATE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("MODELGATE_PROMPTS_DIR"); val != "" {
		cfg.Prompts.Dir = val
	}
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address must not be empty")
	}
	if c.Auth.Backend != "null" && c.Auth.SigningKey == "" {
		return fmt.Errorf("auth signing key is required for backend %q", c.Auth.Backend)
	}
	if c.Auth.TokenTTL.Std() <= 0 {
		return fmt.Errorf("auth token TTL must be positive")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate limit request ceiling must be positive")
	}
	if c.RateLimit.Window.Std() <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base URL must not be empty")
	}
	if len(c.Provider.Models) == 0 {
		return fmt.Errorf("at least one provider model must be configured")
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("provider max retries must not be negative")
	}
	if c.Provider.BackoffBase.Std() <= 0 {
		return fmt.Errorf("provider backoff base must be positive")
	}
	if c.Provider.RequestTimeout.Std() <= 0 {
		return fmt.Errorf("provider request timeout must be positive")
	}
	return nil
}
