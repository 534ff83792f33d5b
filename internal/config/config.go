package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is the base error for all configuration problems.
// Configuration errors are fatal: they are detected before any workflow
// phase runs and are never retried.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultModel             = "gpt-4o-mini"
	DefaultAPIKeyEnv         = "OPENAI_API_KEY"
	DefaultGenerationTimeout = 60 * time.Second
	DefaultRunTimeout        = 120 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
	DefaultParallel          = 1
)

// Config is the target API, generation capability, and run configuration
// consumed by a single storycheck run.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Generation GenerationConfig `yaml:"generation"`
	Run        RunConfig        `yaml:"run"`
}

// APIConfig describes the HTTP API under test.
type APIConfig struct {
	// Name is a short label used in prompts and reports.
	Name string `yaml:"name"`
	// BaseURL is the root of the target API, e.g. https://reqres.in/api.
	BaseURL string `yaml:"baseURL"`
	// Endpoints maps endpoint keys to path templates, e.g.
	// get_user: /users/{user_id}. Generated step bindings reference keys.
	Endpoints map[string]string `yaml:"endpoints"`
	// Parameters are named values substituted into path templates and
	// step placeholders, e.g. valid_user_id: "2".
	Parameters map[string]string `yaml:"parameters"`
	// Headers are applied to every request, e.g. API keys.
	Headers map[string]string `yaml:"headers"`
}

// GenerationConfig describes the text-generation capability connection.
type GenerationConfig struct {
	// BaseURL points at an OpenAI-compatible endpoint. Empty means the
	// client library default (api.openai.com).
	BaseURL     string   `yaml:"baseURL"`
	Model       string   `yaml:"model"`
	APIKeyEnv   string   `yaml:"apiKeyEnv"`
	Timeout     Duration `yaml:"timeout"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"maxTokens"`
}

// RunConfig bounds test execution.
type RunConfig struct {
	// Timeout bounds one whole suite run.
	Timeout Duration `yaml:"timeout"`
	// PerRequestTimeout bounds each HTTP call to the target.
	PerRequestTimeout Duration `yaml:"perRequestTimeout"`
	// Parallel is the maximum number of scenarios executed concurrently.
	Parallel int `yaml:"parallel"`
}

// Duration wraps time.Duration so YAML values like "60s" decode directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"60s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads, decodes, defaults, and validates a configuration file.
// Any failure wraps ErrInvalidConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Parse decodes configuration bytes with unknown fields rejected, applies
// defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Generation.Model == "" {
		c.Generation.Model = DefaultModel
	}
	if c.Generation.APIKeyEnv == "" {
		c.Generation.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = Duration(DefaultGenerationTimeout)
	}
	if c.Run.Timeout == 0 {
		c.Run.Timeout = Duration(DefaultRunTimeout)
	}
	if c.Run.PerRequestTimeout == 0 {
		c.Run.PerRequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.Run.Parallel == 0 {
		c.Run.Parallel = DefaultParallel
	}
}

// Validate checks structural soundness. Reachability of the target is not
// probed here; connection failures surface during test execution.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.baseURL is required")
	}
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.baseURL %q: %w", c.API.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.baseURL %q: scheme must be http or https", c.API.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("api.baseURL %q: missing host", c.API.BaseURL)
	}
	for key, path := range c.API.Endpoints {
		if strings.TrimSpace(key) == "" {
			return errors.New("api.endpoints contains an empty key")
		}
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("api.endpoints.%s %q: path must start with /", key, path)
		}
	}
	if c.Generation.BaseURL != "" {
		genURL, err := url.Parse(c.Generation.BaseURL)
		if err != nil || genURL.Scheme == "" || genURL.Host == "" {
			return fmt.Errorf("generation.baseURL %q is not a valid URL", c.Generation.BaseURL)
		}
	}
	if c.Generation.Timeout <= 0 {
		return errors.New("generation.timeout must be positive")
	}
	if c.Generation.MaxTokens < 0 {
		return errors.New("generation.maxTokens must not be negative")
	}
	if c.Run.Timeout <= 0 {
		return errors.New("run.timeout must be positive")
	}
	if c.Run.PerRequestTimeout <= 0 {
		return errors.New("run.perRequestTimeout must be positive")
	}
	if c.Run.Parallel < 1 {
		return errors.New("run.parallel must be at least 1")
	}
	return nil
}

// ResolveParameter looks up a captured value in the parameters map,
// falling back to the raw value when no entry exists.
func (c *Config) ResolveParameter(raw string) string {
	if v, ok := c.API.Parameters[raw]; ok {
		return v
	}
	return raw
}

// EndpointPath resolves an endpoint reference: a configured key returns its
// path template, anything starting with / is used as a literal path.
func (c *Config) EndpointPath(ref string) (string, bool) {
	if path, ok := c.API.Endpoints[ref]; ok {
		return path, true
	}
	if strings.HasPrefix(ref, "/") {
		return ref, true
	}
	return "", false
}
