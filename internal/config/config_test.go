package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantErr     bool
		errContains string
		check       func(*testing.T, *Config)
	}{
		{
			name: "minimal config applies defaults",
			input: `api:
  baseURL: https://example.test/api
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultModel, cfg.Generation.Model)
				assert.Equal(t, DefaultAPIKeyEnv, cfg.Generation.APIKeyEnv)
				assert.Equal(t, DefaultGenerationTimeout, cfg.Generation.Timeout.Std())
				assert.Equal(t, DefaultRunTimeout, cfg.Run.Timeout.Std())
				assert.Equal(t, DefaultRequestTimeout, cfg.Run.PerRequestTimeout.Std())
				assert.Equal(t, DefaultParallel, cfg.Run.Parallel)
			},
		},
		{
			name: "full config round trip",
			input: `api:
  name: demo
  baseURL: http://localhost:8080
  endpoints:
    get_user: /users/{user_id}
  parameters:
    valid_user_id: "2"
  headers:
    x-api-key: secret
generation:
  model: test-model
  timeout: 5s
  temperature: 0.7
  maxTokens: 256
run:
  timeout: 30s
  perRequestTimeout: 2s
  parallel: 4
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "demo", cfg.API.Name)
				assert.Equal(t, "/users/{user_id}", cfg.API.Endpoints["get_user"])
				assert.Equal(t, "secret", cfg.API.Headers["x-api-key"])
				assert.Equal(t, 5*time.Second, cfg.Generation.Timeout.Std())
				assert.InDelta(t, 0.7, cfg.Generation.Temperature, 0.001)
				assert.Equal(t, 256, cfg.Generation.MaxTokens)
				assert.Equal(t, 4, cfg.Run.Parallel)
			},
		},
		{
			name:        "missing baseURL",
			input:       "api:\n  name: demo\n",
			wantErr:     true,
			errContains: "api.baseURL is required",
		},
		{
			name: "unsupported scheme",
			input: `api:
  baseURL: ftp://example.test
`,
			wantErr:     true,
			errContains: "scheme must be http or https",
		},
		{
			name: "endpoint path without leading slash",
			input: `api:
  baseURL: https://example.test
  endpoints:
    get_user: users/2
`,
			wantErr:     true,
			errContains: "must start with /",
		},
		{
			name: "invalid duration",
			input: `api:
  baseURL: https://example.test
run:
  timeout: fast
`,
			wantErr:     true,
			errContains: "invalid duration",
		},
		{
			name: "negative parallel",
			input: `api:
  baseURL: https://example.test
run:
  parallel: -2
`,
			wantErr:     true,
			errContains: "run.parallel",
		},
		{
			name: "unknown field rejected",
			input: `api:
  baseURL: https://example.test
target:
  retries: 3
`,
			wantErr:     true,
			errContains: "decode config",
		},
		{
			name: "invalid generation baseURL",
			input: `api:
  baseURL: https://example.test
generation:
  baseURL: "not a url"
`,
			wantErr:     true,
			errContains: "generation.baseURL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file wraps ErrInvalidConfig", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("valid file loads", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storycheck.yaml")
		require.NoError(t, os.WriteFile(path, []byte("api:\n  baseURL: https://example.test\n"), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "https://example.test", cfg.API.BaseURL)
	})

	t.Run("malformed yaml wraps ErrInvalidConfig", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storycheck.yaml")
		require.NoError(t, os.WriteFile(path, []byte("api: ["), 0644))

		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestStarterYAMLParses(t *testing.T) {
	cfg, err := Parse([]byte(StarterYAML))
	require.NoError(t, err)

	assert.Equal(t, "reqres", cfg.API.Name)
	assert.Equal(t, "https://reqres.in/api", cfg.API.BaseURL)
	assert.Equal(t, "/users/{user_id}", cfg.API.Endpoints["get_user"])
	assert.Equal(t, "2", cfg.API.Parameters["valid_user_id"])
	assert.Equal(t, 120*time.Second, cfg.Run.Timeout.Std())
}

func TestWriteStarter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storycheck.yaml")

	require.NoError(t, WriteStarter(path, false))

	err := WriteStarter(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, WriteStarter(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "reqres", cfg.API.Name)
}

func TestResolveParameter(t *testing.T) {
	cfg := &Config{API: APIConfig{Parameters: map[string]string{"valid_user_id": "2"}}}

	assert.Equal(t, "2", cfg.ResolveParameter("valid_user_id"))
	assert.Equal(t, "42", cfg.ResolveParameter("42"))
}

func TestEndpointPath(t *testing.T) {
	cfg := &Config{API: APIConfig{Endpoints: map[string]string{"get_user": "/users/{user_id}"}}}

	path, ok := cfg.EndpointPath("get_user")
	require.True(t, ok)
	assert.Equal(t, "/users/{user_id}", path)

	path, ok = cfg.EndpointPath("/health")
	require.True(t, ok)
	assert.Equal(t, "/health", path)

	_, ok = cfg.EndpointPath("unknown_endpoint")
	assert.False(t, ok)
}
