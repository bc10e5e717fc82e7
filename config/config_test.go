package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmwrapper/internal/security"
)

const testYAML = `
log:
  level: WARNING
security:
  mode: strict
worker_pool:
  size: 4
server:
  addr: ":9000"
  metrics_endpoint: /internal/metrics
providers:
  openai:
    api_key: "${TEST_CFG_OPENAI_KEY}"
    model: gpt-4o-mini
    options:
      temperature: 0.2
      max_tokens: 256
  ollama:
    base_url: "${TEST_CFG_OLLAMA_URL:-http://localhost:11434}"
    model: llama3.1
  anthropic:
    api_key: "${TEST_CFG_UNSET_KEY}"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearProviderEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Equal(t, security.ModeAdvisory, cfg.SecurityMode())
	assert.Equal(t, 8, cfg.WorkerPool.Size)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Server.MetricsEnabled)
	assert.Equal(t, "/metrics", cfg.Server.MetricsEndpoint)
	assert.Empty(t, cfg.Providers)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("TEST_CFG_OPENAI_KEY", "sk-from-yaml-env")
	path := writeFile(t, dir, "llm.yaml", testYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "WARNING", cfg.Log.Level)
	assert.Equal(t, security.ModeStrict, cfg.SecurityMode())
	assert.Equal(t, 4, cfg.WorkerPool.Size)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.True(t, cfg.Server.MetricsEnabled, "unset keys keep their defaults")

	openai := cfg.Provider("openai")
	assert.Equal(t, "sk-from-yaml-env", openai.APIKey)
	assert.Equal(t, "gpt-4o-mini", openai.Model)
	assert.Equal(t, 0.2, openai.Options["temperature"])
	assert.Equal(t, 256, openai.Options["max_tokens"])

	assert.Equal(t, "http://localhost:11434", cfg.Provider("ollama").BaseURL)
	assert.Equal(t, "", cfg.Provider("anthropic").APIKey, "unresolved placeholders are cleared")
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "custom.yaml", "worker_pool:\n  size: 2\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.WorkerPool.Size)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearProviderEnv(t)
	t.Chdir(t.TempDir())

	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "bad.yaml", "providers: [unclosed\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "ANTHROPIC_API_KEY=sk-ant-from-dotenv\nLLMWRAPPER_SECURITY_MODE=strict\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("ANTHROPIC_API_KEY")
		_ = os.Unsetenv("LLMWRAPPER_SECURITY_MODE")
	})
	// godotenv does not override variables that are already set.
	require.NoError(t, os.Unsetenv("ANTHROPIC_API_KEY"))
	require.NoError(t, os.Unsetenv("LLMWRAPPER_SECURITY_MODE"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-from-dotenv", cfg.Provider("anthropic").APIKey)
	assert.Equal(t, security.ModeStrict, cfg.SecurityMode())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "sk-from-real-env")
	path := writeFile(t, dir, "llm.yaml", "providers:\n  openai:\n    api_key: sk-from-file\n    model: gpt-4o\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-real-env", cfg.Provider("openai").APIKey)
	assert.Equal(t, "gpt-4o", cfg.Provider("openai").Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad security mode", mutate: func(c *Config) { c.Security.Mode = "paranoid" }, wantErr: true},
		{name: "negative pool", mutate: func(c *Config) { c.WorkerPool.Size = -1 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.HTTP.Timeout = -5 }, wantErr: true},
		{name: "relative metrics endpoint", mutate: func(c *Config) { c.Server.MetricsEndpoint = "metrics" }, wantErr: true},
		{name: "metrics disabled ignores endpoint", mutate: func(c *Config) {
			c.Server.MetricsEnabled = false
			c.Server.MetricsEndpoint = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := buildDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPClientConfig(t *testing.T) {
	cfg := buildDefaultConfig()
	cfg.HTTP.Timeout = 45
	hc := cfg.HTTPClientConfig()
	assert.Equal(t, 45*time.Second, hc.Timeout)
	assert.Equal(t, 600*time.Second, hc.ResponseHeaderTimeout)
}
