// Package config loads the CLI and server configuration: an optional YAML
// file, an optional .env file and environment overrides, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"llmwrapper/internal/httpclient"
	"llmwrapper/internal/logging"
	"llmwrapper/internal/providers"
	"llmwrapper/internal/security"
	"llmwrapper/internal/workerpool"
)

// EnvConfigPath names the YAML file to load when Load gets no path.
const EnvConfigPath = "LLMWRAPPER_CONFIG"

const defaultConfigPath = "config.yaml"

// Config holds the application configuration
type Config struct {
	Log        LogConfig                   `yaml:"log"`
	Security   SecurityConfig              `yaml:"security"`
	WorkerPool WorkerPoolConfig            `yaml:"worker_pool"`
	HTTP       HTTPConfig                  `yaml:"http"`
	Server     ServerConfig                `yaml:"server"`
	Providers  map[string]providers.Config `yaml:"providers"`
}

// LogConfig mirrors the LLMWRAPPER_LOG_* variables.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SecurityConfig selects advisory or strict checks.
type SecurityConfig struct {
	Mode string `yaml:"mode"`
}

// WorkerPoolConfig sizes the pool used by the Gemini async wrapper.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// HTTPConfig holds vendor HTTP client timeouts in seconds.
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	MasterKey       string `yaml:"master_key"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	MetricsEndpoint string `yaml:"metrics_endpoint"`
}

// providerEnv maps a provider to the environment variables that configure
// it without a config file.
type providerEnv struct {
	apiKey  string
	baseURL string
}

var knownProviderEnvs = map[string]providerEnv{
	"openai":    {apiKey: "OPENAI_API_KEY", baseURL: "OPENAI_BASE_URL"},
	"anthropic": {apiKey: "ANTHROPIC_API_KEY", baseURL: "ANTHROPIC_BASE_URL"},
	"gemini":    {apiKey: "GEMINI_API_KEY", baseURL: "GEMINI_BASE_URL"},
	"grok":      {apiKey: "XAI_API_KEY", baseURL: "XAI_BASE_URL"},
	"ollama":    {apiKey: "OLLAMA_API_KEY", baseURL: "OLLAMA_BASE_URL"},
}

// Load reads .env (if present), the YAML file at path (or $LLMWRAPPER_CONFIG,
// or ./config.yaml when it exists) and applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := buildDefaultConfig()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigPath
	}
	if err := loadFile(cfg, path, explicit); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	clearUnresolvedKeys(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildDefaultConfig() *Config {
	return &Config{
		Log:        LogConfig{Level: "INFO"},
		Security:   SecurityConfig{Mode: string(security.ModeAdvisory)},
		WorkerPool: WorkerPoolConfig{Size: workerpool.DefaultSize},
		HTTP:       HTTPConfig{Timeout: 600, ResponseHeaderTimeout: 600},
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsEnabled:  true,
			MetricsEndpoint: "/metrics",
		},
		Providers: make(map[string]providers.Config),
	}
}

// loadFile merges the YAML file into cfg. A missing file is an error only
// when the path was given explicitly.
func loadFile(cfg *Config, path string, explicit bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expandString(string(raw))), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]providers.Config)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. A variable that is unset
// or empty takes the default when one is given; otherwise the placeholder is
// left as is.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		if val := os.Getenv(groups[1]); val != "" {
			return val
		}
		if groups[2] != "" {
			return groups[3]
		}
		return match
	})
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(logging.EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(logging.EnvLogFile); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("LLMWRAPPER_SECURITY_MODE"); v != "" {
		cfg.Security.Mode = v
	}
	if err := envInt("LLMWRAPPER_WORKER_POOL_SIZE", &cfg.WorkerPool.Size); err != nil {
		return err
	}
	if err := envInt(httpclient.EnvTimeout, &cfg.HTTP.Timeout); err != nil {
		return err
	}
	if err := envInt(httpclient.EnvResponseHeaderTimeout, &cfg.HTTP.ResponseHeaderTimeout); err != nil {
		return err
	}
	if v := os.Getenv("LLMWRAPPER_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LLMWRAPPER_MASTER_KEY"); v != "" {
		cfg.Server.MasterKey = v
	}
	if v := os.Getenv("LLMWRAPPER_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LLMWRAPPER_METRICS_ENABLED %q: %w", v, err)
		}
		cfg.Server.MetricsEnabled = b
	}

	for name, env := range knownProviderEnvs {
		key, baseURL := os.Getenv(env.apiKey), os.Getenv(env.baseURL)
		if key == "" && baseURL == "" {
			continue
		}
		p := cfg.Providers[name]
		if key != "" {
			p.APIKey = key
		}
		if baseURL != "" {
			p.BaseURL = baseURL
		}
		cfg.Providers[name] = p
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

// clearUnresolvedKeys drops API keys that still hold a ${VAR} placeholder so
// the wrapper reports a missing key instead of sending the placeholder.
func clearUnresolvedKeys(cfg *Config) {
	for name, p := range cfg.Providers {
		if strings.Contains(p.APIKey, "${") {
			p.APIKey = ""
			cfg.Providers[name] = p
		}
	}
	if strings.Contains(cfg.Server.MasterKey, "${") {
		cfg.Server.MasterKey = ""
	}
}

// Validate checks values that would otherwise fail later.
func (c *Config) Validate() error {
	if _, err := security.ParseMode(c.Security.Mode); err != nil {
		return err
	}
	if c.WorkerPool.Size < 0 {
		return fmt.Errorf("worker_pool.size must not be negative, got %d", c.WorkerPool.Size)
	}
	if c.HTTP.Timeout < 0 || c.HTTP.ResponseHeaderTimeout < 0 {
		return errors.New("http timeouts must not be negative")
	}
	if c.Server.MetricsEnabled && !strings.HasPrefix(c.Server.MetricsEndpoint, "/") {
		return fmt.Errorf("server.metrics_endpoint must start with '/', got %q", c.Server.MetricsEndpoint)
	}
	return nil
}

// SecurityMode returns the parsed security mode.
func (c *Config) SecurityMode() security.Mode {
	m, err := security.ParseMode(c.Security.Mode)
	if err != nil {
		return security.ModeAdvisory
	}
	return m
}

// LoggingOptions converts the log section for logging.New.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:    logging.ParseLevel(c.Log.Level),
		FilePath: c.Log.File,
	}
}

// HTTPClientConfig converts the http section for httpclient.New.
func (c *Config) HTTPClientConfig() *httpclient.ClientConfig {
	hc := httpclient.DefaultConfig()
	if c.HTTP.Timeout > 0 {
		hc.Timeout = time.Duration(c.HTTP.Timeout) * time.Second
	}
	if c.HTTP.ResponseHeaderTimeout > 0 {
		hc.ResponseHeaderTimeout = time.Duration(c.HTTP.ResponseHeaderTimeout) * time.Second
	}
	return &hc
}

// Provider returns the configuration of one provider, or an empty config.
func (c *Config) Provider(name string) providers.Config {
	return c.Providers[name]
}
