package providers

import (
	"fmt"
	"maps"
	"net/http"

	"llmwrapper/internal/httpclient"
	"llmwrapper/internal/logging"
	"llmwrapper/internal/security"
	"llmwrapper/internal/workerpool"
)

// Config is the caller-supplied configuration of one provider wrapper. It is
// copied into the wrapper at construction and never mutated.
type Config struct {
	APIKey  string `yaml:"api_key" json:"api_key,omitempty"`
	Model   string `yaml:"model" json:"model,omitempty"`
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
	// Options are forwarded to every vendor call (temperature, max_tokens,
	// vendor-specific extras).
	Options map[string]any `yaml:"options" json:"options,omitempty"`
}

// ConfigFromMap builds a Config from a JSON-like mapping. The keys api_key,
// model and base_url are lifted out; everything else becomes an option.
func ConfigFromMap(m map[string]any) (Config, error) {
	var cfg Config
	for k, v := range m {
		switch k {
		case "api_key", "model", "base_url":
			s, ok := v.(string)
			if !ok && v != nil {
				return Config{}, fmt.Errorf("%s must be a string, got %T", k, v)
			}
			switch k {
			case "api_key":
				cfg.APIKey = s
			case "model":
				cfg.Model = s
			case "base_url":
				cfg.BaseURL = s
			}
		case "options":
			opts, ok := v.(map[string]any)
			if !ok {
				return Config{}, fmt.Errorf("options must be a mapping, got %T", v)
			}
			for key, val := range opts {
				cfg.setOption(key, val)
			}
		default:
			cfg.setOption(k, v)
		}
	}
	return cfg, nil
}

func (c *Config) setOption(key string, value any) {
	if c.Options == nil {
		c.Options = make(map[string]any)
	}
	c.Options[key] = value
}

// Sanitized renders the config with the key masked, for logging.
func (c Config) Sanitized() map[string]any {
	return security.SanitizeConfig(map[string]any{
		"api_key":  c.APIKey,
		"model":    c.Model,
		"base_url": c.BaseURL,
		"options":  c.Options,
	})
}

// clone returns a copy that shares nothing mutable with c.
func (c Config) clone() Config {
	out := c
	if c.Options != nil {
		out.Options = maps.Clone(c.Options)
	}
	return out
}

// Dependencies are the shared services handed to every builder.
type Dependencies struct {
	Logger     *logging.CallLogger
	HTTPClient *http.Client
	Mode       security.Mode
	// Pool runs synchronous calls for async wrappers whose vendor client
	// has no native non-blocking API.
	Pool *workerpool.Pool
}

// withDefaults fills unset dependencies.
func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = logging.NewCallLogger(nil, logging.Hooks{})
	}
	if d.HTTPClient == nil {
		d.HTTPClient = httpclient.New(nil)
	}
	if d.Mode == "" {
		d.Mode = security.ModeAdvisory
	}
	if d.Pool == nil {
		d.Pool = workerpool.New(workerpool.DefaultSize)
	}
	return d
}
