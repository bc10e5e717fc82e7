// Package httpclient builds the *http.Client shared by every provider
// wrapper of a factory.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Environment overrides, in seconds or Go duration syntax.
const (
	EnvTimeout               = "LLMWRAPPER_HTTP_TIMEOUT"
	EnvResponseHeaderTimeout = "LLMWRAPPER_HTTP_RESPONSE_HEADER_TIMEOUT"
)

// ClientConfig holds transport settings.
type ClientConfig struct {
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	Timeout               time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// getEnvDuration accepts plain integers (seconds) or Go duration strings.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}

// DefaultConfig matches the vendor SDK defaults: generation can take
// minutes, so the overall timeout is generous. Per-call deadlines come from
// the caller's context or the timeout option.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		Timeout:               getEnvDuration(EnvTimeout, 600*time.Second),
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: getEnvDuration(EnvResponseHeaderTimeout, 600*time.Second),
	}
}

// New creates an HTTP client. A nil config uses DefaultConfig().
func New(config *ClientConfig) *http.Client {
	if config == nil {
		cfg := DefaultConfig()
		config = &cfg
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}
}
