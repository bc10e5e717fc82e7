package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"
)

// ChatOptions is the typed view of the options forwarded to a vendor call.
// Nil pointers mean "not set"; the vendor default applies.
type ChatOptions struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	TopK        *int
	Stop        []string
	// Timeout bounds a single call. Zero means no extra deadline.
	Timeout time.Duration
	// Extra holds every option without a typed field.
	Extra map[string]any
}

// ChatOption mutates ChatOptions for a single call.
type ChatOption func(*ChatOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(v float64) ChatOption {
	return func(o *ChatOptions) { o.Temperature = &v }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(v int) ChatOption {
	return func(o *ChatOptions) { o.MaxTokens = &v }
}

// WithTopP sets nucleus sampling.
func WithTopP(v float64) ChatOption {
	return func(o *ChatOptions) { o.TopP = &v }
}

// WithTopK sets top-k sampling where supported.
func WithTopK(v int) ChatOption {
	return func(o *ChatOptions) { o.TopK = &v }
}

// WithStop sets stop sequences.
func WithStop(stop ...string) ChatOption {
	return func(o *ChatOptions) { o.Stop = stop }
}

// WithTimeout bounds the call duration.
func WithTimeout(d time.Duration) ChatOption {
	return func(o *ChatOptions) { o.Timeout = d }
}

// WithExtra forwards a vendor-specific option.
func WithExtra(key string, value any) ChatOption {
	return func(o *ChatOptions) {
		if o.Extra == nil {
			o.Extra = make(map[string]any)
		}
		o.Extra[key] = value
	}
}

// WithOptions applies every field that is set in other.
func WithOptions(other ChatOptions) ChatOption {
	return func(o *ChatOptions) {
		o.merge(other)
	}
}

// Clone returns a deep copy.
func (o ChatOptions) Clone() ChatOptions {
	out := o
	if o.Stop != nil {
		out.Stop = append([]string(nil), o.Stop...)
	}
	if o.Extra != nil {
		out.Extra = maps.Clone(o.Extra)
	}
	return out
}

func (o *ChatOptions) merge(other ChatOptions) {
	if other.Temperature != nil {
		o.Temperature = other.Temperature
	}
	if other.MaxTokens != nil {
		o.MaxTokens = other.MaxTokens
	}
	if other.TopP != nil {
		o.TopP = other.TopP
	}
	if other.TopK != nil {
		o.TopK = other.TopK
	}
	if other.Stop != nil {
		o.Stop = other.Stop
	}
	if other.Timeout != 0 {
		o.Timeout = other.Timeout
	}
	for k, v := range other.Extra {
		if o.Extra == nil {
			o.Extra = make(map[string]any)
		}
		o.Extra[k] = v
	}
}

// ResolveOptions layers per-call options over the wrapper defaults.
// The defaults are never mutated.
func ResolveOptions(defaults ChatOptions, opts ...ChatOption) ChatOptions {
	out := defaults.Clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// OptionsFromMap decodes a loosely typed option mapping, as found in
// configuration files and JSON request bodies. Unknown keys land in Extra.
func OptionsFromMap(m map[string]any) (ChatOptions, error) {
	var o ChatOptions
	for key, raw := range m {
		var err error
		switch key {
		case "temperature":
			var f float64
			if f, err = AsFloat(raw); err == nil {
				o.Temperature = &f
			}
		case "max_tokens":
			var n int
			if n, err = AsInt(raw); err == nil {
				o.MaxTokens = &n
			}
		case "top_p":
			var f float64
			if f, err = AsFloat(raw); err == nil {
				o.TopP = &f
			}
		case "top_k":
			var n int
			if n, err = AsInt(raw); err == nil {
				o.TopK = &n
			}
		case "stop":
			o.Stop, err = toStrings(raw)
		case "timeout":
			o.Timeout, err = toDuration(raw)
		default:
			if o.Extra == nil {
				o.Extra = make(map[string]any)
			}
			o.Extra[key] = raw
		}
		if err != nil {
			return ChatOptions{}, NewConfigurationError("", fmt.Sprintf("invalid option %q: %v", key, err), err)
		}
	}
	return o, nil
}

// AsFloat converts a loosely typed number (as decoded from JSON or YAML).
func AsFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

// AsInt converts a loosely typed whole number.
func AsInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toStrings(v any) ([]string, error) {
	switch s := v.(type) {
	case string:
		return []string{s}, nil
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected string or list, got %T", v)
}

// toDuration accepts seconds as a number or a Go duration string.
func toDuration(v any) (time.Duration, error) {
	if s, ok := v.(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
	}
	secs, err := AsFloat(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}
