package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"llmwrapper/internal/core"
)

// keyFormat describes the expected shape of a provider credential.
type keyFormat struct {
	prefixes  []string
	minLength int
}

var keyFormats = map[string]keyFormat{
	"openai":    {prefixes: []string{"sk-"}, minLength: 20},
	"anthropic": {prefixes: []string{"sk-ant-"}, minLength: 20},
	"gemini":    {prefixes: []string{"AIza"}, minLength: 20},
	"grok":      {prefixes: []string{"xai-"}, minLength: 20},
	"xai":       {prefixes: []string{"xai-"}, minLength: 20},
}

// ValidateAPIKey applies prefix and length heuristics for the named provider.
// An empty key is never valid. Ollama takes an optional bearer token of any
// shape; unknown providers accept 16 to 200 characters.
func ValidateAPIKey(key, provider string) bool {
	if key == "" {
		return false
	}
	provider = strings.ToLower(provider)
	if provider == "ollama" {
		return true
	}
	format, ok := keyFormats[provider]
	if !ok {
		return len(key) >= 16 && len(key) <= 200
	}
	if len(key) < format.minLength {
		return false
	}
	for _, p := range format.prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// ValidateURL reports whether raw is an absolute http(s) URL with a host.
func ValidateURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// injectionPatterns are signatures of script or shell payloads. This is a
// heuristic filter, not a security boundary.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`\b(?:eval|exec|system)\(`),
	regexp.MustCompile(`;\s*rm\s+-[rRf]+\b`),
	regexp.MustCompile(`\|\s*(?:ba|z)?sh\b`),
	regexp.MustCompile(`&&\s*(?:curl|wget)\s`),
	regexp.MustCompile(`\$\([^)]*\)`),
}

// ValidateMessages reports whether msgs is a non-empty conversation with
// known roles and no injection signatures.
func ValidateMessages(msgs []core.Message) bool {
	return MessageIssue(msgs) == ""
}

// MessageIssue describes the first problem ValidateMessages would reject,
// or returns "" when the messages pass.
func MessageIssue(msgs []core.Message) string {
	if len(msgs) == 0 {
		return "messages must not be empty"
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Sprintf("message %d has invalid role %q", i, m.Role)
		}
		for _, p := range injectionPatterns {
			if p.MatchString(m.Content) {
				return fmt.Sprintf("message %d matches injection pattern %q", i, p.String())
			}
		}
	}
	return ""
}

// ValidateParameters applies range checks to the sampling options.
func ValidateParameters(opts core.ChatOptions) bool {
	return ParameterIssue(opts) == ""
}

// ParameterIssue describes the first out-of-range option, or returns "".
func ParameterIssue(opts core.ChatOptions) string {
	switch {
	case opts.Temperature != nil && (*opts.Temperature < 0 || *opts.Temperature > 2):
		return fmt.Sprintf("temperature %v outside [0, 2]", *opts.Temperature)
	case opts.MaxTokens != nil && (*opts.MaxTokens < 1 || *opts.MaxTokens > 32768):
		return fmt.Sprintf("max_tokens %d outside [1, 32768]", *opts.MaxTokens)
	case opts.TopP != nil && (*opts.TopP < 0 || *opts.TopP > 1):
		return fmt.Sprintf("top_p %v outside [0, 1]", *opts.TopP)
	case opts.TopK != nil && (*opts.TopK < 1 || *opts.TopK > 100):
		return fmt.Sprintf("top_k %d outside [1, 100]", *opts.TopK)
	}
	return ""
}
