package security

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Security event kinds emitted by the provider wrappers.
const (
	EventInvalidAPIKey     = "INVALID_API_KEY"
	EventInvalidURL        = "INVALID_URL"
	EventInvalidMessages   = "INVALID_MESSAGES"
	EventInvalidParameters = "INVALID_PARAMETERS"
	EventAPIError          = "API_ERROR"
)

// LogSecurityEvent writes one warning line for a security-relevant event.
// Details are masked before they are serialized. It never fails.
func LogSecurityEvent(logger *slog.Logger, kind string, details map[string]any) {
	if logger == nil {
		logger = slog.Default()
	}
	masked := SanitizeConfig(details)

	payload, err := json.Marshal(masked)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", masked))
	}
	logger.Warn("security event",
		"event", kind,
		"details", string(payload),
	)
}

// Mode selects how the wrappers react to failed advisory checks.
type Mode string

const (
	// ModeAdvisory logs a security event and proceeds.
	ModeAdvisory Mode = "advisory"
	// ModeStrict logs a security event and rejects the input.
	ModeStrict Mode = "strict"
)

// ParseMode accepts "advisory" or "strict" (case-insensitive); empty means
// advisory.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAdvisory:
		return ModeAdvisory, nil
	case ModeStrict:
		return ModeStrict, nil
	}
	return "", fmt.Errorf("invalid security mode %q (want advisory or strict)", s)
}

// Strict reports whether failed checks reject the input.
func (m Mode) Strict() bool {
	return m == ModeStrict
}
