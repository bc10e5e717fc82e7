package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMiddleware(t *testing.T) {
	const key = "mk-4f1c9a"

	tests := []struct {
		name      string
		masterKey string
		path      string
		header    string
		wantError string // empty means the request reaches the handler
	}{
		{name: "open when no key is configured", path: "/v1/chat"},
		{name: "matching bearer token", masterKey: key, path: "/v1/chat", header: "Bearer " + key},
		{name: "skip path needs no token", masterKey: key, path: "/health"},
		{name: "skip match is exact", masterKey: key, path: "/health/deep", wantError: "missing authorization header"},
		{name: "no header", masterKey: key, path: "/v1/chat", wantError: "missing authorization header"},
		{name: "basic scheme", masterKey: key, path: "/v1/chat", header: "Basic " + key,
			wantError: "invalid authorization header format, expected 'Bearer <token>'"},
		{name: "wrong token", masterKey: key, path: "/v1/chat", header: "Bearer nope", wantError: "invalid master key"},
		{name: "empty token", masterKey: key, path: "/v1/chat", header: "Bearer ", wantError: "invalid master key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			mw := AuthMiddleware(tt.masterKey, []string{"/health"})
			h := mw(func(c echo.Context) error {
				reached = true
				return c.NoContent(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			require.NoError(t, h(echo.New().NewContext(req, rec)))

			if tt.wantError == "" {
				assert.True(t, reached)
				assert.Equal(t, http.StatusNoContent, rec.Code)
				return
			}

			assert.False(t, reached)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			var body struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "authentication_error", body.Error.Type)
			assert.Equal(t, tt.wantError, body.Error.Message)
		})
	}
}
