package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"unset", "", 600 * time.Second},
		{"seconds", "45", 45 * time.Second},
		{"duration", "2m", 2 * time.Minute},
		{"garbage", "soon", 600 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvTimeout, tt.value)
			if got := DefaultConfig().Timeout; got != tt.want {
				t.Errorf("Timeout = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	client := New(&ClientConfig{Timeout: 5 * time.Second, ResponseHeaderTimeout: time.Second})

	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	tr, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", client.Transport)
	}
	if tr.ResponseHeaderTimeout != time.Second {
		t.Errorf("ResponseHeaderTimeout = %v, want 1s", tr.ResponseHeaderTimeout)
	}
	if New(nil).Timeout == 0 {
		t.Error("default client should have a timeout")
	}
}
