package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{1400 * time.Millisecond, "1s"},
		{59 * time.Second, "59s"},
		{61 * time.Second, "1m1s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h3m4s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), "formatDuration(%s)", tt.in)
	}
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8501/healthz", healthURL("0.0.0.0", 8501))
	assert.Equal(t, "http://127.0.0.1:80/healthz", healthURL("", 80))
	assert.Equal(t, "http://127.0.0.1:9000/healthz", healthURL("::", 9000))
	assert.Equal(t, "http://chat.internal:8501/healthz", healthURL("chat.internal", 8501))
	assert.Equal(t, "http://[::1]:8501/healthz", healthURL("::1", 8501))
}

func TestProbeHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/healthz", r.URL.Path)
			_, _ = w.Write([]byte(`{"status":"ok","sessions":3,"clients":2,"idle":1}`))
		}))
		defer srv.Close()

		h, err := probeHealth(context.Background(), srv.URL+"/healthz")
		require.NoError(t, err)
		assert.Equal(t, "ok", h.Status)
		assert.Equal(t, 3, h.Sessions)
		assert.Equal(t, 2, h.Clients)
		assert.Equal(t, 1, h.Idle)
	})

	t.Run("shutting down", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := probeHealth(context.Background(), srv.URL+"/healthz")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
	})

	t.Run("garbage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}))
		defer srv.Close()

		_, err := probeHealth(context.Background(), srv.URL+"/healthz")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid health response")
	})
}

func TestStatusCommand_Stopped(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out := &bytes.Buffer{}
	statusCmd.SetOut(out)
	defer statusCmd.SetOut(nil)

	require.NoError(t, runStatus(statusCmd, nil))
	assert.Equal(t, "Status: stopped\n", out.String())
}
