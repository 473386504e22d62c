package e2e

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// 00 - Smoke: healthz, metrics y headers base de la cadena de middleware
func Test_00_Smoke(t *testing.T) {
	requireE2E(t)
	c := newHTTPClient()

	t.Run("healthz", func(t *testing.T) {
		resp, err := c.Get(baseURL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		require.Len(t, resp.Header.Get("X-Request-ID"), 32)
	})

	t.Run("request id upstream", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/healthz", nil)
		req.Header.Set("X-Request-ID", "e2e-rid-1")
		resp, err := c.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, "e2e-rid-1", resp.Header.Get("X-Request-ID"))
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := c.Get(baseURL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(b), "go_goroutines")
	})
}
