package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	server := NewServerWithConfig(cfg)
	server.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	// Let the listener bind.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, server.Err())
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestNewServer_DefaultsPathAndGatherer(t *testing.T) {
	server := NewServer(":9999")

	require.NotNil(t, server.server)
	assert.Equal(t, ":9999", server.server.Addr)
	assert.Equal(t, 5*time.Second, server.server.ReadHeaderTimeout)
}

func TestServer_ExposesBootstrapMetrics(t *testing.T) {
	NewCollector("server-test").AddReadinessAttempts(TargetDatabase, 2)
	startServer(t, ServerConfig{Addr: ":9998"})

	status, body := get(t, "http://localhost:9998/metrics")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `glpi_bootstrap_readiness_attempts_total{project="server-test",target="database"} 2`)
}

func TestServer_CustomGathererAndPath(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deploy_hooks_total",
		Help: "Hooks run after deployment",
	}))
	startServer(t, ServerConfig{Addr: ":9993", Path: "/internal/metrics", Gatherer: registry})

	status, body := get(t, "http://localhost:9993/internal/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "deploy_hooks_total 0")
	assert.NotContains(t, body, "glpi_bootstrap_")

	status, _ = get(t, "http://localhost:9993/metrics")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_Healthz(t *testing.T) {
	startServer(t, ServerConfig{Addr: ":9997"})

	status, _ := get(t, "http://localhost:9997/healthz")

	assert.Equal(t, http.StatusOK, status)
}

func TestServer_StopsAcceptingAfterShutdown(t *testing.T) {
	server := startServer(t, ServerConfig{Addr: ":9996"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	_, err := http.Get("http://localhost:9996/healthz")
	assert.Error(t, err)
}

func TestServer_ErrReportsPortInUse(t *testing.T) {
	startServer(t, ServerConfig{Addr: ":9994"})

	second := NewServer(":9994")
	second.Start()
	time.Sleep(100 * time.Millisecond)

	assert.Error(t, second.Err())
}
