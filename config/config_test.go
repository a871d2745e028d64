package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "pricevaultd", cfg.Service)
	require.Equal(t, BackendMemory, cfg.Store.Backend)
	require.Equal(t, 5, cfg.MaxDepth)
	require.Equal(t, 7*24*time.Hour, cfg.StaleAfter.Std())
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	path := writeConfig(t, `
service: " valuer "
listen_address: ":9090"
store:
  backend: "LevelDB"
  path: "/tmp/valuer-data"
max_depth: 3
stale_after: 24h
rate_limit:
  requests_per_second: 10
  burst: 20
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "valuer", cfg.Service)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, BackendLevelDB, cfg.Store.Backend)
	require.Equal(t, 3, cfg.MaxDepth)
	require.Equal(t, 24*time.Hour, cfg.StaleAfter.Std())
	require.Equal(t, float64(10), cfg.RateLimit.RequestsPerSecond)
}

func TestLoadRejectsDiskBackendWithoutPath(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: bolt\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: cassandra\n")
	_, err := Load(path)
	require.Error(t, err)
}
