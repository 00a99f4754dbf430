package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "server:\n  node_id: node-1\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.Server.NodeID)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 7070, cfg.Server.GRPCPort)
	assert.Equal(t, 7071, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 4, cfg.BuildStream.Workers)
	assert.Equal(t, 500, cfg.BuildStream.BatchSize)
	assert.Equal(t, 10000, cfg.Validation.MaxBatchEntries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 50000, cfg.Health.MaxStagingDepth)
}

func TestLoadConfigHonorsExplicitValues(t *testing.T) {
	path := writeTempConfig(t, `
server:
  node_id: node-2
  grpc_port: 9000
membership:
  enabled: true
  seed_nodes:
    - "10.0.0.1:7946"
logging:
  level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.GRPCPort)
	assert.True(t, cfg.Membership.Enabled)
	assert.Equal(t, []string{"10.0.0.1:7946"}, cfg.Membership.SeedNodes)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigRejectsMissingNodeID(t *testing.T) {
	path := writeTempConfig(t, "server:\n  host: 0.0.0.0\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsInvalidLoggingLevel(t *testing.T) {
	path := writeTempConfig(t, "server:\n  node_id: node-1\nlogging:\n  level: verbose\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoadConfigRejectsInvalidPort(t *testing.T) {
	path := writeTempConfig(t, "server:\n  node_id: node-1\n  grpc_port: 70000\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigDefaultsExplicitZeroMaxBatchEntries(t *testing.T) {
	path := writeTempConfig(t, "server:\n  node_id: node-1\nvalidation:\n  max_batch_entries: 0\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.Validation.MaxBatchEntries)
}
