package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOverridesOnlySpecifiedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preranking.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
event_poll_interval_ms = 5000
redis_addr = "localhost:6379"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.EqualValues(t, 5000, cfg.EventPollIntervalMs)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	// Untouched fields keep their defaults.
	require.EqualValues(t, 50, cfg.EventBatchLimit)
	require.EqualValues(t, 3_600_000, cfg.RecordTTLMs)
}

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	require.EqualValues(t, 2000, cfg.EventPollIntervalMs)
	require.EqualValues(t, 50, cfg.EventBatchLimit)
	require.False(t, cfg.FlushOnEmptyPassed)
	require.Equal(t, cfg.EventPollInterval().Milliseconds(), cfg.EventPollIntervalMs)
}

func TestLoadMissingFileIsFatal(t *testing.T) {
	_, err := Load("/nonexistent/path/preranking.toml")
	require.Error(t, err)
}
