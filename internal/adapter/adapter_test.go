package adapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom("", t.TempDir())
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Remote, cfg.Remote)
	assert.Equal(t, def.Cache, cfg.Cache)
	assert.Equal(t, def.Store.File, cfg.Store.File)
	assert.Equal(t, time.Second, cfg.Store.OpenTimeout)
	assert.False(t, cfg.InMemory())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
store:
  dir: ""
  open_timeout: 5s
remote:
  country: gb
  limit: 10
  timeout: 2s
cache:
  strict_reads: true
  prefetch_artwork: true
  prefetch_workers: 8
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0600))

	cfg, err := LoadConfigFrom("", dir)
	require.NoError(t, err)

	assert.True(t, cfg.InMemory())
	assert.Equal(t, 5*time.Second, cfg.Store.OpenTimeout)
	assert.Equal(t, "gb", cfg.Remote.Country)
	assert.Equal(t, 10, cfg.Remote.Limit)
	assert.Equal(t, 2*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, DefaultConfig().Remote.SearchURL, cfg.Remote.SearchURL)
	assert.True(t, cfg.Cache.StrictReads)
	assert.True(t, cfg.Cache.PrefetchArtwork)
	assert.Equal(t, 8, cfg.Cache.PrefetchWorkers)
	assert.Equal(t, "debug", cfg.Logging.Level)

	opts := cfg.ServiceOptions()
	assert.True(t, opts.StrictReads)
	assert.Equal(t, 8, opts.PrefetchWorkers)
	assert.Equal(t, 2*time.Second, cfg.RemoteOptions().Timeout)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ALBUMCACHE_STORE_PASSPHRASE", "hunter2")
	t.Setenv("ALBUMCACHE_REMOTE_COUNTRY", "de")
	t.Setenv("ALBUMCACHE_CACHE_PREFETCH_WORKERS", "2")
	t.Setenv("ALBUMCACHE_REMOTE_MAX_BODY_BYTES", "1048576")

	cfg, err := LoadConfigFrom("", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Store.Passphrase)
	assert.Equal(t, "hunter2", cfg.StoreOptions().Passphrase)
	assert.Equal(t, "de", cfg.Remote.Country)
	assert.Equal(t, 2, cfg.Cache.PrefetchWorkers)
	assert.Equal(t, int64(1<<20), cfg.Remote.MaxBodyBytes)
	assert.Equal(t, int64(1<<20), cfg.RemoteOptions().MaxBodyBytes)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0600))

	_, err := LoadConfigFrom("", dir)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store.Dir = filepath.Join(dir, "data")
	cfg.Store.Passphrase = "secret"
	cfg.Remote.Limit = 7
	cfg.Remote.MaxBodyBytes = 4096
	cfg.Cache.StrictReads = true

	require.NoError(t, SaveConfigTo(cfg, dir))

	raw, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	loaded, err := LoadConfigFrom("", dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Store.Dir, loaded.Store.Dir)
	assert.Empty(t, loaded.Store.Passphrase)
	assert.Equal(t, 7, loaded.Remote.Limit)
	assert.True(t, loaded.Cache.StrictReads)
	assert.Equal(t, cfg.Remote.Timeout, loaded.Remote.Timeout)
	assert.Equal(t, int64(4096), loaded.Remote.MaxBodyBytes)
}

func TestSetupLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "albumcache.log")
	logger, closer, err := SetupLogger(&LoggingConfig{File: path, Level: "warn"})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "term", "Queen")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry), "expected exactly one JSON line, got %q", raw)
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "Queen", entry["term"])
}

func TestSetupLoggerStderr(t *testing.T) {
	logger, closer, err := SetupLogger(&LoggingConfig{File: StderrLog, Level: "debug"})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}
