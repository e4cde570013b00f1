package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bluescreen10/tieredsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
driver: redis
dsn: redis://localhost:6379/0
prefix: app
sweep_interval: 30s
log_level: debug
store:
  size_threshold: 4096
  ttl_seconds: 1800
  hash: blake2b-256
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Driver)
	assert.Equal(t, "app", cfg.Prefix)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 4096, cfg.Store.SizeThreshold)
	assert.Equal(t, 1800, cfg.Store.TTLSeconds)
	assert.Equal(t, "blake2b-256", cfg.Store.Hash)

	// unset fields keep their defaults
	assert.Equal(t, "sess_mem", cfg.Tables.Hot)
	assert.Equal(t, "sess_disk", cfg.Tables.Cold)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "driver: postgres\n"},
		{"empty dsn", "dsn: \"\"\n"},
		{"bad interval", "sweep_interval: -1s\n"},
		{"bad level", "log_level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, tieredsession.ErrConfiguration)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenSQLiteAndSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = "file:" + t.Name() + "?mode=memory&cache=shared"

	records, closeFn, err := openRecords(&cfg)
	require.NoError(t, err)
	defer closeFn()

	store, err := tieredsession.New(records, append(cfg.Store.Options(), tieredsession.WithSizeThreshold(10))...)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "small", []byte("x")))
	require.NoError(t, store.Write(ctx, "large", []byte(strings.Repeat("x", 11))))

	res, err := store.Sweep(ctx, time.Now().Add(store.TTL()+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, tieredsession.SweepResult{Hot: 1, Cold: 1}, res)
}
