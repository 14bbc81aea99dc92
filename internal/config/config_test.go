package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "contentexpiry.db", cfg.DB.Path)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	assert.Equal(t, time.Minute, cfg.Scheduler.RuntimeThrottle)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.OnceMinDelay)
	assert.False(t, cfg.Debug)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
scheduler:
  interval: 2m
  batch_size: 25
log:
  format: json
`), 0o600))
	t.Setenv("CONTENTEXPIRY_DB_PATH", "/tmp/override.db")
	t.Setenv("CONTENTEXPIRY_DEBUG", "true")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 25, cfg.Scheduler.BatchSize)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/override.db", cfg.DB.Path)
	assert.True(t, cfg.Debug)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CONTENTEXPIRY_HTTP_ADDR=:7070\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CONTENTEXPIRY_HTTP_ADDR") })

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load(viper.New(), "nope.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	bad := *cfg
	bad.Scheduler.BatchSize = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Log.Format = "xml"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Scheduler.Interval = 10 * time.Millisecond
	assert.Error(t, bad.Validate())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores the previous one when the test ends.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
