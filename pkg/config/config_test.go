package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/config"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "store", cfg.Session.Directory)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 3*time.Second, cfg.Lock.WaitTime)
	assert.Equal(t, 5*time.Second, cfg.Lock.LeaseTime)
	assert.Equal(t, "store", cfg.Broadcast.Transport)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
store:
  driver: redis
redis:
  addr: redis:6379
  pool_size: 20
session:
  directory: memory
  ttl: 5m
lock:
  wait_time: 500ms
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("QUIZZLE_REDIS_ADDR", "cache:6380")

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, "memory", cfg.Session.Directory)
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Lock.WaitTime)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o600))

	_, err := config.Load(dir)
	assert.Error(t, err)
}
