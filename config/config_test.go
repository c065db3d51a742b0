package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FILE_PROXY_TOKEN", "secret")
	t.Setenv("ALLOWED_BASE_PATHS", "/srv/data, /srv/media")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, c.Port)
	assert.Equal(t, []string{"/srv/data", "/srv/media"}, c.BasePaths)
	assert.Equal(t, int64(500)<<20, c.MaxUploadBytes)
	assert.Equal(t, int64(5000)<<20, c.MaxDownloadBytes)
	assert.Equal(t, int64(50)<<20, c.MaxChunkBytes)
	assert.Equal(t, 100, c.SearchMaxResults)
	assert.Equal(t, 10, c.SearchMaxRecursiveWildcards)
	assert.Equal(t, 24*time.Hour, c.UploadExpiry)
	assert.Equal(t, "/tmp/filegate-uploads", c.UploadTempDir)
	assert.Equal(t, 6*time.Hour, c.DiskCleanupInterval)
	assert.True(t, c.EnableIndex)
	assert.Equal(t, ":memory:", c.IndexDatabaseURL)
	assert.Equal(t, 30*time.Minute, c.IndexRescanInterval)
	assert.Equal(t, 4, c.IndexScanConcurrency)
	assert.Nil(t, c.DevUIDOverride)
	assert.Nil(t, c.DevGIDOverride)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("FILE_PROXY_TOKEN", "")
	t.Setenv("ALLOWED_BASE_PATHS", "/srv/data")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("FILE_PROXY_TOKEN", "secret")
	t.Setenv("ALLOWED_BASE_PATHS", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsRelativeBase(t *testing.T) {
	t.Setenv("FILE_PROXY_TOKEN", "secret")
	t.Setenv("ALLOWED_BASE_PATHS", "data/files")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FILE_PROXY_TOKEN", "secret")
	t.Setenv("ALLOWED_BASE_PATHS", "/srv/data")
	t.Setenv("ENABLE_INDEX", "false")
	t.Setenv("DEV_UID_OVERRIDE", "1000")
	t.Setenv("DEV_GID_OVERRIDE", "1000")
	t.Setenv("MAX_CHUNK_SIZE_MB", "10")
	c, err := Load()
	require.NoError(t, err)
	assert.False(t, c.EnableIndex)
	require.NotNil(t, c.DevUIDOverride)
	assert.Equal(t, 1000, *c.DevUIDOverride)
	assert.Equal(t, int64(10)<<20, c.MaxChunkBytes)
}
