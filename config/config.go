package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultPort               = 4000
	defaultMaxUploadMB        = 500
	defaultMaxDownloadMB      = 5000
	defaultMaxChunkSizeMB     = 50
	defaultSearchMaxResults   = 100
	defaultSearchMaxWildcards = 10
	defaultUploadExpiryHours  = 24
	defaultUploadTempDir      = "/tmp/filegate-uploads"
	defaultCleanupHours       = 6
	defaultIndexDatabaseURL   = ":memory:"
	defaultRescanMinutes      = 30
	defaultScanConcurrency    = 4
	defaultLogLevel           = "info"
)

// Config is the process-wide configuration, derived from the environment
// once at startup and immutable afterwards.
type Config struct {
	Token            string
	BasePaths        []string
	Port             int
	MaxUploadBytes   int64
	MaxDownloadBytes int64
	MaxChunkBytes    int64

	SearchMaxResults            int
	SearchMaxRecursiveWildcards int

	UploadTempDir       string
	UploadExpiry        time.Duration
	DiskCleanupInterval time.Duration

	EnableIndex          bool
	IndexDatabaseURL     string
	IndexRescanInterval  time.Duration
	IndexScanConcurrency int

	DevUIDOverride *int
	DevGIDOverride *int

	LogLevel string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("MAX_UPLOAD_MB", defaultMaxUploadMB)
	v.SetDefault("MAX_DOWNLOAD_MB", defaultMaxDownloadMB)
	v.SetDefault("MAX_CHUNK_SIZE_MB", defaultMaxChunkSizeMB)
	v.SetDefault("SEARCH_MAX_RESULTS", defaultSearchMaxResults)
	v.SetDefault("SEARCH_MAX_RECURSIVE_WILDCARDS", defaultSearchMaxWildcards)
	v.SetDefault("UPLOAD_EXPIRY_HOURS", defaultUploadExpiryHours)
	v.SetDefault("UPLOAD_TEMP_DIR", defaultUploadTempDir)
	v.SetDefault("DISK_CLEANUP_INTERVAL_HOURS", defaultCleanupHours)
	v.SetDefault("ENABLE_INDEX", "true")
	v.SetDefault("INDEX_DATABASE_URL", defaultIndexDatabaseURL)
	v.SetDefault("INDEX_RESCAN_INTERVAL_MINUTES", defaultRescanMinutes)
	v.SetDefault("INDEX_SCAN_CONCURRENCY", defaultScanConcurrency)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	return v
}

// Load reads the environment and returns the validated configuration.
func Load() (*Config, error) {
	v := newViper()
	c := &Config{
		Token:            v.GetString("FILE_PROXY_TOKEN"),
		Port:             v.GetInt("PORT"),
		MaxUploadBytes:   v.GetInt64("MAX_UPLOAD_MB") << 20,
		MaxDownloadBytes: v.GetInt64("MAX_DOWNLOAD_MB") << 20,
		MaxChunkBytes:    v.GetInt64("MAX_CHUNK_SIZE_MB") << 20,

		SearchMaxResults:            v.GetInt("SEARCH_MAX_RESULTS"),
		SearchMaxRecursiveWildcards: v.GetInt("SEARCH_MAX_RECURSIVE_WILDCARDS"),

		UploadTempDir:       v.GetString("UPLOAD_TEMP_DIR"),
		UploadExpiry:        time.Duration(v.GetInt64("UPLOAD_EXPIRY_HOURS")) * time.Hour,
		DiskCleanupInterval: time.Duration(v.GetInt64("DISK_CLEANUP_INTERVAL_HOURS")) * time.Hour,

		EnableIndex:          v.GetString("ENABLE_INDEX") != "false",
		IndexDatabaseURL:     v.GetString("INDEX_DATABASE_URL"),
		IndexRescanInterval:  time.Duration(v.GetInt64("INDEX_RESCAN_INTERVAL_MINUTES")) * time.Minute,
		IndexScanConcurrency: v.GetInt("INDEX_SCAN_CONCURRENCY"),

		LogLevel: v.GetString("LOG_LEVEL"),
	}
	for _, p := range strings.Split(v.GetString("ALLOWED_BASE_PATHS"), ",") {
		p = strings.TrimSpace(p)
		if len(p) == 0 {
			continue
		}
		c.BasePaths = append(c.BasePaths, filepath.Clean(p))
	}
	var err error
	if c.DevUIDOverride, err = parseOptionalID(v.GetString("DEV_UID_OVERRIDE")); err != nil {
		return nil, fmt.Errorf("parse DEV_UID_OVERRIDE failed, err:%w", err)
	}
	if c.DevGIDOverride, err = parseOptionalID(v.GetString("DEV_GID_OVERRIDE")); err != nil {
		return nil, fmt.Errorf("parse DEV_GID_OVERRIDE failed, err:%w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseOptionalID(s string) (*int, error) {
	if len(s) == 0 {
		return nil, nil
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return nil, fmt.Errorf("invalid id value:%s", s)
	}
	return &id, nil
}

func (c *Config) validate() error {
	if len(c.Token) == 0 {
		return fmt.Errorf("FILE_PROXY_TOKEN is required")
	}
	if len(c.BasePaths) == 0 {
		return fmt.Errorf("ALLOWED_BASE_PATHS is required")
	}
	for _, p := range c.BasePaths {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("base path must be absolute, got:%s", p)
		}
	}
	if c.IndexScanConcurrency < 1 {
		c.IndexScanConcurrency = 1
	}
	return nil
}
