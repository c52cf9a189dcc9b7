package types

import (
	"os"
	"strconv"
	"time"
)

// Config holds the loader sidecar settings, read from the environment.
type Config struct {
	SourceDir  string
	ArchiveDir string
	BadDir     string
	SettleTime time.Duration
	UploadURL  string
	SessionID  string
	UserID     string
}

func LoadConfig() Config {
	cfg := Config{
		SourceDir:  envOr("LOADER_SOURCE_DIR", "loader/source"),
		ArchiveDir: envOr("LOADER_ARCHIVE_DIR", "loader/archive"),
		BadDir:     envOr("LOADER_BAD_DIR", "loader/bad"),
		SettleTime: 5 * time.Second,
		UploadURL:  envOr("LOADER_UPLOAD_URL", "http://localhost:3000/api/v1/ask"),
		SessionID:  envOr("LOADER_SESSION_ID", "loader"),
		UserID:     envOr("LOADER_USER_ID", "loader"),
	}
	if v := os.Getenv("LOADER_SETTLE_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.SettleTime = time.Duration(secs) * time.Second
		}
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
