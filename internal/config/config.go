package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kozaktomas/face-finder/internal/constants"
)

type Config struct {
	Web        WebConfig
	Recognizer RecognizerConfig
	Sites      SitesConfig
	Temp       TempConfig
}

type WebConfig struct {
	Host            string
	Port            int
	AllowedOrigins  string // comma-separated list, see middleware.CORS
	SessionSecret   string
	MaxUploadSize   int64
	RateLimitWindow time.Duration
	RateLimitMax    int
}

type RecognizerConfig struct {
	URL      string // face recognizer sidecar, defaults to http://localhost:8000
	ModelDir string // directory holding model manifests and weights
	Dim      int    // embedding dimension, 128 or 512
}

type SitesConfig struct {
	File string // optional external registry file; empty uses the embedded default
}

type TempConfig struct {
	Dir string // root for session images and thumbnail scratch
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envInt64 reads an environment variable and parses it as a positive int64.
func envInt64(key string, defaultVal int64) int64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a duration
// (e.g. "15m"). Returns the default value if unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Web: WebConfig{
			Host:            envString("WEB_HOST", "0.0.0.0"),
			Port:            envInt("WEB_PORT", 8080),
			AllowedOrigins:  os.Getenv("WEB_ALLOWED_ORIGINS"),
			SessionSecret:   os.Getenv("WEB_SESSION_SECRET"),
			MaxUploadSize:   envInt64("MAX_UPLOAD_SIZE", constants.MaxUploadSize),
			RateLimitWindow: envDuration("RATE_LIMIT_WINDOW", constants.DefaultRateLimitWindow),
			RateLimitMax:    envInt("RATE_LIMIT_MAX", constants.DefaultRateLimitMax),
		},
		Recognizer: RecognizerConfig{
			URL:      envString("RECOGNIZER_URL", "http://localhost:8000"),
			ModelDir: os.Getenv("MODEL_DIR"),
			Dim:      envInt("EMBEDDING_DIM", 512),
		},
		Sites: SitesConfig{
			File: os.Getenv("SITES_FILE"),
		},
		Temp: TempConfig{
			Dir: envString("TEMP_DIR", filepath.Join(os.TempDir(), "face-finder")),
		},
	}
}
