// Package config reads the service settings from the environment, an
// optional .env file and command line overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 5001
	defaultMaxUploadBytes  = 20 << 20 // 20 MiB
	defaultShutdownTimeout = 15 * time.Second

	profileDirName = "profilePicture"
	liveDirName    = "liveCam"
)

// Config holds runtime settings for the upload service.
type Config struct {
	Host            string
	Port            int
	StorageDir      string
	ProfileDir      string
	LiveDir         string
	MaxUploadBytes  int64
	SniffContent    bool
	ShutdownTimeout time.Duration
	DatabaseDSN     string
	RedisAddr       string
	LogLevel        string
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	storageDir := getEnv("FACERECOG_STORAGE_DIR", "")
	if storageDir == "" {
		dir, err := executableDir()
		if err != nil {
			return nil, err
		}
		storageDir = dir
	}

	cfg := &Config{
		Host:            getEnv("FACERECOG_HOST", defaultHost),
		StorageDir:      storageDir,
		ProfileDir:      getEnv("FACERECOG_PROFILE_DIR", ""),
		LiveDir:         getEnv("FACERECOG_LIVE_DIR", ""),
		ShutdownTimeout: defaultShutdownTimeout,
		MaxUploadBytes:  defaultMaxUploadBytes,
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.Port, err = parseInt("FACERECOG_PORT", defaultPort); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = parseInt64("FACERECOG_MAX_UPLOAD_BYTES", defaultMaxUploadBytes); err != nil {
		return nil, err
	}
	if cfg.SniffContent, err = parseBool("FACERECOG_SNIFF_CONTENT", false); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parseDuration("FACERECOG_SHUTDOWN_TIMEOUT", defaultShutdownTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Finalize fills derived directories, makes them absolute and validates the result.
// It must run after any command line overrides have been applied.
func (c *Config) Finalize() error {
	if c.ProfileDir == "" {
		c.ProfileDir = filepath.Join(c.StorageDir, profileDirName)
	}
	if c.LiveDir == "" {
		c.LiveDir = filepath.Join(c.StorageDir, liveDirName)
	}

	for _, dir := range []*string{&c.StorageDir, &c.ProfileDir, &c.LiveDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", *dir, err)
		}
		*dir = abs
	}

	if c.ProfileDir == c.LiveDir {
		return errors.New("profile and live directories must differ")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func parseInt64(key string, def int64) (int64, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
