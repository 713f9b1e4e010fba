package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

// Config is the feed server configuration, read from the environment
type Config struct {
	DBURL            string
	StoragePath      string
	APIPort          string
	JWTSecret        string
	BaseURL          string
	PropagationDelay time.Duration
	MaxPackageSize   int64
	LogLevel         string
	LogJSON          bool
}

// DefaultMaxPackageSize bounds uploads when MAX_PACKAGE_SIZE is unset
const DefaultMaxPackageSize = 250 * 1024 * 1024

// Load reads the server configuration. An empty DATABASE_URL selects the
// in-memory store.
func Load() (Config, error) {
	cfg := Config{
		DBURL:       os.Getenv("DATABASE_URL"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),
		APIPort:     getEnv("PORT", "8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		BaseURL:     strings.TrimRight(os.Getenv("BASE_URL"), "/"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	var errs []error

	delay, err := getDuration("PROPAGATION_DELAY", 0)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.PropagationDelay = delay

	maxSize, err := getInt64("MAX_PACKAGE_SIZE", DefaultMaxPackageSize)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MaxPackageSize = maxSize

	logJSON, err := getBool("LOG_JSON", false)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.LogJSON = logJSON

	// Validate required fields
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if cfg.PropagationDelay < 0 {
		errs = append(errs, errors.New("PROPAGATION_DELAY must not be negative"))
	}
	if cfg.MaxPackageSize <= 0 {
		errs = append(errs, errors.New("MAX_PACKAGE_SIZE must be positive"))
	}

	return cfg, errors.Join(errs...)
}

// UsesMemoryStore reports whether no database is configured
func (c Config) UsesMemoryStore() bool {
	return c.DBURL == ""
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return gotenv.Load(path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
