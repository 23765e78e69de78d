package storage

import (
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Backend type names accepted by Config and the factory.
const (
	TypeFilesystem = "FS"
	TypeMemory     = "MEM"
	TypeDatabase   = "DB"
	TypeRedis      = "REDIS"
	TypeMixed      = "mixed"
)

// Config represents storage configuration
type Config struct {
	// Backend type: "FS", "MEM", "DB" or "REDIS"
	Backend string

	// Filesystem backend settings
	Roots Roots

	// Fallbacks are read when the primary backend has no copy of a snapshot
	Fallbacks []string

	// Redis backend settings
	Redis RedisConfig

	// Database connection for the DB backend
	DB *sqlx.DB
}

// NewConfigFromEnv creates configuration from environment variables
func NewConfigFromEnv(base string) *Config {
	defaults := DefaultRoots(base)
	config := &Config{
		Backend: getEnv("VISUAL_STORAGE_BACKEND", TypeFilesystem),
		Roots: Roots{
			Baseline: getEnv("VISUAL_BASELINE_DIR", defaults.Baseline),
			Actual:   getEnv("VISUAL_ACTUAL_DIR", defaults.Actual),
			Diff:     getEnv("VISUAL_DIFF_DIR", defaults.Diff),
		},
		Redis: RedisConfig{
			Addr:      getEnv("VISUAL_REDIS_ADDR", ""),
			Password:  getEnv("VISUAL_REDIS_PASSWORD", ""),
			DB:        getEnvInt("VISUAL_REDIS_DB", 0),
			KeyPrefix: getEnv("VISUAL_REDIS_PREFIX", "visual:"),
		},
	}
	if fb := getEnv("VISUAL_STORAGE_FALLBACKS", ""); fb != "" {
		config.Fallbacks = strings.Split(fb, ",")
	}
	return config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	backend, err := normalizeType(c.Backend)
	if err != nil {
		return err
	}
	c.Backend = backend

	for i, fb := range c.Fallbacks {
		t, err := normalizeType(fb)
		if err != nil {
			return fmt.Errorf("fallback %d: %w", i, err)
		}
		if t == c.Backend {
			return fmt.Errorf("fallback %d duplicates primary backend %s", i, t)
		}
		c.Fallbacks[i] = t
	}

	uses := func(t string) bool {
		if c.Backend == t {
			return true
		}
		for _, fb := range c.Fallbacks {
			if fb == t {
				return true
			}
		}
		return false
	}

	if uses(TypeFilesystem) {
		if err := c.Roots.Validate(); err != nil {
			return fmt.Errorf("filesystem backend: %w", err)
		}
	}
	if uses(TypeDatabase) && c.DB == nil {
		return fmt.Errorf("database connection is required for %s backend", TypeDatabase)
	}
	if uses(TypeRedis) && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for %s backend", TypeRedis)
	}

	return nil
}

// CreateBackend creates a storage backend based on configuration
func (c *Config) CreateBackend() (Backend, error) {
	return c.CreateBackendWith(DefaultFactory)
}

// CreateBackendWith creates the configured backend using factory.
func (c *Config) CreateBackendWith(factory Factory) (Backend, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	primary, err := factory.Create(c.Backend, c)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", c.Backend, err)
	}

	if len(c.Fallbacks) == 0 {
		return primary, nil
	}

	fallbacks := make([]Backend, 0, len(c.Fallbacks))
	for _, t := range c.Fallbacks {
		fb, err := factory.Create(t, c)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback %s backend: %w", t, err)
		}
		fallbacks = append(fallbacks, fb)
	}
	return NewMixedModeBackend(primary, fallbacks...), nil
}

func normalizeType(t string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case "", TypeFilesystem, "FILESYSTEM":
		return TypeFilesystem, nil
	case TypeMemory, "MEMORY":
		return TypeMemory, nil
	case TypeDatabase, "DATABASE":
		return TypeDatabase, nil
	case TypeRedis:
		return TypeRedis, nil
	}
	return "", fmt.Errorf("invalid backend type: %s (must be FS, MEM, DB or REDIS)", t)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
		return intValue
	}

	return defaultValue
}
