package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"

	"github.com/xyzbank/banking-e2e/internal/storage"
)

// EnvPrefix is the prefix of environment overrides, e.g. BANKUI_VISUAL_THRESHOLD.
const EnvPrefix = "BANKUI"

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
)

// Config represents the application configuration
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Browser BrowserConfig `mapstructure:"browser"`
	Visual  VisualConfig  `mapstructure:"visual"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Review  ReviewConfig  `mapstructure:"review"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type BrowserConfig struct {
	// Engine is "playwright" or "rod"
	Engine   string        `mapstructure:"engine"`
	BaseURL  string        `mapstructure:"base_url"`
	Headless bool          `mapstructure:"headless"`
	SlowMo   time.Duration `mapstructure:"slow_mo"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Viewport struct {
		Width  int `mapstructure:"width"`
		Height int `mapstructure:"height"`
	} `mapstructure:"viewport"`
	// ControlURL attaches rod to a running browser instead of launching one
	ControlURL string `mapstructure:"control_url"`
	// Stealth opens rod pages with automation fingerprints masked
	Stealth bool `mapstructure:"stealth"`
}

type VisualConfig struct {
	// BaseDir anchors the default visual-baseline/actual/diff directories
	BaseDir   string        `mapstructure:"base_dir"`
	Roots     storage.Roots `mapstructure:"roots"`
	Threshold float64       `mapstructure:"threshold"`
	FullPage  bool          `mapstructure:"full_page"`
	// MaxDiffPixels and MaxDiffRatio decide pass/fail in the CLI; negative disables
	MaxDiffPixels int     `mapstructure:"max_diff_pixels"`
	MaxDiffRatio  float64 `mapstructure:"max_diff_ratio"`
}

type StorageConfig struct {
	Type      string   `mapstructure:"type"`
	Fallbacks []string `mapstructure:"fallbacks"`
	Database  struct {
		// Driver is sqlite3 (cgo), sqlite (pure Go) or postgres
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Redis storage.RedisConfig `mapstructure:"redis"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

type ReviewConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SetDefaults registers the built-in defaults so no config file is required.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "banking-e2e")
	v.SetDefault("app.env", "development")

	v.SetDefault("browser.engine", "playwright")
	v.SetDefault("browser.base_url", "https://www.globalsqa.com/angularJs-protractor/BankingProject/")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", 0)
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.control_url", "")
	v.SetDefault("browser.stealth", false)

	v.SetDefault("visual.base_dir", ".")
	v.SetDefault("visual.roots.baseline", "")
	v.SetDefault("visual.roots.actual", "")
	v.SetDefault("visual.roots.diff", "")
	v.SetDefault("visual.threshold", 0.1)
	v.SetDefault("visual.full_page", true)
	v.SetDefault("visual.max_diff_pixels", 0)
	v.SetDefault("visual.max_diff_ratio", -1)

	v.SetDefault("storage.type", storage.TypeFilesystem)
	v.SetDefault("storage.database.driver", "sqlite3")
	v.SetDefault("storage.database.dsn", "visual.db")
	v.SetDefault("storage.fallbacks", []string{})
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "visual:")
	v.SetDefault("storage.redis.ttl", 0)
	v.SetDefault("storage.redis.dial_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("review.host", "127.0.0.1")
	v.SetDefault("review.port", 8090)
}

// NewViper returns a viper instance with defaults and environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads default.yaml and config.yaml from configPath (both optional)
// and watches them for changes.
func Load(configPath string) error {
	var err error
	once.Do(func() {
		v := NewViper()
		v.AddConfigPath(configPath)

		v.SetConfigName("default")
		if err = v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				err = fmt.Errorf("failed to read default config: %w", err)
				return
			}
			err = nil
		}

		// Environment-specific overrides
		v.SetConfigName("config")
		if err = v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				err = fmt.Errorf("failed to merge config: %w", err)
				return
			}
			err = nil
		}

		var c *Config
		if c, err = Decode(v); err != nil {
			return
		}
		mu.Lock()
		cfg = c
		mu.Unlock()

		if v.ConfigFileUsed() == "" {
			return
		}
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			newCfg, err := Decode(v)
			if err != nil {
				slog.Error("failed to reload config", "file", e.Name, "error", err)
				return
			}
			mu.Lock()
			cfg = newCfg
			mu.Unlock()
			slog.Info("configuration reloaded", "file", e.Name)
		})
	})

	return err
}

// LoadFromFile loads configuration from a specific file (useful for testing)
func LoadFromFile(configFile string) (*Config, error) {
	v := NewViper()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c, err := Decode(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	cfg = c
	mu.Unlock()
	return c, nil
}

// Get returns the current configuration (thread-safe)
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Visual.Threshold < 0 || c.Visual.Threshold > 1 {
		return fmt.Errorf("visual.threshold must be between 0 and 1, got %v", c.Visual.Threshold)
	}
	switch strings.ToLower(c.Browser.Engine) {
	case "playwright", "rod":
	default:
		return fmt.Errorf("browser.engine must be playwright or rod, got %q", c.Browser.Engine)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// StorageRoots resolves the snapshot directories. Explicit roots win over
// the defaults derived from BaseDir.
func (c *VisualConfig) StorageRoots() storage.Roots {
	roots := storage.DefaultRoots(c.BaseDir)
	if c.Roots.Baseline != "" {
		roots.Baseline = c.Roots.Baseline
	}
	if c.Roots.Actual != "" {
		roots.Actual = c.Roots.Actual
	}
	if c.Roots.Diff != "" {
		roots.Diff = c.Roots.Diff
	}
	return roots
}

// StorageBackendConfig builds the storage configuration. db may be nil when
// no database backend is configured.
func (c *Config) StorageBackendConfig(db *sqlx.DB) *storage.Config {
	return &storage.Config{
		Backend:   c.Storage.Type,
		Roots:     c.Visual.StorageRoots(),
		Fallbacks: append([]string(nil), c.Storage.Fallbacks...),
		Redis:     c.Storage.Redis,
		DB:        db,
	}
}

// UsesDatabase reports whether the primary or a fallback backend is DB.
func (c *StorageConfig) UsesDatabase() bool {
	for _, t := range append([]string{c.Type}, c.Fallbacks...) {
		if strings.EqualFold(t, storage.TypeDatabase) || strings.EqualFold(t, "database") {
			return true
		}
	}
	return false
}

// GetReviewAddr returns the review server listen address
func (c *ReviewConfig) GetReviewAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewLogger builds a slog logger writing to w.
func (c *LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// IsProduction returns true if running in production mode
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}
