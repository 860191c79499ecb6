// Package config loads readthrough settings from defaults, an optional TOML
// file, READTHROUGH_* environment variables and command-line flags.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/spf13/viper"
)

const (
	appName   = "readthrough"
	envPrefix = "READTHROUGH"
)

// Store backends.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Value factories used on a miss.
const (
	ValuesRandom = "random"
	ValuesWeb    = "web"
)

type Config struct {
	Cache  CacheConfig  `mapstructure:"cache"`
	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

type CacheConfig struct {
	Collection string        `mapstructure:"collection"`
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Values     string        `mapstructure:"values"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// Path defaults to a backend specific file under Dir().
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	// Addr is the HTTP listen address. Empty disables HTTP.
	Addr   string `mapstructure:"addr"`
	Socket string `mapstructure:"socket"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// New returns a viper instance with defaults, config search paths and
// environment bindings set. Callers may bind flags on it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName(appName)
	v.SetConfigType("toml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, appName))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.collection", "cache")
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.timeout", 5*time.Second)
	v.SetDefault("cache.values", ValuesRandom)
	v.SetDefault("store.backend", BackendBolt)
	v.SetDefault("store.path", "")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.socket", filepath.Join(Dir(), "cache.sock"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.path", "")
}

// Dir is the directory holding the store file and socket by default.
func Dir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(os.TempDir(), appName)
}

// Load reads the optional config file and returns the validated settings.
// A missing config file is not an error; a malformed one is.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.WithContext(
				errors.Wrap(err, errors.CodeInvalidConfig, "failed to read config file"),
				"file", v.ConfigFileUsed())
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to decode config")
	}
	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	cfg.Cache.Values = strings.ToLower(strings.TrimSpace(cfg.Cache.Values))
	if cfg.Store.Path == "" {
		name := "cache.bbolt"
		if cfg.Store.Backend == BackendSQLite {
			name = "cache.db"
		}
		cfg.Store.Path = filepath.Join(Dir(), name)
	}
}

// Validate rejects settings the cache cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Cache.MaxEntries < 1:
		return invalid("cache.max_entries", c.Cache.MaxEntries, "must be at least 1")
	case c.Cache.TTL <= 0:
		return invalid("cache.ttl", c.Cache.TTL.String(), "must be positive")
	case c.Cache.Timeout < 0:
		return invalid("cache.timeout", c.Cache.Timeout.String(), "must not be negative")
	case c.Cache.Collection == "":
		return invalid("cache.collection", c.Cache.Collection, "must not be empty")
	}
	switch c.Cache.Values {
	case ValuesRandom, ValuesWeb:
	default:
		return invalid("cache.values", c.Cache.Values, "must be random or web")
	}
	switch c.Store.Backend {
	case BackendBolt, BackendSQLite:
	default:
		return invalid("store.backend", c.Store.Backend, "must be bolt or sqlite")
	}
	if c.Server.Socket == "" {
		return invalid("server.socket", c.Server.Socket, "must not be empty")
	}
	return nil
}

func invalid(key string, value any, msg string) error {
	return errors.WithContextMap(
		errors.New(errors.CodeInvalidConfig, key+" "+msg),
		map[string]interface{}{"key": key, "value": value})
}
