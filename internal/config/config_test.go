package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
}

func TestDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "cache", cfg.Cache.Collection)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, ValuesRandom, cfg.Cache.Values)
	assert.Equal(t, BackendBolt, cfg.Store.Backend)
	assert.Equal(t, filepath.Join(Dir(), "cache.bbolt"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(Dir(), "cache.sock"), cfg.Server.Socket)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("READTHROUGH_CACHE_MAX_ENTRIES", "7")
	t.Setenv("READTHROUGH_CACHE_TTL", "30s")
	t.Setenv("READTHROUGH_STORE_BACKEND", "SQLite")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Cache.MaxEntries)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, filepath.Join(Dir(), "cache.db"), cfg.Store.Path)
}

func TestConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "readthrough.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[cache]
collection = "pages"
values = "web"
ttl = "15m"

[store]
path = "/tmp/pages.bbolt"
`), 0o600))

	v := New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "pages", cfg.Cache.Collection)
	assert.Equal(t, ValuesWeb, cfg.Cache.Values)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "/tmp/pages.bbolt", cfg.Store.Path)
}

func TestMalformedConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "readthrough.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cache\n"), 0o600))

	v := New()
	v.SetConfigFile(path)
	_, err := Load(v)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Cache:  CacheConfig{Collection: "cache", MaxEntries: 1, TTL: time.Second, Values: ValuesRandom},
			Store:  StoreConfig{Backend: BackendBolt, Path: "x"},
			Server: ServerConfig{Socket: "s"},
		}
	}
	base := valid()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"zero max entries": func(c *Config) { c.Cache.MaxEntries = 0 },
		"zero ttl":         func(c *Config) { c.Cache.TTL = 0 },
		"negative timeout": func(c *Config) { c.Cache.Timeout = -time.Second },
		"empty collection": func(c *Config) { c.Cache.Collection = "" },
		"unknown values":   func(c *Config) { c.Cache.Values = "zeros" },
		"unknown backend":  func(c *Config) { c.Store.Backend = "mongo" },
		"empty socket":     func(c *Config) { c.Server.Socket = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
		})
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("READTHROUGH_CACHE_MAX_ENTRIES", "0")
	_, err := Load(New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.max_entries")
}
