package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "quotesearch.db", cfg.Database.Path)
	assert.Equal(t, StoreMemory, cfg.Jobs.Store)
	assert.Equal(t, 4, cfg.Jobs.MaxConcurrentWorkers)
	assert.Equal(t, 7, cfg.Jobs.RetentionDays)
	assert.Equal(t, 6*time.Hour, cfg.Jobs.PurgeInterval)
	assert.Equal(t, 5*time.Second, cfg.Jobs.CancelGrace)
	assert.Equal(t, 5, cfg.Discovery.Limit)
	assert.Equal(t, "Angola", cfg.Discovery.LocationHint)
	assert.Equal(t, 1, cfg.Discovery.MaxDepth)
	assert.Equal(t, ProviderOpenRouter, cfg.Scoring.Provider)
	require.NotNil(t, cfg.OpenRouter.Temperature)
	assert.InDelta(t, 0.2, *cfg.OpenRouter.Temperature, 1e-9)
	assert.Equal(t, DefaultServerPort, cfg.GetServerPort())

	require.NoError(t, cfg.Validate())
}

func TestLogConfigZapLevel(t *testing.T) {
	_, ok := LogConfig{}.ZapLevel()
	assert.False(t, ok)

	level, ok := LogConfig{Level: "info"}.ZapLevel()
	assert.True(t, ok)
	assert.Equal(t, zapcore.InfoLevel, level)

	_, ok = LogConfig{Level: "verbose"}.ZapLevel()
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"sqlite store valid", func(c *Config) { c.Jobs.Store = StoreSQLite }, ""},
		{"unknown store", func(c *Config) { c.Jobs.Store = "redis" }, "jobs.store"},
		{"zero workers", func(c *Config) { c.Jobs.MaxConcurrentWorkers = 0 }, "jobs.max_concurrent_workers"},
		{"negative retention", func(c *Config) { c.Jobs.RetentionDays = -1 }, "jobs.retention_days"},
		{"zero purge interval disables ticker", func(c *Config) { c.Jobs.PurgeInterval = 0 }, ""},
		{"negative purge interval", func(c *Config) { c.Jobs.PurgeInterval = -time.Second }, "jobs.purge_interval"},
		{"empty extractor url", func(c *Config) { c.Extractor.BaseURL = "" }, "extractor.base_url"},
		{"zero extractor timeout", func(c *Config) { c.Extractor.TimeoutSeconds = 0 }, "extractor.timeout_seconds"},
		{"zero rate is unlimited", func(c *Config) { c.Extractor.RequestsPerMinute = 0 }, ""},
		{"discovery limit zero", func(c *Config) { c.Discovery.Limit = 0 }, "discovery.limit"},
		{"discovery disabled skips limit", func(c *Config) { c.Discovery.Enabled = false; c.Discovery.Limit = 0 }, ""},
		{"discovery limit above cap", func(c *Config) { c.Discovery.Limit = MaxDiscoveryLimit + 1 }, "discovery.limit"},
		{"discovery limit at cap", func(c *Config) { c.Discovery.Limit = MaxDiscoveryLimit }, ""},
		{"negative depth", func(c *Config) { c.Discovery.MaxDepth = -1 }, "discovery.max_depth"},
		{"depth above cap", func(c *Config) { c.Discovery.MaxDepth = MaxDiscoveryDepth + 1 }, "discovery.max_depth"},
		{"unknown provider", func(c *Config) { c.Scoring.Provider = "gpt" }, "scoring.provider"},
		{"local provider needs url", func(c *Config) {
			c.Scoring.Provider = ProviderLocal
			c.LocalInference.BaseURL = ""
		}, "local_inference.base_url"},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"debug log level", func(c *Config) { c.Log.Level = "debug" }, ""},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[jobs]
store = "sqlite"
max_concurrent_workers = 2
purge_interval = "30m"

[discovery]
max_depth = 2
location_hint = "Luanda"
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Jobs.Store)
	assert.Equal(t, 2, cfg.Jobs.MaxConcurrentWorkers)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.PurgeInterval)
	assert.Equal(t, 2, cfg.GetDiscoveryMaxDepth())
	assert.Equal(t, "Luanda", cfg.Discovery.LocationHint)
	// untouched sections keep defaults
	assert.Equal(t, 7, cfg.Jobs.RetentionDays)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestUpdateSetting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "am.toml")

	require.NoError(t, UpdateSetting(path, "jobs.max_concurrent_workers", 8))
	require.NoError(t, UpdateSetting(path, "discovery.location_hint", "Benguela"))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Jobs.MaxConcurrentWorkers)
	assert.Equal(t, "Benguela", cfg.Discovery.LocationHint)

	// second write rotated the first file into .back1
	_, err = os.Stat(path + ".back1")
	assert.NoError(t, err)

	assert.Error(t, UpdateSetting(path, "jobs..x", 1))
}

func TestRedactSecrets(t *testing.T) {
	settings := map[string]interface{}{
		"openrouter": map[string]interface{}{"api_key": "sk-123", "model": "m"},
		"extractor":  map[string]interface{}{"api_key": ""},
	}
	out := RedactSecrets(settings)

	assert.Equal(t, redacted, out["openrouter"].(map[string]interface{})["api_key"])
	assert.Equal(t, "m", out["openrouter"].(map[string]interface{})["model"])
	assert.Equal(t, "", out["extractor"].(map[string]interface{})["api_key"])
	// input untouched
	assert.Equal(t, "sk-123", settings["openrouter"].(map[string]interface{})["api_key"])
}

func TestRender(t *testing.T) {
	settings := map[string]interface{}{
		"jobs": map[string]interface{}{"store": "memory", "retention_days": 7},
	}

	out, err := Render(settings, FormatTOML)
	require.NoError(t, err)
	var fromTOML map[string]interface{}
	require.NoError(t, toml.Unmarshal(out, &fromTOML))
	assert.Equal(t, "memory", fromTOML["jobs"].(map[string]interface{})["store"])

	out, err = Render(settings, FormatYAML)
	require.NoError(t, err)
	var fromYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &fromYAML))
	assert.Equal(t, 7, fromYAML["jobs"].(map[string]interface{})["retention_days"])

	out, err = Render(settings, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"store": "memory"`)

	_, err = Render(settings, "xml")
	assert.Error(t, err)

	assert.Equal(t, []string{"jobs.retention_days", "jobs.store"}, SortedKeys(settings))
}

func TestConfigWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[jobs]\nmax_concurrent_workers = 2\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()
	cw.loader = func() (*Config, error) { return LoadFromFile(path) }
	cw.debouncePeriod = 10 * time.Millisecond

	got := make(chan int, 4)
	cw.OnReload(func(c *Config) error {
		got <- c.Jobs.MaxConcurrentWorkers
		return nil
	})
	cw.Start()

	require.NoError(t, os.WriteFile(path, []byte("[jobs]\nmax_concurrent_workers = 6\n"), 0644))

	select {
	case n := <-got:
		assert.Equal(t, 6, n)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback not called")
	}
}

func TestConfigWatcherRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[jobs]\nmax_concurrent_workers = 0\n"), 0644))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()
	cw.loader = func() (*Config, error) { return LoadFromFile(path) }

	called := false
	cw.OnReload(func(*Config) error { called = true; return nil })

	assert.Error(t, cw.reload())
	assert.False(t, called)
}

func TestOwnWriteIsSkippedOnce(t *testing.T) {
	cw := &ConfigWatcher{}
	cw.MarkOwnWrite()
	assert.True(t, cw.ownSave.CompareAndSwap(true, false))
	assert.False(t, cw.ownSave.CompareAndSwap(true, false))
}

func TestGetDiscoveryMaxDepthIsBounded(t *testing.T) {
	cfg := &Config{}
	for _, tt := range []struct{ configured, want int }{
		{-2, 0},
		{0, 0},
		{2, 2},
		{MaxDiscoveryDepth + 10, MaxDiscoveryDepth},
	} {
		cfg.Discovery.MaxDepth = tt.configured
		assert.Equal(t, tt.want, cfg.GetDiscoveryMaxDepth(), "configured %d", tt.configured)
	}
}
