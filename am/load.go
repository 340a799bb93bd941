package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teranos/quotesearch/errors"
)

// EnvPrefix is the prefix of every environment override (QUOTESEARCH_JOBS_STORE, ...)
const EnvPrefix = "QUOTESEARCH"

const fileName = "am.toml"

// loaded caches the merged settings for the life of the process until Reset
var loaded struct {
	sync.Mutex
	v      *viper.Viper
	config *Config
	file   string
}

// Load returns the cached configuration, building it on first use from
// defaults, config files and the environment.
func Load() (*Config, error) {
	loaded.Lock()
	defer loaded.Unlock()
	if loaded.config != nil {
		return loaded.config, nil
	}
	cfg, err := LoadWithViper(viperLocked())
	if err != nil {
		return nil, err
	}
	loaded.config = cfg
	return cfg, nil
}

// GetViper exposes the merged settings for rendering
func GetViper() *viper.Viper {
	loaded.Lock()
	defer loaded.Unlock()
	return viperLocked()
}

// ActiveConfigFile is the highest-precedence file merged into the settings,
// or "" when only defaults and environment apply.
func ActiveConfigFile() string {
	loaded.Lock()
	defer loaded.Unlock()
	viperLocked()
	return loaded.file
}

// Reset drops the cached settings; the next Load reads everything again
func Reset() {
	loaded.Lock()
	loaded.v, loaded.config, loaded.file = nil, nil, ""
	loaded.Unlock()
}

func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &cfg, nil
}

// LoadFromFile reads one TOML file over the defaults, ignoring the environment
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	cfg, err := LoadWithViper(v)
	return cfg, errors.Wrapf(err, "config file %s", path)
}

// UserConfigPath returns ~/.quotesearch/am.toml
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".quotesearch", fileName)
}

func viperLocked() *viper.Viper {
	if loaded.v != nil {
		return loaded.v
	}

	// .env fills in variables that are not already set
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)

	// later files win; the environment wins over all of them
	for _, path := range configCandidates() {
		if mergeFile(v, path) {
			loaded.file = path
		}
	}

	loaded.v = v
	return v
}

// configCandidates lists system, user and project files in precedence order
func configCandidates() []string {
	paths := []string{"/etc/quotesearch/" + fileName}
	if p := UserConfigPath(); p != "" {
		paths = append(paths, p)
	}
	if p := projectConfig(); p != "" {
		paths = append(paths, p)
	}
	return paths
}

// projectConfig is the nearest am.toml in the working directory or above it
func projectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, fileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func mergeFile(v *viper.Viper, path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	file := viper.New()
	file.SetConfigFile(path)
	file.SetConfigType("toml")
	if err := file.ReadInConfig(); err != nil {
		return false
	}
	return v.MergeConfigMap(file.AllSettings()) == nil
}
