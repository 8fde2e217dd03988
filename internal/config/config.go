package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openpano/tourdex/internal/dataset"
	"github.com/openpano/tourdex/internal/dispatch"
	"github.com/openpano/tourdex/internal/filter"
	"github.com/openpano/tourdex/internal/group"
	"github.com/openpano/tourdex/internal/index"
	"github.com/openpano/tourdex/internal/label"
)

// Config holds the tourdex service configuration.
type Config struct {
	HTTP     HTTPConfig      `yaml:"http"`
	Auth     AuthConfig      `yaml:"auth"`
	Logging  LoggingConfig   `yaml:"logging"`
	Cache    CacheConfig     `yaml:"cache"`
	Scene    SceneConfig     `yaml:"scene"`
	Dataset  dataset.Config  `yaml:"dataset"`
	Filter   filter.Config   `yaml:"filter"`
	Labels   label.Config    `yaml:"labels"`
	Search   index.Config    `yaml:"search"`
	Group    group.Config    `yaml:"group"`
	Content  ContentConfig   `yaml:"content"`
	Dispatch dispatch.Config `yaml:"dispatch"`
}

// AuthConfig holds API authentication settings. Empty APIKeys disables
// authentication.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CacheConfig holds dataset cache settings. Driver "memory" needs no
// addresses; "redis" and "valkey" do.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, valkey (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SceneConfig points at the scene description consumed by the demo binary.
type SceneConfig struct {
	Path string `yaml:"path"`
}

// ContentConfig declares content that is not discovered structurally.
type ContentConfig struct {
	// Containers are container entries declared purely by name.
	Containers []string `yaml:"containers"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Dataset.CacheKey == "" {
		c.Dataset.CacheKey = "tourdex:dataset"
	}
	c.Search.ApplyDefaults()
	c.Dispatch.ApplyDefaults()
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Cache.Driver {
	case "memory":
	case "redis", "valkey":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for driver %q", c.Cache.Driver)
		}
	default:
		return fmt.Errorf("cache.driver must be memory, redis or valkey, got %q", c.Cache.Driver)
	}
	if c.Scene.Path == "" {
		return fmt.Errorf("scene.path is required")
	}
	if c.Dataset.Enabled && c.Dataset.URL == "" && c.Dataset.Path == "" {
		return fmt.Errorf("dataset.url or dataset.path is required when the dataset is enabled")
	}
	return nil
}

// Merge applies a YAML patch on top of the receiver and returns the result.
// Keys absent from the patch keep their current values; this is how runtime
// configuration updates avoid resetting unrelated sections.
func (c Config) Merge(patch []byte) (Config, error) {
	merged := c
	if err := yaml.Unmarshal(expandEnvVars(patch), &merged); err != nil {
		return Config{}, fmt.Errorf("failed to parse config patch: %w", err)
	}
	merged.ApplyDefaults()
	if err := merged.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config patch: %w", err)
	}
	return merged, nil
}

// RequiresRebuild reports whether moving from prev to next changes index
// membership or scoring. Presentation-only changes (grouping, dispatch
// tuning, HTTP, logging) must not trigger a rebuild.
func RequiresRebuild(prev, next Config) bool {
	return !reflect.DeepEqual(prev.Filter, next.Filter) ||
		!reflect.DeepEqual(prev.Labels, next.Labels) ||
		!reflect.DeepEqual(prev.Dataset, next.Dataset) ||
		!reflect.DeepEqual(prev.Content, next.Content) ||
		!reflect.DeepEqual(prev.Search, next.Search) ||
		prev.Scene != next.Scene
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
