package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for resolvr.
type Config struct {
	Log     LogConfig               `mapstructure:"log"     toml:"log"`
	Engine  EngineConfig            `mapstructure:"engine"  toml:"engine"`
	Cache   CacheConfig             `mapstructure:"cache"   toml:"cache"`
	Tracing TracingConfig           `mapstructure:"tracing" toml:"tracing"`
	Formats map[string]FormatConfig `mapstructure:"formats" toml:"formats"`
	Scopes  []ScopeConfig           `mapstructure:"scopes"  toml:"scopes"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"  toml:"level"`
	Pretty bool   `mapstructure:"pretty" toml:"pretty"` // console writer even when not on a TTY
}

// EngineConfig holds engine-wide defaults.
type EngineConfig struct {
	PassModifiedRequest bool `mapstructure:"pass_modified_request" toml:"pass_modified_request"`
}

// CacheConfig controls the resolution memo.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"     toml:"enabled"`
	Size       int  `mapstructure:"size"        toml:"size"`
	TTLSeconds int  `mapstructure:"ttl_seconds" toml:"ttl_seconds"` // 0 keeps entries until their scope recompiles
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "resolvr"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// FormatConfig declares a text format on top of the built-in ones. The
// rendered text is Prefix + text + Suffix, after the case transform.
type FormatConfig struct {
	Prefix string `mapstructure:"prefix" toml:"prefix"`
	Suffix string `mapstructure:"suffix" toml:"suffix"`
	Case   string `mapstructure:"case"   toml:"case"` // "", "upper", "lower"
}

// ScopeConfig declares one resolution scope.
type ScopeConfig struct {
	Name   string `mapstructure:"name"   toml:"name"`
	Parent string `mapstructure:"parent" toml:"parent,omitempty"`

	// Tags are passed to the scope's middleware as part of its init value.
	Tags []string `mapstructure:"tags" toml:"tags,omitempty"`

	// PassModifiedRequest overrides engine.pass_modified_request when set.
	PassModifiedRequest *bool `mapstructure:"pass_modified_request" toml:"pass_modified_request,omitempty"`

	Middleware []MiddlewareConfig `mapstructure:"middleware" toml:"middleware"`
}

// MiddlewareConfig names a middleware plugin and its parameters.
type MiddlewareConfig struct {
	Name   string         `mapstructure:"name"   toml:"name"`
	Params map[string]any `mapstructure:"params" toml:"params,omitempty"`
}

// Scope returns the scope named name.
func (c *Config) Scope(name string) (ScopeConfig, bool) {
	for _, s := range c.Scopes {
		if s.Name == name {
			return s, true
		}
	}
	return ScopeConfig{}, false
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (RESOLVR_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.resolvr/resolvr.toml
//  4. ./resolvr.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults from the default config so viper knows every key.
	setViperDefaults(v)

	// Environment variable overlay: RESOLVR_LOG_LEVEL etc.
	v.SetEnvPrefix("RESOLVR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".resolvr"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("resolvr")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	// A file that declares scopes or formats replaces the defaults instead
	// of being merged into them element by element.
	if v.IsSet("scopes") {
		cfg.Scopes = nil
	}
	if v.IsSet("formats") {
		cfg.Formats = nil
	}
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// Parse decodes TOML data on top of the defaults and validates it, without
// touching the global config.
func Parse(data []byte) (*Config, error) {
	var probe map[string]any
	if err := toml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg := DefaultConfig()
	if _, ok := probe["scopes"]; ok {
		cfg.Scopes = nil
	}
	if _, ok := probe["formats"]; ok {
		cfg.Formats = nil
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.resolvr/resolvr.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".resolvr")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	data, err := toml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	data, err := toml.Marshal(Get())
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file, validates it and makes it current.
// The imported config is also persisted to the active config file so changes
// survive restarts.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	set(cfg)

	if dest := ConfigFilePath(); dest != "" {
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config for persistence: %w", err)
		}
		if err := os.WriteFile(dest, out, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}

	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every scalar key with viper so that env var
// binding works even when no config file is present. Scopes and formats are
// file-only.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Log
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)

	// Engine
	v.SetDefault("engine.pass_modified_request", d.Engine.PassModifiedRequest)

	// Cache
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.size", d.Cache.Size)
	v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
}
