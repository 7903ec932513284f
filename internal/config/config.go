// Package config loads Tessera configuration through Viper from a
// .tessera.yml file, TESSERA_ environment variables and command-line flags.
//
// Sections cover component discovery, rendering, the development server,
// the fetch cache and logging. Defaults are applied after unmarshalling and
// the result is validated before it is returned.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tessera/internal/errors"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".tessera.yml"

// EnvPrefix prefixes environment overrides, e.g. TESSERA_SERVER_PORT.
const EnvPrefix = "TESSERA"

type Config struct {
	Components ComponentsConfig `mapstructure:"components" yaml:"components"`
	Render     RenderConfig     `mapstructure:"render" yaml:"render"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

type ComponentsConfig struct {
	ScanPaths  []string `mapstructure:"scan_paths" yaml:"scan_paths"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Remote     []string `mapstructure:"remote" yaml:"remote"`
}

type RenderConfig struct {
	MaxDepth       int    `mapstructure:"max_depth" yaml:"max_depth"`
	MaxRenderDepth int    `mapstructure:"max_render_depth" yaml:"max_render_depth"`
	Style          string `mapstructure:"style" yaml:"style"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Compression    bool     `mapstructure:"compression" yaml:"compression"`
	Watch          bool     `mapstructure:"watch" yaml:"watch"`
}

type CacheConfig struct {
	Path    string        `mapstructure:"path" yaml:"path"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Components: ComponentsConfig{
			ScanPaths:  []string{"./components"},
			Extensions: []string{".html", ".tmpl"},
		},
		Render: RenderConfig{
			MaxDepth:       8,
			MaxRenderDepth: 16,
			Style:          "shadow",
		},
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8080,
			Compression: true,
			Watch:       true,
		},
		Cache: CacheConfig{
			Path:    ".tessera/cache.db",
			TTL:     10 * time.Minute,
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// SetDefaults registers the defaults with v so IsSet and env lookups work
// for every key.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("components.scan_paths", d.Components.ScanPaths)
	v.SetDefault("components.extensions", d.Components.Extensions)
	v.SetDefault("components.remote", []string{})
	v.SetDefault("render.max_depth", d.Render.MaxDepth)
	v.SetDefault("render.max_render_depth", d.Render.MaxRenderDepth)
	v.SetDefault("render.style", d.Render.Style)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.compression", d.Server.Compression)
	v.SetDefault("server.watch", d.Server.Watch)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.timeout", d.Cache.Timeout)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// ConfigureEnv enables TESSERA_ environment overrides on v.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v, fills in defaults for empty values and validates
// the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "unmarshal configuration")
	}

	// Comma-separated environment values arrive as a single string.
	for key, dst := range map[string]*[]string{
		"components.scan_paths":  &config.Components.ScanPaths,
		"components.extensions":  &config.Components.Extensions,
		"components.remote":      &config.Components.Remote,
		"server.allowed_origins": &config.Server.AllowedOrigins,
	} {
		*dst = splitList(v.GetStringSlice(key))
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid configuration")
	}
	return &config, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func applyDefaults(config *Config) {
	d := Default()
	if len(config.Components.ScanPaths) == 0 && len(config.Components.Remote) == 0 {
		config.Components.ScanPaths = d.Components.ScanPaths
	}
	if len(config.Components.Extensions) == 0 {
		config.Components.Extensions = d.Components.Extensions
	}
	for i, ext := range config.Components.Extensions {
		if !strings.HasPrefix(ext, ".") {
			config.Components.Extensions[i] = "." + ext
		}
	}
	if config.Render.MaxDepth == 0 {
		config.Render.MaxDepth = d.Render.MaxDepth
	}
	if config.Render.MaxRenderDepth == 0 {
		config.Render.MaxRenderDepth = d.Render.MaxRenderDepth
	}
	if config.Render.Style == "" {
		config.Render.Style = d.Render.Style
	}
	if config.Server.Host == "" {
		config.Server.Host = d.Server.Host
	}
	if config.Cache.Timeout == 0 {
		config.Cache.Timeout = d.Cache.Timeout
	}
	if config.Logging.Level == "" {
		config.Logging.Level = d.Logging.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = d.Logging.Format
	}
}

// validateConfig returns the first validation error.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		first := result.Errors[0]
		return &first
	}
	return nil
}

// Address returns host:port of the server section.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// WriteFile writes c as YAML to path, refusing to overwrite.
func (c *Config) WriteFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, path+" already exists")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "encode configuration")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.WrapIO(err, errors.ErrCodeFileNotFound, "create "+dir)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "write "+path)
	}
	return nil
}
