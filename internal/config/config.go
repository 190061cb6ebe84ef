// Package config loads beanline settings from .beanline.yaml, BEANLINE_*
// environment variables and flag overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file base name searched for in the working
// directory and in $HOME/.config/beanline.
const FileName = ".beanline"

// Config is the resolved configuration.
type Config struct {
	Beans struct {
		Bin     string        `mapstructure:"bin"`
		Path    string        `mapstructure:"path"`
		Retries int           `mapstructure:"retries"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"beans"`

	View struct {
		Mode     string   `mapstructure:"mode"`
		Sort     string   `mapstructure:"sort"`
		Statuses []string `mapstructure:"statuses"`
	} `mapstructure:"view"`

	Reparent struct {
		MaxDepth int `mapstructure:"max-depth"`
	} `mapstructure:"reparent"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Serve struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"serve"`

	Watch struct {
		Debounce    time.Duration `mapstructure:"debounce"`
		ErrorWindow time.Duration `mapstructure:"error-window"`
	} `mapstructure:"watch"`

	Claude struct {
		Model string `mapstructure:"model"`
	} `mapstructure:"claude"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("beans.bin", "beans")
	v.SetDefault("beans.path", "")
	v.SetDefault("beans.retries", 2)
	v.SetDefault("beans.timeout", 30*time.Second)
	v.SetDefault("view.mode", "nested")
	v.SetDefault("view.sort", "status-priority-type-title")
	v.SetDefault("view.statuses", []string{})
	v.SetDefault("reparent.max-depth", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("serve.port", 7171)
	v.SetDefault("watch.debounce", 300*time.Millisecond)
	v.SetDefault("watch.error-window", 30*time.Second)
	v.SetDefault("claude.model", "claude-sonnet-4-5")
}

// New returns a viper instance with defaults, search paths and env binding.
// An explicit path overrides the search.
func New(explicit string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "beanline"))
		}
	}

	v.SetEnvPrefix("BEANLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if one exists, and decodes everything into
// a Config. A missing file is not an error; a missing explicit file is.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Beans.Retries < 0 {
		return fmt.Errorf("beans.retries must not be negative")
	}
	if c.Reparent.MaxDepth < 1 {
		return fmt.Errorf("reparent.max-depth must be at least 1")
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port %d out of range", c.Serve.Port)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
