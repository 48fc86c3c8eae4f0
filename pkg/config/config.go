// Package config loads engine configuration from a config file,
// environment variables, and defaults, in that precedence order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName is used for config file discovery.
	AppName = "toolmint"

	// EnvPrefix is the prefix for environment variables
	// (e.g. TOOLMINT_STORE_DIR).
	EnvPrefix = "TOOLMINT"
)

// Config holds the engine configuration.
type Config struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"` // json or human
	LogFile   string `mapstructure:"log_file"`

	// Store settings
	Store struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"store"`

	// Execution limits
	Execution struct {
		MaxSteps    int           `mapstructure:"max_steps"`
		HTTPTimeout time.Duration `mapstructure:"http_timeout"`
		AITimeout   time.Duration `mapstructure:"ai_timeout"`
	} `mapstructure:"execution"`

	// Inference collaborator settings
	Inference struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
	} `mapstructure:"inference"`

	// Trace settings
	Trace struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"trace"`
}

// Load reads configuration from the given file (optional), the
// environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("store.dir", ".toolmint/tools")
	v.SetDefault("execution.max_steps", 256)
	v.SetDefault("execution.http_timeout", 30*time.Second)
	v.SetDefault("execution.ai_timeout", 2*time.Minute)
	v.SetDefault("inference.base_url", "https://api.openai.com/v1")
	v.SetDefault("inference.model", "gpt-4o-mini")
	v.SetDefault("trace.dir", ".toolmint/runs")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/" + AppName)
		if err := v.ReadInConfig(); err != nil {
			// A missing config file is fine; defaults and env apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
