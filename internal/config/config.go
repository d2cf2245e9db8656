// Package config loads tool settings from an optional YAML file and
// FSADMIN_-prefixed environment variables. The resulting Config is built
// once at startup and passed by injection; nothing reads configuration
// ambiently after that.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the immutable runtime configuration.
type Config struct {
	APIKey      string `mapstructure:"api_key"`
	Domain      string `mapstructure:"domain"`
	WorkspaceID int64  `mapstructure:"workspace_id"`
	DryRun      bool   `mapstructure:"dry_run"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	OutputDir   string `mapstructure:"output_dir"`
}

// Load reads configuration from the given file (optional) and the
// environment. Environment variables override file values.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so environment-only values survive Unmarshal.
	v.SetDefault("api_key", "")
	v.SetDefault("domain", "")
	v.SetDefault("workspace_id", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "fsadmin.log")
	v.SetDefault("output_dir", ".")
	v.SetDefault("dry_run", false)

	v.SetEnvPrefix("FSADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("fsadmin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/fsadmin")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields a live session cannot run without.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (set FSADMIN_API_KEY or api_key in the config file)")
	}
	return nil
}
