// Package config loads settings from defaults, an optional YAML file,
// OSTREEGUI_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "OSTREEGUI"

type Config struct {
	Tool   ToolConfig   `mapstructure:"tool"`
	Target TargetConfig `mapstructure:"target"`
	Search SearchConfig `mapstructure:"search"`
	Log    LogConfig    `mapstructure:"log"`
}

type ToolConfig struct {
	Binary           string `mapstructure:"binary"`
	EscalationHelper string `mapstructure:"escalation_helper"`
}

type TargetConfig struct {
	Host      string `mapstructure:"host"`
	User      string `mapstructure:"user"`
	Inventory string `mapstructure:"inventory"`
}

type SearchConfig struct {
	// Index is a package name list; see search.Load for the formats.
	Index string `mapstructure:"index"`
}

type LogConfig struct {
	// File receives the log while the terminal UI owns the screen. Empty
	// means stderr.
	File  string `mapstructure:"file"`
	Debug bool   `mapstructure:"debug"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"host":      "target.host",
	"user":      "target.user",
	"inventory": "target.inventory",
	"binary":    "tool.binary",
	"index":     "search.index",
	"log":       "log.file",
	"debug":     "log.debug",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tool.binary", "rpm-ostree")
	v.SetDefault("tool.escalation_helper", "pkexec")
	v.SetDefault("target.host", "localhost")
	v.SetDefault("target.user", "")
	v.SetDefault("target.inventory", "")
	v.SetDefault("search.index", "")
	v.SetDefault("log.file", defaultLogFile())
	v.SetDefault("log.debug", false)
}

// Load reads cfgFile, or config.yaml from the user config directory when
// cfgFile is empty. A missing default file is not an error. flags may be nil;
// only flags the user actually set override the other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "ostreegui"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Tool.Binary == "" {
		result = multierror.Append(result, errors.New("tool.binary must not be empty"))
	}
	if strings.ContainsAny(c.Tool.EscalationHelper, " \t") {
		result = multierror.Append(result, fmt.Errorf("tool.escalation_helper %q must be a single program name", c.Tool.EscalationHelper))
	}
	if c.Target.Host == "" {
		result = multierror.Append(result, errors.New("target.host must not be empty"))
	}
	if c.Target.Inventory != "" {
		if _, err := os.Stat(c.Target.Inventory); err != nil {
			result = multierror.Append(result, fmt.Errorf("target.inventory: %w", err))
		}
	}

	return result.ErrorOrNil()
}

func defaultLogFile() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "ostreegui", "ostreegui.log")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "ostreegui", "ostreegui.log")
}
