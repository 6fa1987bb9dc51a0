package tablekv

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

// Config tunes a database. Zero values are not meaningful; start from
// DefaultConfig or LoadConfig.
type Config struct {
	Home string `mapstructure:"home"`

	Journal struct {
		// Fsync syncs every journal append to stable storage. Disabling it
		// trades sequence crash-durability for speed.
		Fsync bool `mapstructure:"fsync"`
	} `mapstructure:"journal"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	var cfg Config
	cfg.Journal.Fsync = true
	cfg.Log.Level = "info"
	return cfg
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SlogLevel maps the configured log level to a slog level, defaulting to
// info on unknown values.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
