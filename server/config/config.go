// Package config loads server configuration from defaults, an optional yaml
// file and environment variables.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Chat   ChatConfig   `mapstructure:"chat"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	DBPath  string `mapstructure:"db_path"`
}

type ChatConfig struct {
	HistoryLimit  int           `mapstructure:"history_limit"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateWindow    time.Duration `mapstructure:"rate_window"`
	TypingTimeout time.Duration `mapstructure:"typing_timeout"`
	DefaultRoom   string        `mapstructure:"default_room"`
}

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.db_path", "./chatroom.db")
	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("chat.rate_limit", 30)
	v.SetDefault("chat.rate_window", "60s")
	v.SetDefault("chat.typing_timeout", "3s")
	v.SetDefault("chat.default_room", "general")

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHATROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		logger.Warn("config file not found, relying on defaults and env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
