package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	DefaultRoom    string        `mapstructure:"default_room"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	ConnRateLimit  int           `mapstructure:"conn_rate_limit"`
	ConnRateWindow time.Duration `mapstructure:"conn_rate_window"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Secret         string        `mapstructure:"secret"`
	Redis          Redis         `mapstructure:"redis"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("default_room", "dashboard")
	v.SetDefault("read_limit", 4096)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("write_timeout", "5s")
	// 0 disables pings; dead peers are then discovered by failed sends only.
	v.SetDefault("ping_period", "0s")
	v.SetDefault("conn_rate_limit", 20)
	v.SetDefault("conn_rate_window", "1m")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("secret", "dev-secret")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
