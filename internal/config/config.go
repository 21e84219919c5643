package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string        `mapstructure:"environment"`
	LogLevel    string        `mapstructure:"log_level"`
	Server      ServerConfig  `mapstructure:"server"`
	Database    DBConfig      `mapstructure:"database"`
	Update      UpdateConfig  `mapstructure:"update"`
	Network     NetworkConfig `mapstructure:"network"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// UpdateConfig controls the fetch worker pool and refresh policy.
type UpdateConfig struct {
	Concurrency     int  `mapstructure:"concurrency"`
	DefaultInterval int  `mapstructure:"default_interval"` // minutes
	MaxItems        int  `mapstructure:"max_items"`
	EnableRetries   bool `mapstructure:"enable_retries"`
}

type NetworkConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	ProxyHost     string        `mapstructure:"proxy_host"`
	ProxyPort     int           `mapstructure:"proxy_port"`
	ProxyUser     string        `mapstructure:"proxy_user"`
	ProxyPassword string        `mapstructure:"proxy_password"`
	UserAgent     string        `mapstructure:"user_agent"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/feed-aggregator/")

	// Set defaults
	setDefaults()

	// Enable environment variable override
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// The update engine needs at least one reserved high-priority worker
	// plus one normal worker.
	if config.Update.Concurrency < 2 {
		config.Update.Concurrency = 2
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	viper.SetDefault("database.path", defaultDatabasePath())

	viper.SetDefault("update.concurrency", 4)
	viper.SetDefault("update.default_interval", 60)
	viper.SetDefault("update.max_items", 100)
	viper.SetDefault("update.enable_retries", true)

	viper.SetDefault("network.timeout", "30s")
	viper.SetDefault("network.proxy_host", "")
	viper.SetDefault("network.proxy_port", 0)
	viper.SetDefault("network.user_agent", "feed-aggregator/1.0")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}

func defaultDatabasePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "feed-aggregator", "feed-aggregator.db")
}
