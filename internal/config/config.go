// Package config loads server configuration from defaults, an optional YAML
// file, and LENDING_-prefixed environment variables, in increasing order of
// precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Listen is the TCP endpoint for the lending protocol.
	Listen string
	// MetricsListen is the Prometheus scrape endpoint. Empty disables metrics.
	MetricsListen string
	// ActivityLog is the path of the append-only activity log file.
	ActivityLog string
	// RedisAddr enables the Redis activity stream sink when non-empty.
	RedisAddr string
	// MySQLDSN enables the MySQL audit sink when non-empty.
	MySQLDSN string
	// Workers is the number of goroutines draining the activity queue.
	Workers int
	// EventQueueSize bounds the activity queue; overflow events are dropped.
	EventQueueSize int
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string
	// ShutdownTimeout bounds how long shutdown waits for open connections.
	ShutdownTimeout time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("listen", ":5555")
	v.SetDefault("metrics_listen", "")
	v.SetDefault("activity_log", "lending-activity.log")
	v.SetDefault("redis_addr", "")
	v.SetDefault("mysql_dsn", "")
	v.SetDefault("workers", 4)
	v.SetDefault("event_queue_size", 1024)
	v.SetDefault("log_level", "info")
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetEnvPrefix("LENDING")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Listen:          v.GetString("listen"),
		MetricsListen:   v.GetString("metrics_listen"),
		ActivityLog:     v.GetString("activity_log"),
		RedisAddr:       v.GetString("redis_addr"),
		MySQLDSN:        v.GetString("mysql_dsn"),
		Workers:         v.GetInt("workers"),
		EventQueueSize:  v.GetInt("event_queue_size"),
		LogLevel:        v.GetString("log_level"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}

	if cfg.Listen == "" {
		return nil, fmt.Errorf("listen address must not be empty")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.EventQueueSize < 1 {
		return nil, fmt.Errorf("event_queue_size must be at least 1, got %d", cfg.EventQueueSize)
	}
	return cfg, nil
}
