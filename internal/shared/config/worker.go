package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// WorkerConfig contains all configuration for the remote worker process.
type WorkerConfig struct {
	Server  ServerConfig     `mapstructure:"server"`
	Master  MasterConnConfig `mapstructure:"master"`
	Slots   int              `mapstructure:"slots"`
	Logging LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains worker server configuration. Advertise is the
// address the master dials back; it defaults to Addr.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	Advertise string `mapstructure:"advertise"`
}

// MasterConnConfig contains master connection configuration.
type MasterConnConfig struct {
	Addr        string           `mapstructure:"addr"`
	JoinTimeout time.Duration    `mapstructure:"join_timeout"`
	GRPC        WorkerGRPCConfig `mapstructure:"grpc"`
}

// WorkerGRPCConfig contains worker gRPC client configuration.
type WorkerGRPCConfig struct {
	KeepaliveTime    time.Duration `mapstructure:"keepalive_time"`
	KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`
}

// LoadWorker loads the worker configuration from the given path.
// If configPath is empty, it looks for worker.yaml in the config/ directory.
// Environment variables with HIVEMIND_WORKER_ prefix override config file values.
func LoadWorker(configPath string) (*WorkerConfig, error) {
	v := viper.New()

	v.SetDefault("server.addr", "localhost:7879")
	v.SetDefault("server.advertise", "")
	v.SetDefault("master.addr", "localhost:7877")
	v.SetDefault("master.join_timeout", 10*time.Second)
	v.SetDefault("master.grpc.keepalive_time", 30*time.Second)
	v.SetDefault("master.grpc.keepalive_timeout", 5*time.Second)
	v.SetDefault("slots", 4)
	setLoggingDefaults(v)

	if err := readConfig(v, configPath, "worker", "HIVEMIND_WORKER"); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.Server.Advertise == "" {
		cfg.Server.Advertise = cfg.Server.Addr
	}
	if cfg.Slots <= 0 {
		return nil, fmt.Errorf("slots must be greater than 0, got %d", cfg.Slots)
	}

	return &cfg, nil
}
