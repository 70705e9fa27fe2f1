package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/nemanja-m/hivemind/pkg/core"
)

// MasterConfig contains all configuration for the master process.
type MasterConfig struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	REST      RESTConfig      `mapstructure:"rest"`
	Health    HealthConfig    `mapstructure:"health"`
	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SchedulerConfig controls how jobs are decomposed and retried.
type SchedulerConfig struct {
	ChunkSize   int64 `mapstructure:"chunk_size"`
	RangeMin    int64 `mapstructure:"range_min"`
	RangeMax    int64 `mapstructure:"range_max"`
	MaxAttempts int   `mapstructure:"max_attempts"`
	StopOnHit   bool  `mapstructure:"stop_on_hit"`
}

// WorkersConfig sets how many local workers each family master spawns.
type WorkersConfig struct {
	Local int `mapstructure:"local"`
}

// GRPCConfig contains the registry server and worker dialing configuration.
type GRPCConfig struct {
	Addr             string        `mapstructure:"addr"`
	EnableReflection bool          `mapstructure:"enable_reflection"`
	KeepaliveMinTime time.Duration `mapstructure:"keepalive_min_time"`
	KeepaliveTime    time.Duration `mapstructure:"keepalive_time"`
	KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`
}

// RESTConfig contains operator API server configuration.
type RESTConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// HealthConfig contains remote worker health checking configuration.
type HealthConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

type InputConfig struct {
	Paths []string `mapstructure:"paths"`
}

type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// ShutdownConfig bounds the final wait for termination. Zero waits forever.
type ShutdownConfig struct {
	AwaitTimeout time.Duration `mapstructure:"await_timeout"`
}

// LoadMaster loads the master configuration from the given path.
// If configPath is empty, it looks for master.yaml in the config/ directory.
// Environment variables with HIVEMIND_MASTER_ prefix override config file values.
func LoadMaster(configPath string) (*MasterConfig, error) {
	v := viper.New()

	v.SetDefault("scheduler.chunk_size", 100_000)
	v.SetDefault("scheduler.range_min", 0)
	v.SetDefault("scheduler.range_max", 9_999_999)
	v.SetDefault("scheduler.max_attempts", 5)
	v.SetDefault("scheduler.stop_on_hit", false)
	v.SetDefault("workers.local", 4)
	v.SetDefault("grpc.addr", ":7877")
	v.SetDefault("grpc.enable_reflection", true)
	v.SetDefault("grpc.keepalive_min_time", 30*time.Second)
	v.SetDefault("grpc.keepalive_time", 10*time.Second)
	v.SetDefault("grpc.keepalive_timeout", 5*time.Second)
	v.SetDefault("rest.enabled", false)
	v.SetDefault("rest.addr", ":8080")
	v.SetDefault("rest.read_timeout", 15*time.Second)
	v.SetDefault("rest.write_timeout", 15*time.Second)
	v.SetDefault("rest.idle_timeout", 60*time.Second)
	v.SetDefault("health.check_interval", 5*time.Second)
	v.SetDefault("health.probe_timeout", 2*time.Second)
	v.SetDefault("input.paths", []string{"./students.csv"})
	v.SetDefault("output.path", "./results.tsv")
	v.SetDefault("shutdown.await_timeout", 0)
	setLoggingDefaults(v)

	if err := readConfig(v, configPath, "master", "HIVEMIND_MASTER"); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg MasterConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *MasterConfig) Validate() error {
	var errs []error
	if c.Scheduler.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.chunk_size must be greater than 0, got %d", c.Scheduler.ChunkSize))
	}
	if c.Scheduler.RangeMin < 0 {
		errs = append(errs, fmt.Errorf("scheduler.range_min must not be negative, got %d", c.Scheduler.RangeMin))
	}
	if c.Scheduler.RangeMax < c.Scheduler.RangeMin {
		errs = append(errs, fmt.Errorf("scheduler.range_max must not be below range_min, got %d < %d", c.Scheduler.RangeMax, c.Scheduler.RangeMin))
	}
	if c.Scheduler.RangeMax > core.MaxRangeValue {
		errs = append(errs, fmt.Errorf("scheduler.range_max must not exceed %d, got %d", core.MaxRangeValue, c.Scheduler.RangeMax))
	}
	if c.Scheduler.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_attempts must not be negative, got %d", c.Scheduler.MaxAttempts))
	}
	if c.Workers.Local < 0 {
		errs = append(errs, fmt.Errorf("workers.local must not be negative, got %d", c.Workers.Local))
	}
	if c.Health.CheckInterval <= 0 {
		errs = append(errs, errors.New("health.check_interval must be positive"))
	}
	if c.Output.Path == "" {
		errs = append(errs, errors.New("output.path is required"))
	}
	return errors.Join(errs...)
}
