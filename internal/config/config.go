// Package config loads and validates the YAML configuration for a
// statehost process.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP and gRPC hosting configuration.
type ServerConfig struct {
	NodeID          string        `yaml:"node_id"`
	Host            string        `yaml:"host"`
	GRPCPort        int           `yaml:"grpc_port"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MembershipConfig holds the gossip-based secondary discovery
// configuration.
type MembershipConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BindPort       int           `yaml:"bind_port"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// BuildStreamConfig holds catch-up streaming configuration for secondary
// replicas joining after the primary already has committed history.
type BuildStreamConfig struct {
	Workers        int           `yaml:"workers"`
	BatchSize      int           `yaml:"batch_size"`
	ChecksumEvery  int           `yaml:"checksum_every"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`
}

// ValidationConfig holds the entry/batch validation limits.
type ValidationConfig struct {
	MaxTypeSize     int `yaml:"max_type_size"`
	MaxKeySize      int `yaml:"max_key_size"`
	MaxValueSize    int `yaml:"max_value_size"`
	MaxBatchEntries int `yaml:"max_batch_entries"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds zap logger configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HealthConfig holds the periodic health checker configuration.
type HealthConfig struct {
	Interval             time.Duration `yaml:"interval"`
	MaxStagingDepth      int           `yaml:"max_staging_depth"`
	MaxPendingGroups     int           `yaml:"max_pending_groups"`
	MaxGroupAge          time.Duration `yaml:"max_group_age"`
}

// Config is the complete configuration for a statehost process.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Membership  MembershipConfig  `yaml:"membership"`
	BuildStream BuildStreamConfig `yaml:"build_stream"`
	Validation  ValidationConfig  `yaml:"validation"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Health      HealthConfig      `yaml:"health"`
}

// LoadConfig reads, parses, defaults, and validates a config file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 7070
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 7071
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Membership.BindPort == 0 {
		cfg.Membership.BindPort = 7946
	}
	if cfg.Membership.GossipInterval == 0 {
		cfg.Membership.GossipInterval = 200 * time.Millisecond
	}
	if cfg.Membership.ProbeTimeout == 0 {
		cfg.Membership.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.Membership.ProbeInterval == 0 {
		cfg.Membership.ProbeInterval = time.Second
	}

	if cfg.BuildStream.Workers == 0 {
		cfg.BuildStream.Workers = 4
	}
	if cfg.BuildStream.BatchSize == 0 {
		cfg.BuildStream.BatchSize = 500
	}
	if cfg.BuildStream.ChecksumEvery == 0 {
		cfg.BuildStream.ChecksumEvery = 1000
	}
	if cfg.BuildStream.StreamTimeout == 0 {
		cfg.BuildStream.StreamTimeout = 5 * time.Minute
	}

	if cfg.Validation.MaxTypeSize == 0 {
		cfg.Validation.MaxTypeSize = 256
	}
	if cfg.Validation.MaxKeySize == 0 {
		cfg.Validation.MaxKeySize = 1024
	}
	if cfg.Validation.MaxValueSize == 0 {
		cfg.Validation.MaxValueSize = 4 * 1024 * 1024
	}
	if cfg.Validation.MaxBatchEntries == 0 {
		cfg.Validation.MaxBatchEntries = 10000
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = 5 * time.Second
	}
	if cfg.Health.MaxStagingDepth == 0 {
		cfg.Health.MaxStagingDepth = 50000
	}
	if cfg.Health.MaxPendingGroups == 0 {
		cfg.Health.MaxPendingGroups = 10000
	}
	if cfg.Health.MaxGroupAge == 0 {
		cfg.Health.MaxGroupAge = 30 * time.Second
	}
}

// Validate checks required fields and sane ranges.
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return fmt.Errorf("server.node_id is required")
	}
	if c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port must be between 1 and 65535")
	}
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535")
	}
	if c.BuildStream.Workers < 1 {
		return fmt.Errorf("build_stream.workers must be at least 1")
	}
	if c.Validation.MaxBatchEntries < 1 {
		return fmt.Errorf("validation.max_batch_entries must be at least 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
