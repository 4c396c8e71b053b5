// Package config loads tidelog's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fenwick-labs/tidelog/internal/store"
)

// Config is the full runtime configuration. Zero values are filled from
// DefaultConfig before a file is applied, so partial files are fine.
type Config struct {
	DBPath    string                `yaml:"db_path"`
	BackupDir string                `yaml:"backup_dir"`
	Retention store.RetentionPolicy `yaml:"retention"`
	Recovery  RecoveryConfig        `yaml:"recovery"`
	Replay    ReplayConfig          `yaml:"replay"`
	Logging   LoggingConfig         `yaml:"logging"`
}

// RecoveryConfig tunes the recovery manager.
type RecoveryConfig struct {
	EnableAutoRecovery  bool          `yaml:"enable_auto_recovery"`
	FailureThreshold    int           `yaml:"failure_threshold"`
	BackupInterval      time.Duration `yaml:"backup_interval"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	MaxQueueDepth       int           `yaml:"max_queue_depth"`
	DiskFloorBytes      int64         `yaml:"disk_floor_bytes"`
}

// ReplayConfig supplies replay session defaults.
type ReplayConfig struct {
	CheckpointInterval int `yaml:"checkpoint_interval"`
	MaxConcurrency     int `yaml:"max_concurrency"`
}

// LoggingConfig tunes the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:    "tidelog.db",
		BackupDir: "backups",
		Retention: store.DefaultRetentionPolicy(),
		Recovery: RecoveryConfig{
			EnableAutoRecovery:  true,
			FailureThreshold:    3,
			BackupInterval:      6 * time.Hour,
			HealthCheckInterval: time.Minute,
			MaxQueueDepth:       1000,
			DiskFloorBytes:      500 << 20,
		},
		Replay: ReplayConfig{
			CheckpointInterval: 100,
			MaxConcurrency:     4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is empty")
	}
	if c.Recovery.FailureThreshold < 0 {
		return fmt.Errorf("config: failure_threshold is negative")
	}
	if c.Replay.CheckpointInterval < 0 {
		return fmt.Errorf("config: checkpoint_interval is negative")
	}
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: logging level %q: %w", c.Logging.Level, err)
	}
	return nil
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
