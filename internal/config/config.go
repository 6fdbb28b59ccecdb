// Package config loads the executor and ctl binaries' YAML configuration
// file and supplies defaults for every key a fresh install needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is where LoadOrGenerate writes a fresh config file
	// when none exists yet, mirroring a single-binary install layout.
	DefaultConfigDir  = "/etc/signalbeam"
	DefaultConfigName = "config.yaml"
)

// Config is the root of the on-disk configuration tree. Every subsection is
// a pointer so a partial file only overrides the keys it sets; NewDefault
// fills in the rest.
type Config struct {
	Service    *ServiceConfig    `yaml:"service,omitempty"`
	Database   *DatabaseConfig   `yaml:"database,omitempty"`
	KV         *KVConfig         `yaml:"kv,omitempty"`
	Reconcile  *ReconcileConfig  `yaml:"reconcile,omitempty"`
	Assignment *AssignmentConfig `yaml:"assignment,omitempty"`
	Rollout    *RolloutConfig    `yaml:"rollout,omitempty"`
	Metrics    *MetricsConfig    `yaml:"metrics,omitempty"`
}

type ServiceConfig struct {
	LogLevel string `yaml:"logLevel,omitempty"`
}

// DatabaseConfig describes the Postgres connection the gorm store dials.
type DatabaseConfig struct {
	Hostname string       `yaml:"hostname,omitempty"`
	Port     uint         `yaml:"port,omitempty"`
	Name     string       `yaml:"name,omitempty"`
	User     string       `yaml:"user,omitempty"`
	Password SecureString `yaml:"password,omitempty"`
	SSLMode  string       `yaml:"sslMode,omitempty"`
}

// KVConfig describes the Redis instance backing the event outbox relay.
type KVConfig struct {
	Hostname string       `yaml:"hostname,omitempty"`
	Port     uint         `yaml:"port,omitempty"`
	Password SecureString `yaml:"password,omitempty"`
}

// ReconcileConfig governs the executor's control loop cadence.
type ReconcileConfig struct {
	TickInterval time.Duration `yaml:"tickInterval,omitempty"`
	TickDeadline time.Duration `yaml:"tickDeadline,omitempty"`
	ShardCount   int           `yaml:"shardCount,omitempty"`
}

// AssignmentConfig governs per-device retry and heartbeat behavior.
type AssignmentConfig struct {
	MaxRetries        int           `yaml:"maxRetries,omitempty"`
	HeartbeatDeadline time.Duration `yaml:"heartbeatDeadline,omitempty"`
}

// RolloutConfig holds rollout-wide settings. StallAlertAfter sets the
// executor's stall-alert delay. DefaultFailureThreshold is loaded but not
// read by the planner or the CLI; a request's own FailureThreshold is used
// as given.
type RolloutConfig struct {
	DefaultFailureThreshold float64       `yaml:"defaultFailureThreshold,omitempty"`
	StallAlertAfter         time.Duration `yaml:"stallAlertAfter,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Address string `yaml:"address,omitempty"`
}

// NewDefault returns a Config with every field populated to a value safe
// for a local, single-tenant development deployment.
func NewDefault() *Config {
	return &Config{
		Service: &ServiceConfig{LogLevel: "info"},
		Database: &DatabaseConfig{
			Hostname: "localhost",
			Port:     5432,
			Name:     "signalbeam",
			User:     "signalbeam",
			Password: "",
			SSLMode:  "disable",
		},
		KV: &KVConfig{
			Hostname: "localhost",
			Port:     6379,
		},
		Reconcile: &ReconcileConfig{
			TickInterval: 30 * time.Second,
			TickDeadline: 30 * time.Second,
			ShardCount:   8,
		},
		Assignment: &AssignmentConfig{
			MaxRetries:        3,
			HeartbeatDeadline: 15 * time.Minute,
		},
		Rollout: &RolloutConfig{
			DefaultFailureThreshold: 0.05,
			StallAlertAfter:         24 * time.Hour,
		},
		Metrics: &MetricsConfig{
			Enabled: true,
			Address: ":8080",
		},
	}
}

// ConfigFile returns the path LoadOrGenerate reads from and writes to,
// honoring SIGNALBEAM_CONFIG when set.
func ConfigFile() string {
	if p := os.Getenv("SIGNALBEAM_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir, DefaultConfigName)
}

// LoadOrGenerate reads the YAML file at path, merging it over NewDefault's
// values. If path does not exist, it writes NewDefault's values there and
// returns them, so a first run always leaves a usable config file behind.
func LoadOrGenerate(path string) (*Config, error) {
	cfg := NewDefault()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := writeDefault(path, cfg); werr != nil {
			return nil, fmt.Errorf("config: writing default config: %w", werr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

func writeDefault(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o640)
}

// DSN builds the Postgres connection string the gorm postgres driver
// expects, in "key=value" space-separated form.
func (d *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%d", d.Hostname, d.User, string(d.Password), d.Port)
	if d.Name != "" {
		dsn += fmt.Sprintf(" dbname=%s", d.Name)
	}
	if d.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", d.SSLMode)
	}
	return dsn
}

// String renders the config as YAML with every SecureString field redacted,
// safe to drop into a startup log line.
func (c *Config) String() string {
	redacted := *c
	if c.Database != nil {
		db := *c.Database
		db.Password = SecureString(db.Password.String())
		redacted.Database = &db
	}
	if c.KV != nil {
		kv := *c.KV
		kv.Password = SecureString(kv.Password.String())
		redacted.KV = &kv
	}
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Sprintf("<config: marshal error: %v>", err)
	}
	return string(out)
}
