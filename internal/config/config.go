// Package config defines the daemon's configuration surface.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validation errors. Replay/wipe misuse fails closed before any thread is
// created, to prevent an accidental partial wipe.
var (
	ErrWipeRequiresReplay = errors.New("wipe is only valid together with replay")
	ErrReplayRequiresWipe = errors.New("wipe flag required with replay: replay removes and rebuilds all collections")
)

// Config is the full configuration surface, loadable from YAML and
// overridable by flags in main.
type Config struct {
	// MongoURI selects the destination database. Empty disables the
	// pipeline entirely (inert, not an error).
	MongoURI string `yaml:"mongodb_uri"`

	// Database overrides the database named in the URI.
	Database string `yaml:"database"`

	// QueueSize is the backpressure target between the event source and
	// the consumer worker.
	QueueSize int `yaml:"queue_size"`

	// StartBlock gates persistence; 0 means enabled immediately.
	StartBlock uint32 `yaml:"start_block"`

	// Replay requests a destructive wipe-and-reingest; Wipe confirms it.
	Replay bool `yaml:"replay"`
	Wipe   bool `yaml:"wipe"`

	// FilterContracts restricts persisted actions to these accounts.
	// Empty persists nothing.
	FilterContracts []string `yaml:"filter_contracts"`

	NATSURL     string `yaml:"nats_url"`
	NATSStream  string `yaml:"nats_stream"`
	NATSSubject string `yaml:"nats_subject"`
	NATSDurable string `yaml:"nats_durable"`

	// RedisAddr enables the shared ABI cache tier when set.
	RedisAddr string `yaml:"redis_addr"`

	// MetricsAddr enables the prometheus listener when set.
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the daemon defaults.
func Default() Config {
	return Config{
		QueueSize:   256,
		NATSURL:     "nats://localhost:4222",
		NATSStream:  "ACCEPTED_TX",
		NATSSubject: "chain.accepted.tx",
		NATSDurable: "filtersink",
		LogLevel:    "info",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Enabled reports whether the pipeline should run at all.
func (c Config) Enabled() bool {
	return c.MongoURI != ""
}

// Validate fails closed on unsafe replay/wipe combinations.
func (c Config) Validate() error {
	if c.Replay && !c.Wipe {
		return ErrReplayRequiresWipe
	}
	if c.Wipe && !c.Replay {
		return ErrWipeRequiresReplay
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must be non-negative, got %d", c.QueueSize)
	}
	return nil
}
