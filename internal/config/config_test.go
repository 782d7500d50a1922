package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateReplayWipeCombinations(t *testing.T) {
	cases := []struct {
		name         string
		replay, wipe bool
		want         error
	}{
		{"neither", false, false, nil},
		{"both", true, true, nil},
		{"replay without wipe", true, false, ErrReplayRequiresWipe},
		{"wipe without replay", false, true, ErrWipeRequiresReplay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Replay = tc.replay
			cfg.Wipe = tc.wipe
			if err := cfg.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidateQueueSize(t *testing.T) {
	cfg := Default()
	cfg.QueueSize = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a negative queue size")
	}
}

func TestEnabled(t *testing.T) {
	cfg := Default()
	if cfg.Enabled() {
		t.Error("pipeline must be inert without a mongodb uri")
	}
	cfg.MongoURI = "mongodb://localhost:27017"
	if !cfg.Enabled() {
		t.Error("pipeline must be enabled with a mongodb uri")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filtersink.yaml")
	body := []byte(`
mongodb_uri: mongodb://localhost:27017/Filter
queue_size: 1024
start_block: 5000
filter_contracts:
  - eosio.token
  - alice
redis_addr: localhost:6379
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MongoURI != "mongodb://localhost:27017/Filter" {
		t.Errorf("mongodb_uri: %q", cfg.MongoURI)
	}
	if cfg.QueueSize != 1024 || cfg.StartBlock != 5000 {
		t.Errorf("queue_size=%d start_block=%d", cfg.QueueSize, cfg.StartBlock)
	}
	if len(cfg.FilterContracts) != 2 || cfg.FilterContracts[0] != "eosio.token" {
		t.Errorf("filter_contracts: %v", cfg.FilterContracts)
	}
	// Keys absent from the file keep their defaults.
	if cfg.NATSURL != "nats://localhost:4222" || cfg.LogLevel != "info" {
		t.Errorf("defaults lost: nats_url=%q log_level=%q", cfg.NATSURL, cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
