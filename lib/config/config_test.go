// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ListenAddress != "127.0.0.1:8001" {
		t.Errorf("expected listen_address=127.0.0.1:8001, got %s", cfg.ListenAddress)
	}

	if cfg.Events.RingCapacity != 5000 {
		t.Errorf("expected ring_capacity=5000, got %d", cfg.Events.RingCapacity)
	}

	if cfg.Events.HeartbeatInterval.Std() != 5*time.Second {
		t.Errorf("expected heartbeat_interval=5s, got %s", cfg.Events.HeartbeatInterval.Std())
	}

	if cfg.Events.DefaultLevel != 2 {
		t.Errorf("expected default_level=2, got %d", cfg.Events.DefaultLevel)
	}

	if cfg.Archive.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Archive.Compression)
	}

	if len(cfg.CORSOrigins) == 0 {
		t.Error("expected default cors_origins to be non-empty")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestLoad_NoPulseConfig(t *testing.T) {
	// Save and restore PULSE_CONFIG.
	origConfig := os.Getenv("PULSE_CONFIG")
	defer os.Setenv("PULSE_CONFIG", origConfig)

	// Unset PULSE_CONFIG - Load() should fall back to defaults.
	os.Unsetenv("PULSE_CONFIG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() without PULSE_CONFIG failed: %v", err)
	}

	if cfg.ListenAddress != "127.0.0.1:8001" {
		t.Errorf("expected default listen_address, got %s", cfg.ListenAddress)
	}
}

func TestLoad_WithPulseConfig(t *testing.T) {
	// Save and restore PULSE_CONFIG.
	origConfig := os.Getenv("PULSE_CONFIG")
	defer os.Setenv("PULSE_CONFIG", origConfig)

	// Create temp config file.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "pulse.yaml")

	configContent := `
listen_address: 127.0.0.1:9100
events:
  ring_capacity: 100
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	// Set PULSE_CONFIG and load.
	os.Setenv("PULSE_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ListenAddress != "127.0.0.1:9100" {
		t.Errorf("expected listen_address=127.0.0.1:9100, got %s", cfg.ListenAddress)
	}

	if cfg.Events.RingCapacity != 100 {
		t.Errorf("expected ring_capacity=100, got %d", cfg.Events.RingCapacity)
	}
}

func TestLoadFile(t *testing.T) {
	// Create temp config file.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "pulse.yaml")

	configContent := `
listen_address: 0.0.0.0:8001
root: /custom/pulse

log:
  level: debug

events:
  ring_capacity: 256
  subscriber_queue: 64
  heartbeat_interval: 2s
  default_level: 1

metrics:
  retention: 6h
  sample_limit: 200

archive:
  directory: ${PULSE_ROOT}/segments
  compression: lz4
  rotate_bytes: 1048576
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.ListenAddress != "0.0.0.0:8001" {
		t.Errorf("expected listen_address=0.0.0.0:8001, got %s", cfg.ListenAddress)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log.level=debug, got %s", cfg.Log.Level)
	}

	if cfg.Events.RingCapacity != 256 {
		t.Errorf("expected ring_capacity=256, got %d", cfg.Events.RingCapacity)
	}

	if cfg.Events.HeartbeatInterval.Std() != 2*time.Second {
		t.Errorf("expected heartbeat_interval=2s, got %s", cfg.Events.HeartbeatInterval.Std())
	}

	if cfg.Metrics.Retention.Std() != 6*time.Hour {
		t.Errorf("expected retention=6h, got %s", cfg.Metrics.Retention.Std())
	}

	// Fields absent from the file keep their defaults.
	if cfg.Metrics.CleanupInterval.Std() != 5*time.Minute {
		t.Errorf("expected default cleanup_interval=5m, got %s", cfg.Metrics.CleanupInterval.Std())
	}

	// ${PULSE_ROOT} expands to the file's root value.
	if cfg.Archive.Directory != "/custom/pulse/segments" {
		t.Errorf("expected archive.directory=/custom/pulse/segments, got %s", cfg.Archive.Directory)
	}

	if cfg.Archive.Compression != "lz4" {
		t.Errorf("expected compression=lz4, got %s", cfg.Archive.Compression)
	}
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: `"250ms"`, want: 250 * time.Millisecond},
		{input: `"1h30m"`, want: 90 * time.Minute},
		{input: `"5s"`, want: 5 * time.Second},
		{input: `"fast"`, wantErr: true},
		{input: `[1, 2]`, wantErr: true},
	}

	for _, tt := range tests {
		var d Duration
		err := yaml.Unmarshal([]byte(tt.input), &d)
		if (err != nil) != tt.wantErr {
			t.Errorf("unmarshal %s: error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && d.Std() != tt.want {
			t.Errorf("unmarshal %s = %s, want %s", tt.input, d.Std(), tt.want)
		}
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/pulse",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/pulse",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "empty listen address",
			modify: func(c *Config) {
				c.ListenAddress = ""
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "loud"
			},
			wantErr: true,
		},
		{
			name: "zero ring capacity",
			modify: func(c *Config) {
				c.Events.RingCapacity = 0
			},
			wantErr: true,
		},
		{
			name: "event level out of range",
			modify: func(c *Config) {
				c.Events.DefaultLevel = 4
			},
			wantErr: true,
		},
		{
			name: "invalid compression",
			modify: func(c *Config) {
				c.Archive.Compression = "gzip"
			},
			wantErr: true,
		},
		{
			name: "archive enabled with zero rotate size",
			modify: func(c *Config) {
				c.Archive.Directory = "/tmp/segments"
				c.Archive.RotateBytes = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Root = filepath.Join(tmpDir, "pulse")
	cfg.Archive.Directory = filepath.Join(cfg.Root, "segments")
	cfg.Ingest.SocketPath = filepath.Join(cfg.Root, "run", "ingest.sock")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	// Verify directories were created.
	for _, path := range []string{cfg.Root, cfg.Archive.Directory, filepath.Join(cfg.Root, "run")} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
