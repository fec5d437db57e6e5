// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can say "5s" or "24h"
// instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string ("5s", "1h30m").
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar string, got %q", value.Tag)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in the same string form it parses.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for the Pulse hub.
type Config struct {
	// ListenAddress is the host:port the hub's HTTP server binds.
	ListenAddress string `yaml:"listen_address"`

	// Root is the base directory for Pulse runtime data (archive
	// segments, ingest socket). Other paths may reference it as
	// ${PULSE_ROOT}.
	Root string `yaml:"root"`

	// Log configures the structured logger.
	Log LogConfig `yaml:"log"`

	// Events configures the event log and its subscribers.
	Events EventsConfig `yaml:"events"`

	// Metrics configures the tool metrics collector.
	Metrics MetricsConfig `yaml:"metrics"`

	// Ingest configures the local ingest socket.
	Ingest IngestConfig `yaml:"ingest"`

	// Archive configures event persistence. Leave Directory empty to
	// disable archiving entirely.
	Archive ArchiveConfig `yaml:"archive"`

	// CORSOrigins lists the browser origins allowed to read the event
	// stream and dashboard endpoints.
	CORSOrigins []string `yaml:"cors_origins"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, error.
	Level string `yaml:"level"`
}

// EventsConfig configures the event log.
type EventsConfig struct {
	// RingCapacity is how many recent events are retained for replay.
	// When full, the oldest event is evicted on each publish.
	RingCapacity int `yaml:"ring_capacity"`

	// SubscriberQueue is the per-subscriber delivery queue capacity.
	// A subscriber whose queue is full loses the event being
	// published; nobody else is affected.
	SubscriberQueue int `yaml:"subscriber_queue"`

	// HeartbeatInterval is how long a subscriber stream may sit idle
	// before a synthetic heartbeat frame is emitted.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// DefaultLevel is stamped on events published without an explicit
	// verbosity level: 1 (core), 2 (standard), or 3 (debug).
	DefaultLevel int `yaml:"default_level"`
}

// MetricsConfig configures the tool metrics collector.
type MetricsConfig struct {
	// Retention is how long completed call records are kept before the
	// periodic sweep discards them.
	Retention Duration `yaml:"retention"`

	// CleanupInterval is how often the retention sweep runs.
	CleanupInterval Duration `yaml:"cleanup_interval"`

	// StaleAfter is how long a call may stay in-flight before the
	// sweep declares it abandoned and removes it.
	StaleAfter Duration `yaml:"stale_after"`

	// SampleLimit caps the per-tool duration samples retained for
	// percentile computation.
	SampleLimit int `yaml:"sample_limit"`
}

// IngestConfig configures the local ingest socket.
type IngestConfig struct {
	// SocketPath is the Unix socket path external processes submit
	// event batches to. Empty disables the socket.
	SocketPath string `yaml:"socket_path"`

	// MaxFrameBytes caps a single ingest request. Oversized requests
	// are rejected before decoding.
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`
}

// ArchiveConfig configures event persistence.
type ArchiveConfig struct {
	// Directory is where archive segments are written. Empty disables
	// archiving.
	Directory string `yaml:"directory"`

	// Compression selects the segment codec: none, zstd, or lz4.
	Compression string `yaml:"compression"`

	// RotateBytes is the uncompressed size at which the active segment
	// is sealed and a new one started.
	RotateBytes int64 `yaml:"rotate_bytes"`
}

// Default returns the default configuration. Unlike most services the
// hub is expected to run fine with no config file at all: every field
// has a working default for a local single-machine setup.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "pulse")

	return &Config{
		ListenAddress: "127.0.0.1:8001",
		Root:          defaultRoot,
		Log: LogConfig{
			Level: "info",
		},
		Events: EventsConfig{
			RingCapacity:      5000,
			SubscriberQueue:   2000,
			HeartbeatInterval: Duration(5 * time.Second),
			DefaultLevel:      2,
		},
		Metrics: MetricsConfig{
			Retention:       Duration(24 * time.Hour),
			CleanupInterval: Duration(5 * time.Minute),
			StaleAfter:      Duration(time.Hour),
			SampleLimit:     1000,
		},
		Ingest: IngestConfig{
			SocketPath:    "${PULSE_ROOT}/ingest.sock",
			MaxFrameBytes: 1 << 20,
		},
		Archive: ArchiveConfig{
			Directory:   "",
			Compression: "zstd",
			RotateBytes: 64 << 20,
		},
		CORSOrigins: []string{
			"http://localhost:5173",
			"http://localhost:5174",
			"http://localhost:5175",
			"http://localhost:5176",
			"http://localhost:3000",
			"http://localhost:8088",
		},
	}
}

// Load loads configuration from the PULSE_CONFIG environment variable.
// When PULSE_CONFIG is unset the defaults are returned unchanged, so a
// bare `pulse-hub` with no environment still starts.
func Load() (*Config, error) {
	configPath := os.Getenv("PULSE_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values. The only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"PULSE_ROOT": c.Root,
		"HOME":       os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["PULSE_ROOT"] = c.Root // Update for dependent paths.

	c.Ingest.SocketPath = expandVars(c.Ingest.SocketPath, vars)
	c.Archive.Directory = expandVars(c.Archive.Directory, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("listen_address is required"))
	}

	logLevels := []string{"debug", "info", "warn", "error"}
	if !contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}

	if c.Events.RingCapacity < 1 {
		errs = append(errs, fmt.Errorf("events.ring_capacity must be positive"))
	}
	if c.Events.SubscriberQueue < 1 {
		errs = append(errs, fmt.Errorf("events.subscriber_queue must be positive"))
	}
	if c.Events.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("events.heartbeat_interval must be positive"))
	}
	if c.Events.DefaultLevel < 1 || c.Events.DefaultLevel > 3 {
		errs = append(errs, fmt.Errorf("events.default_level must be 1, 2, or 3"))
	}

	if c.Metrics.Retention <= 0 {
		errs = append(errs, fmt.Errorf("metrics.retention must be positive"))
	}
	if c.Metrics.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("metrics.cleanup_interval must be positive"))
	}
	if c.Metrics.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("metrics.stale_after must be positive"))
	}
	if c.Metrics.SampleLimit < 1 {
		errs = append(errs, fmt.Errorf("metrics.sample_limit must be positive"))
	}

	if c.Ingest.SocketPath != "" && c.Ingest.MaxFrameBytes < 1 {
		errs = append(errs, fmt.Errorf("ingest.max_frame_bytes must be positive"))
	}

	compressions := []string{"none", "zstd", "lz4"}
	if !contains(compressions, c.Archive.Compression) {
		errs = append(errs, fmt.Errorf("archive.compression must be one of: %v", compressions))
	}
	if c.Archive.Directory != "" && c.Archive.RotateBytes < 1 {
		errs = append(errs, fmt.Errorf("archive.rotate_bytes must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Root}
	if c.Archive.Directory != "" {
		paths = append(paths, c.Archive.Directory)
	}
	if c.Ingest.SocketPath != "" {
		paths = append(paths, filepath.Dir(c.Ingest.SocketPath))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
