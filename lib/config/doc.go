// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Pulse
// components.
//
// Configuration is loaded from a single file specified by either the
// PULSE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${PULSE_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Events, Metrics, Ingest, Archive
//   - [Default] -- returns a Config usable without any file at all
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Pulse packages.
package config
