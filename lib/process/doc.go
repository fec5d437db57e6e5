// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Pulse
// binaries. It centralizes the raw stderr reporting that happens
// before the structured logger is configured: main() collects an
// error from run() and hands it to [Fatal]. Everything after logger
// setup goes through slog instead.
package process
