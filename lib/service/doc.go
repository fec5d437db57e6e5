// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the HTTP plumbing shared by the hub and the
// CLI: a lifecycle-managed [HTTPServer] (port-0 capable, graceful
// shutdown, no write timeout so SSE streams can run unbounded) and a
// [Client] for the hub's endpoints, including the /events SSE stream.
package service
