// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/feynmancraft/pulse/lib/codec"
)

// dialTimeout covers the connect phase only.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the server's
// reply after writing the batch. Matched to the server's read plus
// write timeouts to allow for handler execution.
const responseReadTimeout = 45 * time.Second

// maxResponseBytes caps the response read. Responses are tiny; the cap
// guards against a confused peer.
const maxResponseBytes = 64 * 1024

// RejectedError is returned by Submit when the hub answered but
// refused the batch. Transport failures come back as plain errors;
// callers retry those and drop rejected batches.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "batch rejected: " + e.Message
}

// Client submits event batches to a hub ingest socket. Each Submit
// opens a new connection, matching the server's one-request-per-
// connection model.
type Client struct {
	socketPath string
}

// NewClient creates a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Submit ships one batch and returns the number of events the hub
// accepted. A server-side refusal is a *RejectedError.
func (c *Client) Submit(ctx context.Context, batch Batch) (int, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return 0, fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(batch); err != nil {
		return 0, fmt.Errorf("writing batch: %w", err)
	}

	// Half-close the write side so the server's read sees EOF cleanly.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseBytes)).Decode(&response); err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}

	if !response.OK {
		return response.Accepted, &RejectedError{Message: response.Error}
	}
	return response.Accepted, nil
}
