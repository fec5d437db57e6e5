// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/feynmancraft/pulse/lib/codec"
)

// Handler processes one validated ingest batch and returns the number
// of events it published. A returned error becomes a failure response.
type Handler func(ctx context.Context, batch Batch) (accepted int, err error)

// SocketServer serves the ingest protocol on a Unix socket. Each
// connection handles exactly one request-response cycle: the client
// writes a CBOR batch, the server publishes it and writes a CBOR
// response, then the connection closes.
type SocketServer struct {
	socketPath string
	handler    Handler
	logger     *slog.Logger
	maxBytes   int64

	// activeConnections tracks in-flight handlers so Serve can drain
	// them before returning.
	activeConnections sync.WaitGroup
}

// SocketServerConfig configures a SocketServer.
type SocketServerConfig struct {
	// SocketPath is the Unix socket to listen on. Required.
	SocketPath string

	// Handler receives each validated batch. Required.
	Handler Handler

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// MaxRequestBytes caps a single request read. Defaults to
	// DefaultMaxRequestBytes when zero.
	MaxRequestBytes int64
}

// NewSocketServer creates a server that will listen on the configured
// socket path. Call Serve to start accepting connections.
func NewSocketServer(config SocketServerConfig) *SocketServer {
	if config.SocketPath == "" {
		panic("wire.SocketServer: SocketPath is required")
	}
	if config.Handler == nil {
		panic("wire.SocketServer: Handler is required")
	}
	if config.Logger == nil {
		panic("wire.SocketServer: Logger is required")
	}
	maxBytes := config.MaxRequestBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestBytes
	}
	return &SocketServer{
		socketPath: config.SocketPath,
		handler:    config.Handler,
		logger:     config.Logger,
		maxBytes:   maxBytes,
	}
}

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits for active handlers to finish. Any stale socket
// file at the configured path is removed before listening, and the
// socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("ingest socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long the server waits for the client's request.
// A well-behaved forwarder writes its batch immediately on connect.
const readTimeout = 30 * time.Second

// writeTimeout bounds the response write.
const writeTimeout = 10 * time.Second

// handleConnection processes one request-response cycle.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var batch Batch
	if err := codec.NewDecoder(io.LimitReader(conn, s.maxBytes)).Decode(&batch); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeResponse(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	if batch.Source == "" {
		s.writeResponse(conn, Response{Error: "missing required field: source"})
		return
	}
	if len(batch.Events) == 0 {
		s.writeResponse(conn, Response{Error: "batch contains no events"})
		return
	}

	accepted, err := s.handler(ctx, batch)
	if err != nil {
		s.logger.Debug("ingest batch failed",
			"source", batch.Source,
			"events", len(batch.Events),
			"error", err,
		)
		s.writeResponse(conn, Response{Accepted: accepted, Error: err.Error()})
		return
	}
	s.writeResponse(conn, Response{OK: true, Accepted: accepted})
}

// writeResponse sends the reply. Write failures are logged at debug
// level; the connection is closing regardless.
func (s *SocketServer) writeResponse(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write ingest response", "error", err)
	}
}
