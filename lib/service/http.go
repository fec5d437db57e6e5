// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPServer serves HTTP on a TCP listener and manages its lifecycle:
// Serve(ctx) blocks until the context is cancelled, then drains active
// requests. The caller provides the http.Handler.
//
// The server sets no write or idle timeout: the hub's /events endpoint
// holds connections open indefinitely, writing SSE frames as they
// arrive. Slow-client protection lives in the event log's bounded
// per-subscriber queues instead.
type HTTPServer struct {
	address string
	handler http.Handler
	logger  *slog.Logger

	// shutdownTimeout bounds the drain after the context is
	// cancelled. SSE handlers observe the shutdown via their request
	// context and return promptly.
	shutdownTimeout time.Duration

	// ready is closed once the listener is bound.
	ready chan struct{}

	// addr is the resolved listen address, valid after ready closes.
	// With a port-0 address this carries the OS-assigned port.
	addr net.Addr
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is the TCP listen address (e.g. "127.0.0.1:8001",
	// ":0"). Required.
	Address string

	// Handler is the HTTP handler for incoming requests. Required.
	Handler http.Handler

	// ShutdownTimeout is the maximum time to wait for in-flight
	// requests during graceful shutdown. Defaults to 10 seconds.
	ShutdownTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewHTTPServer creates a server for the configured address. Call
// Serve to start accepting connections.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Address == "" {
		panic("service.HTTPServer: Address is required")
	}
	if config.Handler == nil {
		panic("service.HTTPServer: Handler is required")
	}
	if config.Logger == nil {
		panic("service.HTTPServer: Logger is required")
	}

	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPServer{
		address:         config.Address,
		handler:         config.Handler,
		logger:          config.Logger,
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}
}

// Ready returns a channel that is closed once the server is bound and
// accepting connections.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// Serve starts accepting connections. Blocks until ctx is cancelled,
// then stops accepting and waits up to ShutdownTimeout for active
// requests to complete.
func (s *HTTPServer) Serve(ctx context.Context) error {
	// Bind early so the resolved address is available and readiness
	// can be signalled before the serve loop starts.
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler: s.handler,

		// Header reads are bounded; bodies and writes are not. The
		// emit endpoint caps its own body reads, and SSE responses
		// must be allowed to write forever.
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Propagate the serve context to handlers so SSE streams unwind
	// during shutdown rather than stalling the drain.
	server.BaseContext = func(net.Listener) context.Context { return ctx }

	s.logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}
