// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/archive"
	"github.com/feynmancraft/pulse/lib/clock"
	"github.com/feynmancraft/pulse/lib/config"
	"github.com/feynmancraft/pulse/lib/process"
	"github.com/feynmancraft/pulse/lib/service"
	"github.com/feynmancraft/pulse/lib/version"
	"github.com/feynmancraft/pulse/lib/wire"
	"github.com/feynmancraft/pulse/metrics"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "config file path (default: $PULSE_CONFIG, then built-in defaults)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("pulse-hub %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub(cfg, logger, clock.Real())
	defer hub.log.Close()

	// Retention sweeps for the metrics collector.
	go hub.collector.Run(ctx)

	// Archive sink, when configured. The sink deliberately runs on a
	// background context: after the servers stop it keeps draining its
	// queue and exits once the log closes, so events accepted just
	// before shutdown still reach disk.
	var (
		writer   *archive.Writer
		sinkDone chan struct{}
	)
	if cfg.Archive.Directory != "" {
		writer, err = archive.NewWriter(archive.WriterConfig{
			Directory:   cfg.Archive.Directory,
			Compression: archive.Compression(cfg.Archive.Compression),
			RotateBytes: cfg.Archive.RotateBytes,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer writer.Close()

		sinkDone = make(chan struct{})
		go func() {
			defer close(sinkDone)
			hub.runArchiveSink(context.Background(), writer)
		}()
	}

	// Local ingest socket for sidecar processes, when configured.
	var socketDone chan error
	if cfg.Ingest.SocketPath != "" {
		socketServer := wire.NewSocketServer(wire.SocketServerConfig{
			SocketPath:      cfg.Ingest.SocketPath,
			Handler:         hub.handleBatch,
			Logger:          logger,
			MaxRequestBytes: cfg.Ingest.MaxFrameBytes,
		})
		socketDone = make(chan error, 1)
		go func() {
			socketDone <- socketServer.Serve(ctx)
		}()
	}

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.ListenAddress,
		Handler: hub.routes(),
		Logger:  logger,
	})
	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.Serve(ctx)
	}()

	select {
	case <-httpServer.Ready():
	case err := <-httpDone:
		return fmt.Errorf("http server: %w", err)
	}

	hub.announceReady(httpServer.Addr().String())
	logger.Info("pulse hub running",
		"address", httpServer.Addr().String(),
		"ingest_socket", cfg.Ingest.SocketPath,
		"archive", cfg.Archive.Directory,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-httpDone; err != nil {
		logger.Error("http server error", "error", err)
	}
	if socketDone != nil {
		if err := <-socketDone; err != nil {
			logger.Error("ingest socket error", "error", err)
		}
	}

	// Close the log so the archive sink drains and exits, then seal
	// the final segment.
	hub.log.Close()
	if sinkDone != nil {
		<-sinkDone
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("closing archive", "error", err)
		}
	}

	logger.Info("shutdown complete",
		"batches_accepted", hub.batchesAccepted.Load(),
		"events_accepted", hub.eventsAccepted.Load(),
		"events_rejected", hub.eventsRejected.Load(),
	)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: l,
	}))
}

// Hub is the shared state behind every endpoint: the event log, the
// metrics collector, and the bridge the test endpoints publish through.
type Hub struct {
	config    *config.Config
	logger    *slog.Logger
	log       *event.Log
	collector *metrics.Collector
	bridge    *event.Bridge

	// Ingest counters, updated atomically by socket batch handlers and
	// reported at shutdown.
	batchesAccepted atomic.Uint64
	eventsAccepted  atomic.Uint64
	eventsRejected  atomic.Uint64
}

func newHub(cfg *config.Config, logger *slog.Logger, clk clock.Clock) *Hub {
	log := event.New(event.Options{
		RingCapacity:      cfg.Events.RingCapacity,
		QueueCapacity:     cfg.Events.SubscriberQueue,
		HeartbeatInterval: cfg.Events.HeartbeatInterval.Std(),
		Clock:             clk,
		Logger:            logger,
	})
	collector := metrics.New(metrics.Options{
		Log:             log,
		Clock:           clk,
		Logger:          logger,
		Retention:       cfg.Metrics.Retention.Std(),
		CleanupInterval: cfg.Metrics.CleanupInterval.Std(),
		StaleAfter:      cfg.Metrics.StaleAfter.Std(),
		SampleLimit:     cfg.Metrics.SampleLimit,
	})
	bridge := event.NewBridge(log, event.BridgeOptions{
		Level: cfg.Events.DefaultLevel,
		Clock: clk,
	})
	return &Hub{
		config:    cfg,
		logger:    logger,
		log:       log,
		collector: collector,
		bridge:    bridge,
	}
}

// announceReady publishes the hub's one sequenced startup event.
// Unlike the per-subscription ready markers this frame has a real
// sequence number, so archived streams record when the hub came up.
func (h *Hub) announceReady(address string) {
	h.log.Publish(event.Event{
		Type: event.TypeServerReady,
		Attrs: map[string]any{
			"level":   event.LevelCore,
			"address": address,
			"version": version.Short(),
		},
	})
}
