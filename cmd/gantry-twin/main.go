// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// gantry-twin runs the digital-twin backend: the telemetry stream,
// the incident halt/resume state machine, the orchestration pipeline,
// and the supervisor chat, exposed over HTTP and websocket.
//
// With no configuration file it simulates a small fleet of engines
// with deterministic degradation curves, which is the development
// setup: point gantry-console at it and inject a failure with
// gantry-trigger.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gantry-systems/gantry/twin"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var listenAddr string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "path to YAML configuration file")
	flag.StringVar(&listenAddr, "listen", "", "listen address (overrides the configuration file)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid -log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	config := twin.DefaultConfig()
	if configPath != "" {
		loaded, err := twin.LoadConfig(configPath)
		if err != nil {
			return err
		}
		config = loaded
	}
	if listenAddr != "" {
		config.ListenAddr = listenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := twin.NewServer(config, nil, nil, nil, logger)
	logger.Info("twin backend running",
		"listen", config.ListenAddr,
		"units", config.Units,
	)
	return server.Start(ctx)
}
