// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// gantry-trigger injects a critical failure into a running twin
// backend. It broadcasts a critical alert for the unit, which halts
// the system, freezes the telemetry stream, and auto-launches an
// orchestration run on every connected console.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/gantry-systems/gantry/stream"
	"github.com/gantry-systems/gantry/twinclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var serverURL string
	var unitID string
	var rul float64
	var vibration float64
	var cycle int
	var message string

	flagSet := pflag.NewFlagSet("gantry-trigger", pflag.ContinueOnError)
	flagSet.StringVar(&serverURL, "server", "http://localhost:8000", "twin backend base URL")
	flagSet.StringVar(&unitID, "unit", "ENGINE-001", "unit to fail")
	flagSet.Float64Var(&rul, "rul", 0, "remaining useful life to report")
	flagSet.Float64Var(&vibration, "vibration", 0.25, "vibration level to report")
	flagSet.IntVar(&cycle, "cycle", 999, "operating cycle to report")
	flagSet.StringVar(&message, "message", "", "alert message (default derived from the unit)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	client, err := twinclient.New(twinclient.Config{BaseURL: serverURL})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := client.BroadcastAlert(ctx, twinclient.AlertRequest{
		UnitID:    unitID,
		RUL:       rul,
		Vibration: vibration,
		Cycle:     stream.Cycle(strconv.Itoa(cycle)),
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("broadcasting alert: %w", err)
	}

	fmt.Printf("critical failure injected for %s (rul=%.1f, cycle=%d)\n", unitID, rul, cycle)
	fmt.Printf("alert broadcast to %d connected client(s)\n", result.Clients)
	return nil
}
