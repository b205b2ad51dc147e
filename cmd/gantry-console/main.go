// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// gantry-console is the operator TUI for one monitored unit. It opens
// a persistent telemetry stream to the twin backend (reconnecting with
// bounded backoff), reduces frames into the local incident state, and
// renders the live view: telemetry, incident phase, orchestration
// timeline, and the supervisor chat.
//
// With no --unit flag the console queries the backend for known units
// and prompts when there is more than one.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gantry-systems/gantry/consoleui"
	"github.com/gantry-systems/gantry/incident"
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
	var logOutput string

	flagSet := pflag.NewFlagSet("gantry-console", pflag.ContinueOnError)
	flagSet.StringVar(&serverURL, "server", "http://localhost:8000", "twin backend base URL")
	flagSet.StringVar(&unitID, "unit", "", "unit to monitor (default: prompt from the backend's unit list)")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	// Background logging must not write to stderr while the alt screen
	// is up; it goes to a file or nowhere.
	logger, closeLogger, err := buildLogger(logOutput)
	if err != nil {
		return err
	}
	defer closeLogger()

	client, err := twinclient.New(twinclient.Config{BaseURL: serverURL, Logger: logger})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	if unitID == "" {
		unitID, err = resolveUnit(client)
		if err != nil {
			return err
		}
	}

	session, err := incident.NewSession(incident.SessionConfig{
		UnitID: unitID,
		API:    client,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	manager, err := stream.NewManager(stream.ManagerConfig{
		BaseURL: serverURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := manager.Connect(unitID); err != nil {
		return err
	}

	model := consoleui.NewModel(session, manager.Events())
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// resolveUnit picks the unit to monitor from the backend's unit list:
// used directly when there is exactly one, prompted for otherwise.
func resolveUnit(client *twinclient.Client) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	units, err := client.Units(ctx)
	if err != nil {
		return "", fmt.Errorf("listing units: %w", err)
	}
	if len(units) == 0 {
		return "", fmt.Errorf("backend reports no units; pass --unit explicitly")
	}
	if len(units) == 1 {
		return units[0].UnitID, nil
	}

	fmt.Fprintf(os.Stderr, "Known units:\n")
	for index, unit := range units {
		marker := " "
		if unit.Active {
			marker = "*"
		}
		fmt.Fprintf(os.Stderr, "  %d. %s %s\n", index+1, marker, unit.UnitID)
	}
	fmt.Fprintf(os.Stderr, "\nSelect unit [1-%d]: ", len(units))

	var selection int
	if _, err := fmt.Scan(&selection); err != nil {
		return "", fmt.Errorf("reading unit selection: %w", err)
	}
	if selection < 1 || selection > len(units) {
		return "", fmt.Errorf("invalid selection %d: must be between 1 and %d", selection, len(units))
	}
	return units[selection-1].UnitID, nil
}

// buildLogger returns a JSON file logger when a path is given, and a
// discard logger otherwise.
func buildLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		handler := slog.NewTextHandler(io.Discard, nil)
		return slog.New(handler), func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), func() { file.Close() }, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Gantry operator console — live terminal UI for one monitored unit.

Connects to the twin backend's telemetry stream, tracks incidents and
orchestration runs, and provides the supervisor chat. The stream
reconnects automatically with bounded backoff; incident state is
rebuilt from frames after every reconnect.

Usage:
  gantry-console [flags]

Examples:
  # Monitor the only unit the backend knows about
  gantry-console

  # Monitor a specific unit on a non-default backend
  gantry-console --server http://twin.internal:8000 --unit ENGINE-002

Keys:
  o  start an orchestration run     r    resume after an incident
  tab  focus the supervisor chat    j/k  scroll the timeline
  q  quit

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
