// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package consoleui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/gantry-systems/gantry/stream"
)

// Theme defines the color palette for the operator console. All colors
// use lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Unit status colors.
	StatusHealthy  lipgloss.Color
	StatusWarning  lipgloss.Color
	StatusCritical lipgloss.Color
	StatusIdle     lipgloss.Color

	// Override and alert accents.
	OverrideAccent lipgloss.Color
	AlertAccent    lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("243"),

	StatusHealthy:  lipgloss.Color("42"),
	StatusWarning:  lipgloss.Color("214"),
	StatusCritical: lipgloss.Color("196"),
	StatusIdle:     lipgloss.Color("245"),

	OverrideAccent: lipgloss.Color("135"),
	AlertAccent:    lipgloss.Color("203"),

	HeaderForeground: lipgloss.Color("81"),
	BorderColor:      lipgloss.Color("238"),
	HelpText:         lipgloss.Color("241"),
}

// StatusColor returns the color for a unit status. Unknown values
// render as faint text.
func (theme Theme) StatusColor(status stream.UnitStatus) lipgloss.Color {
	switch status {
	case stream.StatusHealthy:
		return theme.StatusHealthy
	case stream.StatusWarning:
		return theme.StatusWarning
	case stream.StatusCritical:
		return theme.StatusCritical
	case stream.StatusIdle:
		return theme.StatusIdle
	default:
		return theme.FaintText
	}
}
