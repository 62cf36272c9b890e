// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind shiftctl.
//
// A [Command] tree is dispatched by [Command.Execute], which parses
// pflag flag sets, routes positional subcommands, prints structured
// help, and suggests the nearest command or flag name on a typo. Output
// helpers render lipgloss-aligned [Table] values for people and
// indented JSON for scripts ([JSONOutput]).
package cli
