// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the Shift
// display server.
//
// Configuration is loaded from a single file specified by either the
// SHIFT_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search. A server started
// without a file runs on [Default].
//
// The file may contain development and production sections that
// override base values when [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${XDG_RUNTIME_DIR} and ${VAR:-default} patterns are expanded.
//
// [Watch] reports edits to the configuration file and the layout
// profile so the server can reload virtual monitors and monitor
// placement without restarting.
package config
