// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for Shift
// binaries.
//
// Three package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//
// [Version] is set manually for releases. Formatting functions produce
// the strings printed by --version and reported by the control socket.
package version
