// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError makes shiftctl exit with Code without printing an error
// line. The command has already reported the outcome.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the process exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}
