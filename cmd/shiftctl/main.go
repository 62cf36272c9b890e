// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

// shiftctl inspects and administers a running Shift server through its
// control socket.
package main

import (
	"fmt"
	"os"

	"github.com/shift-foundation/shift/cmd/shiftctl/cli"
	"github.com/shift-foundation/shift/lib/version"
	"github.com/shift-foundation/shift/tab"
)

func main() {
	if err := root().Execute(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func root() *cli.Command {
	return &cli.Command{
		Name:    "shiftctl",
		Summary: "Administer a Shift display server",
		Description: `Administer a Shift display server.

shiftctl talks to the server's control socket. Set --socket or
SHIFT_CONTROL_SOCKET when the server does not use the default path.`,
		Subcommands: []*cli.Command{
			statusCommand(),
			sessionCommand(),
			monitorCommand(),
			historyCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func([]string) error {
					fmt.Println(version.Full(tab.ProtocolVersion))
					return nil
				},
			},
		},
	}
}
