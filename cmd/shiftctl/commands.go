// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/shift-foundation/shift/cmd/shiftctl/cli"
	"github.com/shift-foundation/shift/lib/journal"
	"github.com/shift-foundation/shift/lib/service"
	"github.com/shift-foundation/shift/server"
)

// callTimeout bounds one control request.
const callTimeout = 10 * time.Second

// detailWidth caps the history DETAIL column.
const detailWidth = 60

func defaultControlSocket() string {
	if path := os.Getenv("SHIFT_CONTROL_SOCKET"); path != "" {
		return path
	}
	directory := os.Getenv("XDG_RUNTIME_DIR")
	if directory == "" {
		directory = "/tmp"
	}
	return filepath.Join(directory, "shift-control.sock")
}

// controlParams are shared by every command that calls the server.
type controlParams struct {
	cli.JSONOutput
	Socket string
}

func (p *controlParams) flags(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&p.Socket, "socket", defaultControlSocket(), "control socket path")
	p.AddFlag(flagSet)
	return flagSet
}

func (p *controlParams) call(action string, fields map[string]any, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return service.NewClient(p.Socket).Call(ctx, action, fields, result)
}

func statusCommand() *cli.Command {
	var params controlParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show server status",
		Flags:   func() *pflag.FlagSet { return params.flags("status") },
		Run: func(args []string) error {
			var status server.Status
			if err := params.call("status", nil, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(status); done {
				return err
			}
			table := cli.NewTable("FIELD", "VALUE")
			table.Row("version", status.Version)
			table.Row("protocol", status.Protocol)
			uptime := time.Duration(status.UptimeSeconds * float64(time.Second))
			table.Row("uptime", uptime.Truncate(time.Second).String())
			table.Row("sessions", status.Sessions)
			table.Row("connections", status.Connections)
			table.Row("monitors", status.Monitors)
			table.Row("focused", status.Focused)
			table.Row("admin session", status.AdminSession)
			if status.JournalDropped > 0 {
				table.Row("journal dropped", status.JournalDropped)
			}
			table.Render(os.Stdout)
			return nil
		},
	}
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Summary: "List and manage sessions",
		Subcommands: []*cli.Command{
			sessionListCommand(),
			sessionCreateCommand(),
			sessionIDCommand("close", "close-session", "Close a session and release its outputs"),
			sessionIDCommand("focus", "focus-session", "Give focus to an occupied session"),
		},
	}
}

func sessionListCommand() *cli.Command {
	var params controlParams
	return &cli.Command{
		Name:    "list",
		Summary: "List sessions",
		Flags:   func() *pflag.FlagSet { return params.flags("list") },
		Run: func(args []string) error {
			var entries []server.SessionEntry
			if err := params.call("list-sessions", nil, &entries); err != nil {
				return err
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			table := cli.NewTable("ID", "ROLE", "STATE", "NAME", "FOCUS", "OUTPUTS", "UPDATED")
			for _, entry := range entries {
				focus := ""
				if entry.Focused {
					focus = "*"
				}
				table.Row(entry.ID, entry.Role, entry.State, entry.DisplayName, focus,
					len(entry.Outputs), humanize.Time(entry.UpdatedAt))
			}
			table.Render(os.Stdout)
			return nil
		},
	}
}

func sessionCreateCommand() *cli.Command {
	var params controlParams
	var role, name string
	var tokenOnly bool
	return &cli.Command{
		Name:    "create",
		Summary: "Create a pending session and print its token",
		Description: `Create a pending session and print its one-time token.

Start the session's compositor with SHIFT_SESSION_TOKEN set to the token.`,
		Examples: []cli.Example{{
			Description: "Launch a demo client in a new session",
			Command:     "SHIFT_SESSION_TOKEN=$(shiftctl session create --name demo --token-only) shift-demo",
		}},
		Flags: func() *pflag.FlagSet {
			flagSet := params.flags("create")
			flagSet.StringVar(&role, "role", "session", "session role (session or admin)")
			flagSet.StringVar(&name, "name", "", "display name")
			flagSet.BoolVar(&tokenOnly, "token-only", false, "print only the token")
			return flagSet
		},
		Run: func(args []string) error {
			var created server.CreatedSession
			err := params.call("create-session", map[string]any{
				"role":         role,
				"display_name": name,
			}, &created)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(created); done {
				return err
			}
			if tokenOnly {
				fmt.Println(created.Token)
				return nil
			}
			fmt.Printf("session %s (%s) created\ntoken: %s\n", created.Session.ID, created.Session.Role, created.Token)
			return nil
		},
	}
}

func sessionIDCommand(name, action, summary string) *cli.Command {
	var params controlParams
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   fmt.Sprintf("shiftctl session %s <session-id> [flags]", name),
		Flags:   func() *pflag.FlagSet { return params.flags(name) },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one session id, got %d arguments", len(args))
			}
			return params.call(action, map[string]any{"session_id": args[0]}, nil)
		},
	}
}

func monitorCommand() *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Summary: "List and manage monitors",
		Subcommands: []*cli.Command{
			monitorListCommand(),
			monitorAddCommand(),
			monitorRemoveCommand(),
		},
	}
}

func monitorListCommand() *cli.Command {
	var params controlParams
	return &cli.Command{
		Name:    "list",
		Summary: "List monitors in layout order",
		Flags:   func() *pflag.FlagSet { return params.flags("list") },
		Run: func(args []string) error {
			var entries []server.MonitorEntry
			if err := params.call("list-monitors", nil, &entries); err != nil {
				return err
			}
			if done, err := params.EmitJSON(entries); done {
				return err
			}
			table := cli.NewTable("ID", "NAME", "MODE", "POSITION", "SOURCE")
			for _, entry := range entries {
				source := "hardware"
				if entry.Virtual {
					source = "virtual"
				}
				table.Row(entry.ID, entry.Name,
					fmt.Sprintf("%dx%d@%d", entry.Width, entry.Height, entry.RefreshRate),
					fmt.Sprintf("%d,%d", entry.X, entry.Y), source)
			}
			table.Render(os.Stdout)
			return nil
		},
	}
}

func monitorAddCommand() *cli.Command {
	var params controlParams
	var name string
	var width, height, refresh int
	return &cli.Command{
		Name:    "add",
		Summary: "Add or resize a virtual monitor",
		Usage:   "shiftctl monitor add <monitor-id> --width W --height H [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := params.flags("add")
			flagSet.StringVar(&name, "name", "", "connector name (defaults to the id)")
			flagSet.IntVar(&width, "width", 1920, "width in pixels")
			flagSet.IntVar(&height, "height", 1080, "height in pixels")
			flagSet.IntVar(&refresh, "refresh", 60, "refresh rate in Hz")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one monitor id, got %d arguments", len(args))
			}
			return params.call("add-monitor", map[string]any{
				"monitor_id":   args[0],
				"name":         name,
				"width":        width,
				"height":       height,
				"refresh_rate": refresh,
			}, nil)
		},
	}
}

func monitorRemoveCommand() *cli.Command {
	var params controlParams
	return &cli.Command{
		Name:    "remove",
		Summary: "Remove a monitor",
		Usage:   "shiftctl monitor remove <monitor-id> [flags]",
		Flags:   func() *pflag.FlagSet { return params.flags("remove") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one monitor id, got %d arguments", len(args))
			}
			return params.call("remove-monitor", map[string]any{"monitor_id": args[0]}, nil)
		},
	}
}

func historyCommand() *cli.Command {
	var params controlParams
	var sessionID, kind string
	var limit int
	return &cli.Command{
		Name:    "history",
		Summary: "Show the lifecycle journal",
		Examples: []cli.Example{
			{Description: "Everything that happened to one session", Command: "shiftctl history --session 3f2a..."},
			{Description: "Recent hotplug", Command: "shiftctl history --kind monitor_removed"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := params.flags("history")
			flagSet.StringVar(&sessionID, "session", "", "only records for this session")
			flagSet.StringVar(&kind, "kind", "", "only records of this kind")
			flagSet.IntVar(&limit, "limit", 50, "maximum records")
			return flagSet
		},
		Run: func(args []string) error {
			var records []journal.Record
			err := params.call("history", map[string]any{
				"session_id": sessionID,
				"kind":       kind,
				"limit":      limit,
			}, &records)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(records); done {
				return err
			}
			table := cli.NewTable("SEQ", "TIME", "KIND", "SESSION", "MONITOR", "DETAIL")
			for _, record := range records {
				table.Row(record.Sequence, record.At.Local().Format(time.DateTime), record.Kind,
					record.SessionID, record.MonitorID, ansi.Truncate(formatDetail(record.Detail), detailWidth, "…"))
			}
			table.Render(os.Stdout)
			return nil
		},
	}
}

// formatDetail renders a record's detail map as sorted key=value pairs.
func formatDetail(detail map[string]string) string {
	keys := make([]string, 0, len(detail))
	for key := range detail {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = key + "=" + detail[key]
	}
	return strings.Join(pairs, " ")
}
