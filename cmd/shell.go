// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/seriamp/pkg/yamaha"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive receiver command line",
	Long: `Open an interactive command line to the receiver. The device stays open
between commands.

Type "help" for commands, Ctrl-D to quit. History is kept in
$XDG_STATE_HOME/seriamp/history or ~/.seriamp_history.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

type shellCommand struct {
	usage   string
	help    string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, w io.Writer, rx *yamaha.Client, args []string) error
}

var shellCommands = map[string]shellCommand{
	"status": {
		usage: "status", help: "query the status report",
		run: func(ctx context.Context, w io.Writer, rx *yamaha.Client, _ []string) error {
			fields, err := rx.Status(ctx)
			if err != nil {
				return err
			}
			return printFields(w, fields)
		},
	},
	"cached": {
		usage: "cached", help: "show every field received so far",
		run: func(_ context.Context, w io.Writer, rx *yamaha.Client, _ []string) error {
			return printFields(w, rx.LastStatus())
		},
	},
	"get": {
		usage: "get FIELD", help: "read one field", minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, w io.Writer, rx *yamaha.Client, args []string) error {
			v, err := rx.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printValue(w, v)
		},
	},
	"set": {
		usage: "set FIELD VALUE", help: "change one field", minArgs: 2, maxArgs: 2,
		run: func(ctx context.Context, w io.Writer, rx *yamaha.Client, args []string) error {
			v, err := rx.Set(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printValue(w, v)
		},
	},
	"up": {
		usage: "up", help: "main volume up",
		run: func(ctx context.Context, w io.Writer, rx *yamaha.Client, _ []string) error {
			v, err := rx.VolumeUp(ctx)
			if err != nil {
				return err
			}
			return printValue(w, v)
		},
	},
	"down": {
		usage: "down", help: "main volume down",
		run: func(ctx context.Context, w io.Writer, rx *yamaha.Client, _ []string) error {
			v, err := rx.VolumeDown(ctx)
			if err != nil {
				return err
			}
			return printValue(w, v)
		},
	},
	"fields": {
		usage: "fields", help: "list settable fields",
		run: func(_ context.Context, w io.Writer, _ *yamaha.Client, _ []string) error {
			for _, f := range yamaha.SettableFields() {
				fmt.Fprintf(w, "  %s\n", f)
			}
			return nil
		},
	},
}

func shellCommandNames() []string {
	names := make([]string, 0, len(shellCommands)+2)
	for name := range shellCommands {
		names = append(names, name)
	}
	names = append(names, "help", "quit")
	sort.Strings(names)
	return names
}

// completeShellLine completes command names, then field names for get and set
func completeShellLine(line string) (c []string) {
	tokens := strings.Fields(line)
	trailingSpace := strings.HasSuffix(line, " ")

	switch {
	case len(tokens) == 0 || (len(tokens) == 1 && !trailingSpace):
		prefix := strings.ToLower(line)
		for _, name := range shellCommandNames() {
			if strings.HasPrefix(name, prefix) {
				c = append(c, name)
			}
		}
	case (tokens[0] == "get" || tokens[0] == "set") && (len(tokens) == 1 || (len(tokens) == 2 && !trailingSpace)):
		prefix := ""
		if len(tokens) == 2 {
			prefix = tokens[1]
		}
		for _, f := range yamaha.SettableFields() {
			if strings.HasPrefix(f, prefix) {
				c = append(c, tokens[0]+" "+f)
			}
		}
	}
	return c
}

func historyPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "seriamp", "history")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".seriamp_history"
	}
	return filepath.Join(home, ".seriamp_history")
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg.Yamaha.Persistent = true
	rx, err := newReceiver()
	if err != nil {
		return err
	}
	defer rx.Close()

	shell := liner.NewLiner()
	defer shell.Close()

	shell.SetCtrlCAborts(true) // ^C cancels current line
	shell.SetCompleter(completeShellLine)

	history := historyPath()
	if f, err := os.Open(history); err == nil {
		_, _ = shell.ReadHistory(f)
		f.Close()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "seriamp shell, %s. Type \"help\" for commands, Ctrl-D to quit.\n",
		describeConnection(cfg.Yamaha.Device, cfg.Yamaha))

	for {
		input, err := shell.Prompt("seriamp> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			break // ^C or Ctrl-D
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		shell.AppendHistory(input)

		tokens := strings.Fields(input)
		switch tokens[0] {
		case "quit", "exit":
			return saveHistory(shell, history)
		case "help":
			for _, name := range shellCommandNames() {
				if c, ok := shellCommands[name]; ok {
					fmt.Fprintf(out, "  %-16s %s\n", c.usage, c.help)
				}
			}
			continue
		}
		runShellCommand(cmd, rx, tokens[0], tokens[1:])
	}

	return saveHistory(shell, history)
}

func runShellCommand(cmd *cobra.Command, rx *yamaha.Client, name string, args []string) {
	out := cmd.OutOrStdout()
	c, ok := shellCommands[name]
	if !ok {
		fmt.Fprintf(out, "unknown command %q\n", name)
		return
	}
	if len(args) < c.minArgs || len(args) > c.maxArgs {
		fmt.Fprintf(out, "usage: %s\n", c.usage)
		return
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	if err := c.run(ctx, out, rx, args); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
	}
}

func saveHistory(shell *liner.State, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	_, _ = shell.WriteHistory(f)
	return nil
}
