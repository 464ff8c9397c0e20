package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"shiftygrid/internal/commands"
	"shiftygrid/internal/config"
	"shiftygrid/internal/ipc"
	"shiftygrid/internal/window"
)

// runClientCommand sends one command to the running instance.
func runClientCommand(name string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file `path` used to resolve the pipe name")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()

	var data any
	switch name {
	case commands.CommandMessage:
		text := strings.TrimSpace(strings.Join(rest, " "))
		if text == "" {
			fmt.Fprintln(stderr, "Error: message requires text")
			return 2
		}
		data = text
	case commands.CommandMove:
		if len(rest) != 1 {
			fmt.Fprintf(stderr, "Error: move requires one position (presets: %s)\n", strings.Join(window.PresetNames(), ", "))
			return 2
		}
		pos, err := window.ParsePosition(rest[0])
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		data = pos
	case commands.CommandTrigger:
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "Error: trigger requires one action id")
			return 2
		}
		data = rest[0]
	default:
		if len(rest) > 0 {
			fmt.Fprintf(stderr, "Error: %s takes no arguments\n", name)
			return 2
		}
	}

	return sendCommand(clientPipeName(*configPath), name, data, stdout, stderr)
}

// clientPipeName resolves the pipe of the instance started with the same
// config file. A broken config falls back to the default pipe name.
func clientPipeName(configPath string) string {
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, _ := config.Load(configPath)
	return ipc.DefaultPipeName(cfg.PipeName)
}

func sendCommand(pipeName, command string, data any, stdout, stderr io.Writer) int {
	resp, err := ipc.Call(pipeName, command, data)
	if ipc.IsConnectionError(err) {
		fmt.Fprintln(stderr, "Error: ShiftyGrid server is not running. Please start the server first.")
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if !resp.Success {
		fmt.Fprintf(stderr, "Error: %s\n", resp.Message)
		return 1
	}
	fmt.Fprintf(stdout, "Success: %s\n", resp.Message)
	for _, key := range slices.Sorted(maps.Keys(resp.Data)) {
		fmt.Fprintf(stdout, "  %s: %s\n", key, resp.Data[key])
	}
	return 0
}
