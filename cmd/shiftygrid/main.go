// Command shiftygrid runs the keyboard shortcut engine in the background and
// sends commands to the running instance.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"shiftygrid/internal/singleinstance"
)

var version = "dev"

const repositoryURL = "https://github.com/sakowiczm/ShiftyGrid"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches args to a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout)
		return 0
	}
	name, rest := args[0], args[1:]
	switch name {
	case "start":
		return runStartCommand(rest, stdout, stderr)
	case "exit", "status", "message", "move", "trigger":
		return runClientCommand(name, rest, stdout, stderr)
	case "about", "version", "--version":
		printAbout(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		printUsage(stderr)
		return 2
	}
}

func runStartCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts startOptions
	var console bool
	fs.StringVar(&opts.configPath, "config", "", "config file `path` (default: per-user config directory)")
	fs.StringVar(&opts.logDir, "logs", "", "directory for log files (default: executable directory)")
	fs.StringVar(&opts.logDir, "l", "", "shorthand for --logs")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: none, debug, info, warn, error")
	fs.BoolVar(&console, "console", false, "also write logs to stderr")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if console {
		opts.console = stderr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runStart(ctx, opts, stdout, stderr)
}

// runStart owns the single-instance lock for the lifetime of the server.
func runStart(ctx context.Context, opts startOptions, stdout, stderr io.Writer) int {
	lock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		fmt.Fprintln(stderr, "Server is already running.")
		return 1
	}
	if err != nil {
		slog.Warn("[DEBUG-SINGLE] lock creation failed, proceeding without single-instance guard", "error", err)
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				slog.Warn("[DEBUG-SINGLE] lock release failed", "error", releaseErr)
			}
		}()
	}

	app := NewApp()
	if err := app.startup(ctx, opts); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "ShiftyGrid server started. Use 'shiftygrid exit' to stop.")
	app.wait(ctx)
	app.shutdown()
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "ShiftyGrid keyboard-driven window placement")
	fmt.Fprintln(w, "Usage: shiftygrid <command> [flags] [args]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  start [--config path] [--logs dir] [--log-level level] [--console]")
	fmt.Fprintln(w, "  status                     report the running instance")
	fmt.Fprintln(w, "  exit                       stop the running instance")
	fmt.Fprintln(w, "  message <text>             send a message to the running instance")
	fmt.Fprintln(w, "  move <position>            move the foreground window")
	fmt.Fprintln(w, "  trigger <action>           run an action as if its shortcut fired")
	fmt.Fprintln(w, "  about                      show version information")
	fmt.Fprintln(w, "Client commands accept --config to locate the instance's pipe name.")
	fmt.Fprintln(w, "A position is a preset name or x1,y1,x2,y2[@CxR] on a 10x10 grid.")
}

func printAbout(w io.Writer) {
	fmt.Fprintln(w, "ShiftyGrid")
	fmt.Fprintf(w, "  Version:     %s\n", version)
	fmt.Fprintln(w, "  Description: keyboard-driven window placement with modal shortcuts")
	fmt.Fprintln(w, "               and grid-based positioning.")
	fmt.Fprintf(w, "  Repository:  %s\n", repositoryURL)
}
