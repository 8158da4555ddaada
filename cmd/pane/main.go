// Command pane is the CLI surface for the multiplexer: it translates
// subcommand invocations into wire requests, runs the server when invoked
// with the hidden --server flag, and auto-starts one on demand otherwise.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/migueldeicaza/Pane/internal/logging"
	"github.com/migueldeicaza/Pane/internal/runtimedir"
	"github.com/migueldeicaza/Pane/internal/server"
)

func main() {
	fs := pflag.NewFlagSet("pane", pflag.ContinueOnError)
	fs.Usage = func() {}
	logPath := fs.String("log", "", "path to a log file")
	noAutoStart := fs.Bool("no-auto-start", false, "do not launch a server if none is reachable")
	runAsServer := fs.Bool("server", false, "run in daemon mode (internal)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	args := fs.Args()
	if dash := fs.ArgsLenAtDash(); dash >= 1 {
		// pflag consumes a bare "--"; restore it for runCreate.
		args = append(args[:dash:dash], append([]string{"--"}, args[dash:]...)...)
	}

	if *runAsServer {
		runServer(*logPath)
		return
	}

	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: pane <server|status|list-servers|create|list|attach|destroy> [args...]")
		os.Exit(2)
	}
	subcommand := args[0]
	args = args[1:]

	opts := clientOptions{noAutoStart: *noAutoStart, logPath: *logPath}

	var err error
	switch subcommand {
	case "server":
		runServer(*logPath)
		return
	case "status":
		err = runStatus(opts)
	case "list-servers":
		err = runListServers()
	case "create":
		err = runCreate(opts, args)
	case "list":
		err = runList(opts)
	case "attach":
		err = runAttach(opts, args)
	case "destroy":
		err = runDestroy(opts, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", subcommand)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(logPath string) {
	// Ensure the runtime directory exists (mode 0700) before the logger can
	// create it itself via a more permissive MkdirAll.
	if _, err := runtimedir.Ensure(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	var logger *logging.Logger
	if logPath == "" {
		logPath = runtimedir.LogPath()
	}
	l, err := logging.New(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v\n", logPath, err)
	} else {
		logger = l
	}

	srv := server.New(logger)
	if err := srv.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
