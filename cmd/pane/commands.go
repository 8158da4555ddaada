package main

import (
	"fmt"

	"github.com/migueldeicaza/Pane/internal/frame"
	"github.com/migueldeicaza/Pane/internal/paneclient"
	"github.com/migueldeicaza/Pane/internal/runtimedir"
	"github.com/migueldeicaza/Pane/internal/wire"
)

type clientOptions struct {
	noAutoStart bool
	logPath     string
}

func dial(opts clientOptions) (*frame.Conn, error) {
	return paneclient.DialWithAutoStart(paneclient.Options{
		NoAutoStart: opts.noAutoStart,
		LogPath:     opts.logPath,
	})
}

func roundTrip(opts clientOptions, req wire.Request) (*wire.Response, error) {
	conn, err := dial(opts)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.Send(wire.WireMessage{Type: wire.TypeRequest, Request: &req}); err != nil {
		return nil, err
	}
	msg, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msg.Response == nil {
		return nil, fmt.Errorf("server sent no response")
	}
	return msg.Response, nil
}

func runStatus(opts clientOptions) error {
	resp, err := roundTrip(opts, wire.Request{Command: wire.CommandPing})
	if err != nil {
		fmt.Println("No server running")
		return nil
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Message)
	}
	fmt.Printf("server running: pid=%d started=%s socket=%s\n",
		resp.Server.PID, resp.Server.StartedAt.Time().Format("2006-01-02 15:04:05"), resp.Server.SocketPath)
	return nil
}

// runListServers reports the single local server's liveness without
// dialing it, consulting only the PID file of the canonical runtime
// directory; other runtime directories are not enumerated.
func runListServers() error {
	pid, err := runtimedir.ReadPID()
	if err != nil {
		fmt.Println("no server registered")
		return nil
	}
	if !runtimedir.ProcessAlive(pid) {
		fmt.Printf("stale pid file: pid %d is not running\n", pid)
		return nil
	}
	fmt.Printf("server running: pid=%d socket=%s\n", pid, runtimedir.SocketPath())
	return nil
}

func runCreate(opts clientOptions, args []string) error {
	var name string
	var commandLine []string

	dashIdx := -1
	for i, a := range args {
		if a == "--" {
			dashIdx = i
			break
		}
	}
	switch {
	case dashIdx >= 0:
		if dashIdx > 0 {
			name = args[0]
		}
		commandLine = args[dashIdx+1:]
	case len(args) > 0:
		name = args[0]
	}

	resp, err := roundTrip(opts, wire.Request{
		Command:     wire.CommandCreateSession,
		Name:        name,
		CommandLine: commandLine,
		Cols:        80,
		Rows:        24,
	})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Message)
	}
	fmt.Println(resp.Session.ID)
	return nil
}

func runList(opts clientOptions) error {
	resp, err := roundTrip(opts, wire.Request{Command: wire.CommandListSessions})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Message)
	}
	if len(resp.Sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, s := range resp.Sessions {
		status := "running"
		if !s.IsRunning {
			status = "exited"
			if s.ExitCode != nil {
				status = fmt.Sprintf("exited(%d)", *s.ExitCode)
			}
		}
		name := s.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", s.ID, name, status, s.CreatedAt.Time().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runDestroy(opts clientOptions, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pane destroy <sessionID>")
	}
	resp, err := roundTrip(opts, wire.Request{Command: wire.CommandDestroySession, SessionID: args[0]})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

func runAttach(opts clientOptions, args []string) error {
	sessionID := ""
	if len(args) > 0 {
		sessionID = args[0]
	}
	if sessionID == "" {
		id, err := resolveAttachSessionID(opts)
		if err != nil {
			return err
		}
		sessionID = id
	}

	cols, rows := terminalSize()
	conn, err := dial(opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := wire.Request{Command: wire.CommandAttachSession, SessionID: sessionID, Cols: cols, Rows: rows}
	if err := conn.Send(wire.WireMessage{Type: wire.TypeRequest, Request: &req}); err != nil {
		return err
	}

	respMsg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if respMsg.Response == nil {
		return fmt.Errorf("invalid attach response")
	}
	if !respMsg.Response.OK {
		return fmt.Errorf("%s", respMsg.Response.Message)
	}

	snapMsg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	snap, ok := snapMsg.Snapshot()
	if !ok {
		return fmt.Errorf("missing snapshot")
	}

	return runAttachUI(conn, snap)
}

// resolveAttachSessionID implements the bare `pane attach` (no session id)
// disambiguation: attach only when exactly one session is running.
func resolveAttachSessionID(opts clientOptions) (string, error) {
	resp, err := roundTrip(opts, wire.Request{Command: wire.CommandListSessions})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("%s", resp.Message)
	}

	var running []string
	for _, s := range resp.Sessions {
		if s.IsRunning {
			running = append(running, s.ID)
		}
	}
	switch len(running) {
	case 0:
		return "", fmt.Errorf("no running sessions (specify session id)")
	case 1:
		return running[0], nil
	default:
		return "", fmt.Errorf("multiple running sessions (specify session id)")
	}
}

func terminalSize() (uint16, uint16) {
	// Best-effort: a real terminal query happens in runAttachUI once
	// bubbletea takes over raw mode; this is only the size sent with the
	// initial attach request, before the program has a WindowSizeMsg.
	return 80, 24
}
