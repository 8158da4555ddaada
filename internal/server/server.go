// Package server implements the Pane daemon (C6): it listens on a local
// stream socket, accepts connections, dispatches commands against a session
// registry, and wires subscribers onto sessions for attach.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/migueldeicaza/Pane/internal/frame"
	"github.com/migueldeicaza/Pane/internal/logging"
	"github.com/migueldeicaza/Pane/internal/pane"
	"github.com/migueldeicaza/Pane/internal/runtimedir"
	"github.com/migueldeicaza/Pane/internal/subscriber"
	"github.com/migueldeicaza/Pane/internal/wire"
)

const listenBacklog = 16

// Server owns the listening socket, the session registry, and the
// bookkeeping needed to decorate every response with ServerInfo.
type Server struct {
	socketPath string
	registry   *pane.Registry
	logger     *logging.Logger

	listener  net.Listener
	startedAt time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// New constructs a server bound to the canonical runtime-directory socket
// path. logger may be nil, in which case log lines are discarded.
func New(logger *logging.Logger) *Server {
	var logf pane.LogFunc
	if logger != nil {
		logf = logger.Infof
	}
	return &Server{
		socketPath: runtimedir.SocketPath(),
		registry:   pane.NewRegistry(logf),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Infof(format, args...)
	}
}

// Run performs the startup sequence (§4.6) and blocks in the accept loop
// until Shutdown is called or the listener fails.
func (s *Server) Run() error {
	// 1. Ignore SIGPIPE so a write to a dead client can't kill the process.
	signal.Ignore(syscall.SIGPIPE)

	if err := runtimedir.CheckSocketPath(); err != nil {
		return err
	}
	if _, err := runtimedir.Ensure(); err != nil {
		return err
	}

	// Stale-PID detection: a leftover PID file naming a dead process means
	// the socket at this path is stale too.
	if pid, err := runtimedir.ReadPID(); err == nil && runtimedir.ProcessAlive(pid) {
		return fmt.Errorf("server: another pane server is already running (pid %d)", pid)
	}

	// 2. Unlink any stale socket.
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("server: remove stale socket: %w", err)
	}

	// 3. Bind, listen, chmod.
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("server: chmod socket: %w", err)
	}
	s.listener = listener

	// 4. Write the PID file atomically.
	if err := runtimedir.WritePID(); err != nil {
		listener.Close()
		return err
	}

	// 5. Record startedAt.
	s.startedAt = time.Now()
	s.logf("server listening on %s (pid %d)", s.socketPath, os.Getpid())

	s.installSignalHandler()

	// 6. Accept loop.
	defer s.cleanup()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				s.logf("accept error: %v", err)
				continue
			}
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) installSignalHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		s.logf("received shutdown signal")
		s.Shutdown()
	}()
}

// Shutdown closes the listener, terminates every session, and removes the
// socket and PID file. Idempotent.
func (s *Server) Shutdown() {
	s.doneOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

func (s *Server) cleanup() {
	s.registry.Shutdown()
	os.Remove(s.socketPath)
	runtimedir.RemovePID()
	if s.logger != nil {
		s.logger.Close()
	}
}

// ServerInfo builds the block every response is decorated with.
func (s *Server) ServerInfo() wire.ServerInfo {
	return wire.ServerInfo{
		PID:        os.Getpid(),
		StartedAt:  wire.NewTimestamp(s.startedAt),
		SocketPath: s.socketPath,
	}
}

func (s *Server) handleConnection(raw net.Conn) {
	conn := frame.New(raw)

	msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	if msg.Type != wire.TypeRequest || msg.Request == nil {
		s.respond(conn, wire.Response{OK: false, Message: "invalid request"})
		conn.Close()
		return
	}

	req := msg.Request
	if req.Command == wire.CommandAttachSession {
		s.handleAttach(conn, req)
		return
	}

	resp := s.dispatch(req)
	s.respond(conn, resp)
	conn.Close()
}

func (s *Server) dispatch(req *wire.Request) wire.Response {
	switch req.Command {
	case wire.CommandPing:
		return wire.Response{OK: s.registry.Ping(), Message: "pong"}

	case wire.CommandCreateSession:
		info, err := s.registry.Create(req.Name, req.CommandLine, req.Cols, req.Rows)
		if err != nil {
			s.logf("create session failed: %v", err)
			return wire.Response{OK: false, Message: "create session failed"}
		}
		return wire.Response{OK: true, Session: &info}

	case wire.CommandListSessions:
		return wire.Response{OK: true, Sessions: s.registry.List()}

	case wire.CommandDestroySession:
		if req.SessionID == "" {
			return wire.Response{OK: false, Message: "session id required"}
		}
		if err := s.registry.Destroy(req.SessionID); err != nil {
			return wire.Response{OK: false, Message: "session not found"}
		}
		return wire.Response{OK: true}

	default:
		return wire.Response{OK: false, Message: "unknown command"}
	}
}

// handleAttach implements the §4.6 attach sequence: construct a subscriber
// (unregistered), optionally resize, send the response, then register the
// subscriber and deliver its snapshot as one atomic step so no delta can
// reach it first, then run the receive loop. The connection is left open
// until the subscriber closes it.
func (s *Server) handleAttach(conn *frame.Conn, req *wire.Request) {
	if req.SessionID == "" {
		s.respond(conn, wire.Response{OK: false, Message: "session id required"})
		conn.Close()
		return
	}

	session, err := s.registry.Attach(req.SessionID)
	if err != nil {
		s.respond(conn, wire.Response{OK: false, Message: "session not found"})
		conn.Close()
		return
	}

	sub := subscriber.New(req.SessionID+"-"+fmt.Sprint(time.Now().UnixNano()), conn, session, func(id string) {
		session.RemoveSubscriber(id)
	})

	if req.Cols > 0 && req.Rows > 0 {
		if err := session.Resize(req.Cols, req.Rows); err != nil {
			s.logf("attach resize failed for session %s: %v", req.SessionID, err)
		}
	}

	// sub is not yet registered on the session, so nothing can enqueue a
	// delta onto it; the response write below is the only thing that can
	// reach conn until AttachSubscriber runs.
	info := session.Info()
	if err := s.respond(conn, wire.Response{OK: true, Session: &info}); err != nil {
		sub.Close()
		return
	}

	// Registers sub and enqueues its snapshot atomically, guaranteeing the
	// snapshot precedes any delta in sub's send queue.
	session.AttachSubscriber(sub)

	sub.Receive()
}

func (s *Server) respond(conn *frame.Conn, resp wire.Response) error {
	serverInfo := s.ServerInfo()
	resp.Server = &serverInfo
	return conn.Send(wire.WireMessage{Type: wire.TypeResponse, Response: &resp})
}
