// Package pane implements the session (C3) and session registry (C4): one
// PTY-backed child process plus an in-memory screen per session, and the
// map from session id to session that the server consults.
package pane

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/migueldeicaza/Pane/internal/wire"
)

// ErrSessionNotRunning is returned by SendInput once the child has exited.
var ErrSessionNotRunning = errors.New("pane: session not running")

// LogFunc matches the project-wide logger's formatted-write methods.
type LogFunc func(format string, args ...interface{})

// Subscriber is anything a session can push screen updates to. Sessions
// hold subscribers only by this interface and by id — never a back
// reference into the subscriber's connection — so the session and
// subscriber lifecycles stay decoupled (§9 "avoid owning back-pointers").
type Subscriber interface {
	ID() string
	SendSnapshot(wire.Snapshot) bool
	SendDelta(wire.Delta) bool
}

// Session owns one child process attached to a PTY, plus the screen built
// from its output. All subscriber-set and dirty-range bookkeeping happens
// under subMu/the screen's own mutex — the session's single-writer guard.
type Session struct {
	id        string
	name      string
	createdAt time.Time

	ptmx *os.File
	cmd  *exec.Cmd

	screen *screen

	writeMu sync.Mutex

	subMu       sync.RWMutex
	subscribers map[string]Subscriber

	exitMu   sync.RWMutex
	running  bool
	exitCode *int
	exited   chan struct{}
	exitOnce sync.Once

	logf LogFunc
}

func newSession(id, name string, commandLine []string, cols, rows uint16, logf LogFunc) (*Session, error) {
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	var cmd *exec.Cmd
	if len(commandLine) > 0 {
		cmd = exec.Command(commandLine[0], commandLine[1:]...)
	} else {
		cmd = exec.Command(defaultShell(), "-l")
	}
	cmd.Env = mergeEnvironment(os.Environ(), []string{"TERM=xterm-256color"})
	// creack/pty starts the child with Setsid, which already makes it the
	// leader of a new process group (the group Terminate signals).
	// Requesting Setpgid as well would make setpgid fail with EPERM.

	ptmx, err := creackpty.StartWithSize(cmd, &creackpty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("pane: start session %s: %w", id, err)
	}

	s := &Session{
		id:          id,
		name:        name,
		createdAt:   time.Now(),
		ptmx:        ptmx,
		cmd:         cmd,
		screen:      newScreen(cols, rows),
		subscribers: make(map[string]Subscriber),
		running:     true,
		exited:      make(chan struct{}),
		logf:        logf,
	}
	go s.readLoop()
	return s, nil
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// AttachSubscriber enqueues sub's initial snapshot and registers it in the
// subscriber set as a single step under subMu. flushDirty also takes subMu
// (for its read of the subscriber set) before it can enqueue a delta on any
// subscriber, so holding the lock across both the snapshot enqueue and the
// registration guarantees sub's snapshot is already ahead of any delta in
// its send queue by the time flushDirty can see it at all — the "exactly
// one snapshot before any deltas" ordering the wire protocol requires.
func (s *Session) AttachSubscriber(sub Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	sub.SendSnapshot(s.screen.snapshot())
	s.subscribers[sub.ID()] = sub
}

// RemoveSubscriber unregisters a subscriber by id; a no-op if absent.
func (s *Session) RemoveSubscriber(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subscribers, id)
}

// SendInput writes data to the PTY master, i.e. to the child's stdin.
func (s *Session) SendInput(data []byte) error {
	s.exitMu.RLock()
	running := s.running
	s.exitMu.RUnlock()
	if !running {
		return ErrSessionNotRunning
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.ptmx.Write(data)
	if err != nil {
		return fmt.Errorf("pane: write input to session %s: %w", s.id, err)
	}
	return nil
}

// Resize resizes the screen and issues the OS winsize ioctl on the PTY
// master. A no-op if either dimension is zero.
func (s *Session) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return nil
	}
	s.screen.resize(cols, rows)
	if err := creackpty.Setsize(s.ptmx, &creackpty.Winsize{Cols: cols, Rows: rows}); err != nil {
		// Fall back to a direct ioctl in case the creack/pty wrapper's
		// syscall path is unavailable on this platform.
		ioctlErr := unix.IoctlSetWinsize(int(s.ptmx.Fd()), unix.TIOCSWINSZ, &unix.Winsize{Row: rows, Col: cols})
		if ioctlErr != nil {
			return fmt.Errorf("pane: resize session %s: %w", s.id, err)
		}
	}
	return nil
}

// Terminate sends the child a termination signal and closes the PTY
// master, falling back to SIGKILL if the child does not exit promptly.
func (s *Session) Terminate() error {
	s.exitMu.RLock()
	running := s.running
	s.exitMu.RUnlock()
	if !running {
		_ = s.ptmx.Close()
		return nil
	}
	if s.cmd == nil || s.cmd.Process == nil {
		_ = s.ptmx.Close()
		return nil
	}

	pgid := s.cmd.Process.Pid
	if actual, err := syscall.Getpgid(s.cmd.Process.Pid); err == nil && actual > 0 {
		pgid = actual
	}
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		_ = s.ptmx.Close()
		return fmt.Errorf("pane: terminate session %s: %w", s.id, err)
	}

	select {
	case <-s.exited:
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-s.exited
	}
	_ = s.ptmx.Close()
	return nil
}

// Info builds the wire-facing description of this session.
func (s *Session) Info() wire.SessionInfo {
	s.exitMu.RLock()
	running := s.running
	var exitCode *int
	if s.exitCode != nil {
		v := *s.exitCode
		exitCode = &v
	}
	s.exitMu.RUnlock()

	pid := 0
	if s.cmd != nil && s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}

	return wire.SessionInfo{
		ID:        s.id,
		Name:      s.name,
		CreatedAt: wire.NewTimestamp(s.createdAt),
		IsRunning: running,
		ProcessID: pid,
		ExitCode:  exitCode,
	}
}

// readLoop feeds PTY output to the screen and fans out deltas. It runs for
// the lifetime of the child process.
func (s *Session) readLoop() {
	defer func() { _ = s.ptmx.Close() }()

	buf := make([]byte, 16*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.screen.feed(buf[:n])
			s.flushDirty()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logf("session %s: pty read error: %v", s.id, err)
			}
			break
		}
	}

	waitErr := s.cmd.Wait()
	s.markExited(parseExitCode(waitErr))
}

// flushDirty builds and fans out a delta for the screen's accumulated dirty
// range, if any, then clears it. With no subscribers the range is still
// cleared so it does not grow unbounded.
func (s *Session) flushDirty() {
	start, end, dirty := s.screen.dirtyRange()
	if !dirty {
		return
	}
	_, rows := s.screen.size()
	clippedStart, clippedEnd := clipRange(start, end, rows)
	if clippedStart > clippedEnd {
		s.screen.clearDirty()
		return
	}

	s.subMu.RLock()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.subMu.RUnlock()

	if len(subs) == 0 {
		s.screen.clearDirty()
		return
	}

	delta := s.screen.delta(clippedStart, clippedEnd)
	var dropped []string
	for _, sub := range subs {
		if !sub.SendDelta(delta) {
			dropped = append(dropped, sub.ID())
		}
	}
	if len(dropped) > 0 {
		s.subMu.Lock()
		for _, id := range dropped {
			delete(s.subscribers, id)
		}
		s.subMu.Unlock()
	}
	s.screen.clearDirty()
}

func (s *Session) markExited(code int) {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()
	s.running = false
	c := code
	s.exitCode = &c
	s.exitOnce.Do(func() { close(s.exited) })
}

func parseExitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return 1
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode()
	}
	if status.Signaled() {
		return -int(status.Signal())
	}
	return status.ExitStatus()
}
