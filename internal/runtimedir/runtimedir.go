// Package runtimedir resolves the filesystem locations a pane server and its
// clients agree on: the runtime directory itself, the listening socket, the
// PID file, and the log file. All of it lives under one euid-scoped
// directory so two users on the same host never collide, mirroring the
// env-override-over-default precedence the teacher's internal/config used
// for ATTN_SOCKET_PATH/ATTN_DB_PATH.
package runtimedir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// EnvOverride is the environment variable that overrides the default
// runtime directory.
const EnvOverride = "PANE_RUNTIME_DIR"

const (
	socketName = "default"
	pidName    = "pane.pid"
	logName    = "pane.log"

	dirMode  = 0700
	fileMode = 0600

	// maxSockaddrPath is the size of sockaddr_un.sun_path on Linux, minus
	// one byte for the NUL terminator the kernel requires.
	maxSockaddrPath = 107
)

// ErrSocketPathTooLong is returned by CheckSocketPath when the resolved
// socket path would not fit the OS sockaddr_un buffer.
var ErrSocketPathTooLong = errors.New("runtimedir: socket path exceeds sockaddr_un limit")

// CheckSocketPath validates that SocketPath() fits the platform's sockaddr
// limit, so a too-long PANE_RUNTIME_DIR override fails fast with a specific
// error instead of an opaque bind failure.
func CheckSocketPath() error {
	if len(SocketPath()) > maxSockaddrPath {
		return ErrSocketPathTooLong
	}
	return nil
}

// Dir resolves the runtime directory without creating it: PANE_RUNTIME_DIR
// if set, else /tmp/pane-<euid>.
func Dir() string {
	if v := os.Getenv(EnvOverride); v != "" {
		return v
	}
	return filepath.Join("/tmp", fmt.Sprintf("pane-%d", os.Geteuid()))
}

// Ensure creates the runtime directory if missing and (re)asserts 0700 on
// every call, so a server restarting after a concurrent `rm -rf` of the
// directory re-creates it with the right permissions rather than silently
// inheriting whatever a recreated parent happened to have.
func Ensure() (string, error) {
	dir := Dir()
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", fmt.Errorf("runtimedir: create %s: %w", dir, err)
	}
	if err := os.Chmod(dir, dirMode); err != nil {
		return "", fmt.Errorf("runtimedir: chmod %s: %w", dir, err)
	}
	return dir, nil
}

// SocketPath returns the unix socket path within the runtime directory.
func SocketPath() string {
	return filepath.Join(Dir(), socketName)
}

// PIDPath returns the PID file path within the runtime directory.
func PIDPath() string {
	return filepath.Join(Dir(), pidName)
}

// LogPath returns the default log file path within the runtime directory.
func LogPath() string {
	return filepath.Join(Dir(), logName)
}

// WritePID atomically writes the current process's PID to PIDPath, mode
// 0600, via a temp-file-then-rename so a reader never observes a partial
// write.
func WritePID() error {
	if _, err := Ensure(); err != nil {
		return err
	}
	path := PIDPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d\n", os.Getpid())), fileMode); err != nil {
		return fmt.Errorf("runtimedir: write pid file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("runtimedir: install pid file: %w", err)
	}
	return nil
}

// RemovePID removes the PID file, ignoring a missing file.
func RemovePID() error {
	if err := os.Remove(PIDPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("runtimedir: remove pid file: %w", err)
	}
	return nil
}

// ReadPID reads and parses the PID file. Returns an error wrapping
// os.ErrNotExist if no PID file exists.
func ReadPID() (int, error) {
	data, err := os.ReadFile(PIDPath())
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("runtimedir: parse pid file: %w", err)
	}
	return pid, nil
}

// ProcessAlive reports whether pid names a live process, using the
// kill(pid, 0) liveness probe.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
