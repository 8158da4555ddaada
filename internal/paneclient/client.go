// Package paneclient implements the client side of the auto-start handshake
// (C7): dialing the server's socket, and — when dialing fails because no
// server is listening — launching one and retrying with backoff.
package paneclient

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/migueldeicaza/Pane/internal/frame"
	"github.com/migueldeicaza/Pane/internal/runtimedir"
)

const (
	retryAttempts = 25
	retryDelay    = 100 * time.Millisecond
)

// Options controls DialWithAutoStart's behavior.
type Options struct {
	// NoAutoStart disables launching a server when none is reachable.
	NoAutoStart bool
	// LogPath, if set, is passed to the launched server as --log.
	LogPath string
}

// Dial connects to the server's socket with no auto-start behavior.
func Dial() (*frame.Conn, error) {
	conn, err := net.Dial("unix", runtimedir.SocketPath())
	if err != nil {
		return nil, fmt.Errorf("paneclient: dial: %w", err)
	}
	return frame.New(conn), nil
}

// DialWithAutoStart dials the server, launching one and retrying with
// backoff if the initial connect fails because nothing is listening.
func DialWithAutoStart(opts Options) (*frame.Conn, error) {
	conn, err := Dial()
	if err == nil {
		return conn, nil
	}
	if opts.NoAutoStart || !isConnectFailure(err) {
		return nil, err
	}

	socketPath := runtimedir.SocketPath()
	if _, statErr := os.Stat(socketPath); statErr == nil {
		// A stale socket file with nothing listening behind it; remove it
		// before starting a fresh server so the new listener can bind.
		_ = os.Remove(socketPath)
	}

	if err := launchServer(opts); err != nil {
		return nil, fmt.Errorf("paneclient: auto-start server: %w", err)
	}

	var lastErr error
	for i := 0; i < retryAttempts; i++ {
		time.Sleep(retryDelay)
		conn, lastErr = Dial()
		if lastErr == nil {
			return conn, nil
		}
		if !isConnectFailure(lastErr) {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("paneclient: server did not come up after %d attempts: %w", retryAttempts, lastErr)
}

// isConnectFailure reports whether err is the file-not-found or
// connection-refused class of dial failure that auto-start should react to.
func isConnectFailure(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
}

// launchServer forks the server executable detached, stdio redirected to
// the null device, with --server and optionally --log.
func launchServer(opts Options) error {
	exe, err := resolveServerExecutable()
	if err != nil {
		return err
	}

	args := []string{"--server"}
	if opts.LogPath != "" {
		args = append(args, "--log", opts.LogPath)
	}

	cmd := exec.Command(exe, args...)
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open null device: %w", err)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return err
	}
	// The child is detached; we don't wait for it.
	return nil
}

// resolveServerExecutable resolves the server binary from the running
// program's arg0 (§4.7): absolute path as-is, a path containing a separator
// resolved against the working directory, a bare name searched in PATH.
func resolveServerExecutable() (string, error) {
	arg0 := os.Args[0]
	if filepath.IsAbs(arg0) {
		return arg0, nil
	}
	if strings.ContainsRune(arg0, os.PathSeparator) {
		abs, err := filepath.Abs(arg0)
		if err != nil {
			return "", fmt.Errorf("resolve executable path: %w", err)
		}
		return abs, nil
	}
	path, err := exec.LookPath(arg0)
	if err != nil {
		return "", fmt.Errorf("resolve executable %q in PATH: %w", arg0, err)
	}
	return path, nil
}
