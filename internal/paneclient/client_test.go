package paneclient

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/migueldeicaza/Pane/internal/runtimedir"
)

func TestIsConnectFailureForMissingSocket(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Setenv(runtimedir.EnvOverride, dir))
	t.Cleanup(func() { os.Unsetenv(runtimedir.EnvOverride) })

	_, err := Dial()
	require.Error(t, err)
	require.True(t, isConnectFailure(err))
}

func TestIsConnectFailureForListenerNotAccepting(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "default")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	listener.(*net.UnixListener).SetUnlinkOnClose(false)
	listener.Close() // leaves the socket file but nothing listening

	require.NoError(t, os.Setenv(runtimedir.EnvOverride, dir))
	t.Cleanup(func() { os.Unsetenv(runtimedir.EnvOverride) })

	_, dialErr := Dial()
	require.Error(t, dialErr)
	require.True(t, isConnectFailure(dialErr))
}

func TestResolveServerExecutableAbsolutePath(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"/usr/local/bin/pane"}
	path, err := resolveServerExecutable()
	require.NoError(t, err)
	require.Equal(t, "/usr/local/bin/pane", path)
}

func TestResolveServerExecutableRelativePath(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"./pane"}
	path, err := resolveServerExecutable()
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(path))
}

func TestResolveServerExecutableBareNameSearchesPath(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"sh"}
	path, err := resolveServerExecutable()
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(path))
}
