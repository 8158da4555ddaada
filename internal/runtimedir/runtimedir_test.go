package runtimedir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func withOverride(t *testing.T, dir string) {
	t.Helper()
	old, hadOld := os.LookupEnv(EnvOverride)
	require.NoError(t, os.Setenv(EnvOverride, dir))
	t.Cleanup(func() {
		if hadOld {
			os.Setenv(EnvOverride, old)
		} else {
			os.Unsetenv(EnvOverride)
		}
	})
}

func TestEnsureCreatesDirWithRestrictedMode(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "runtime")
	withOverride(t, dir)

	got, err := Ensure()
	require.NoError(t, err)
	require.Equal(t, dir, got)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestSocketPIDLogPaths(t *testing.T) {
	dir := t.TempDir()
	withOverride(t, dir)

	require.Equal(t, filepath.Join(dir, "default"), SocketPath())
	require.Equal(t, filepath.Join(dir, "pane.pid"), PIDPath())
	require.Equal(t, filepath.Join(dir, "pane.log"), LogPath())
}

func TestWriteReadRemovePID(t *testing.T) {
	dir := t.TempDir()
	withOverride(t, dir)

	require.NoError(t, WritePID())

	info, err := os.Stat(PIDPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	pid, err := ReadPID()
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)

	require.NoError(t, RemovePID())
	_, err = ReadPID()
	require.Error(t, err)
}

func TestCheckSocketPathRejectsOverlongPath(t *testing.T) {
	dir := t.TempDir()
	withOverride(t, filepath.Join(dir, strings.Repeat("x", 200)))

	err := CheckSocketPath()
	require.ErrorIs(t, err, ErrSocketPathTooLong)
}

func TestCheckSocketPathAcceptsShortPath(t *testing.T) {
	dir := t.TempDir()
	withOverride(t, dir)

	require.NoError(t, CheckSocketPath())
}

func TestProcessAliveForSelfAndBogus(t *testing.T) {
	require.True(t, ProcessAlive(os.Getpid()))
	require.False(t, ProcessAlive(0))
	require.False(t, ProcessAlive(-1))
}
