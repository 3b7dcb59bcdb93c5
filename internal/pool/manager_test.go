package pool

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
)

// writeStub drops an executable shell script into dir and returns its path.
func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub scripts require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestManagerStartArgs(t *testing.T) {
	m := NewManager(Options{Engines: 8, ProfileDir: "/tmp/profile", ExtraArgs: []string{"--debug"}})
	assert.Equal(t, []string{"start", "-n", "8", "--profile-dir", "/tmp/profile", "--debug"}, m.StartArgs())
}

func TestManagerStartWritesCombinedOutputToLog(t *testing.T) {
	dir := t.TempDir()
	bin := writeStub(t, dir, "fakecluster", `echo "controller online: $@"
echo "stderr line" >&2`)
	logPath := filepath.Join(dir, "pool.log")

	m := NewManager(Options{Bin: bin, Engines: 4, ProfileDir: dir, LogPath: logPath})
	require.NoError(t, m.Start())
	require.True(t, m.Started())

	require.Eventually(t, m.Exited, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "controller online: start -n 4 --profile-dir")
	assert.Contains(t, string(data), "stderr line")
	assert.NoError(t, m.WaitErr())
}

func TestManagerStartMissingBinary(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(Options{
		Bin:        filepath.Join(dir, "no-such-binary"),
		Engines:    2,
		ProfileDir: dir,
		LogPath:    filepath.Join(dir, "pool.log"),
	})
	err := m.Start()
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryPool))
	assert.False(t, m.Started())
}

func TestManagerDoubleStartRejected(t *testing.T) {
	dir := t.TempDir()
	bin := writeStub(t, dir, "fakecluster", `exit 0`)
	m := NewManager(Options{Bin: bin, Engines: 1, ProfileDir: dir, LogPath: filepath.Join(dir, "pool.log")})
	require.NoError(t, m.Start())
	require.Error(t, m.Start())
}

func TestManagerStopInvokesStopCommand(t *testing.T) {
	dir := t.TempDir()
	calls := filepath.Join(dir, "calls.log")
	bin := writeStub(t, dir, "fakecluster", `echo "$@" >> `+calls)
	logPath := filepath.Join(dir, "pool.log")

	m := NewManager(Options{Bin: bin, Engines: 2, ProfileDir: dir, LogPath: logPath})
	require.NoError(t, m.Start())
	require.Eventually(t, m.Exited, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop(t.Context()))

	data, err := os.ReadFile(calls)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "start -n 2")
	assert.Equal(t, "stop --profile-dir "+dir, lines[1])
}

func TestManagerStopWithoutStartIsNoop(t *testing.T) {
	m := NewManager(Options{ProfileDir: "/nowhere", LogPath: "/nowhere/pool.log"})
	assert.NoError(t, m.Stop(t.Context()))
}

func TestManagerStopFailureIsTeardownError(t *testing.T) {
	dir := t.TempDir()
	bin := writeStub(t, dir, "fakecluster", `if [ "$1" = "stop" ]; then exit 7; fi`)
	logPath := filepath.Join(dir, "pool.log")

	m := NewManager(Options{Bin: bin, Engines: 1, ProfileDir: dir, LogPath: logPath})
	require.NoError(t, m.Start())
	require.Eventually(t, m.Exited, 5*time.Second, 10*time.Millisecond)

	err := m.Stop(t.Context())
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryPool))

	var pe *perrors.PoolPilotError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, perrors.SeverityWarning, pe.Severity)
}

func TestManagerStopHonorsContextWhileControllerLingers(t *testing.T) {
	dir := t.TempDir()
	// Start blocks long enough to outlive the stop context; stop succeeds fast.
	bin := writeStub(t, dir, "fakecluster", `if [ "$1" = "start" ]; then sleep 3; fi`)
	logPath := filepath.Join(dir, "pool.log")

	m := NewManager(Options{Bin: bin, Engines: 1, ProfileDir: dir, LogPath: logPath})
	require.NoError(t, m.Start())

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, m.Stop(ctx))
	assert.Less(t, time.Since(start), 2*time.Second, "stop should give up waiting when the context expires")
}
