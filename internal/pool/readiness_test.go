package pool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/retry"
)

func TestAwaitReadyFindsMarker(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pool.log")
	content := "starting controller\n2026/01/12 Engines appear to have started successfully\ntrailing noise\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	res, err := AwaitReady(t.Context(), logPath, DefaultReadyMarker, retry.FixedEvery(time.Millisecond, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.MarkerLine, "Engines appear")
}

func TestAwaitReadyEmptyMarkerUsesDefault(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pool.log")
	require.NoError(t, os.WriteFile(logPath, []byte(DefaultReadyMarker+"\n"), 0o644))

	_, err := AwaitReady(t.Context(), logPath, "", retry.FixedEvery(time.Millisecond, 2))
	assert.NoError(t, err)
}

func TestAwaitReadyBudgetExhausted(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pool.log")
	require.NoError(t, os.WriteFile(logPath, []byte("engines still warming up\n"), 0o644))

	res, err := AwaitReady(t.Context(), logPath, DefaultReadyMarker, retry.FixedEvery(time.Millisecond, 4))
	require.Error(t, err)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryPool))
	assert.Equal(t, 4, res.Attempts)
	assert.Empty(t, res.MarkerLine)
}

func TestAwaitReadyMissingLogCountsAsNonMatch(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "never-written.log")

	res, err := AwaitReady(t.Context(), logPath, DefaultReadyMarker, retry.FixedEvery(time.Millisecond, 3))
	require.Error(t, err)
	assert.Equal(t, 3, res.Attempts)
}

func TestAwaitReadyCanceled(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pool.log")
	require.NoError(t, os.WriteFile(logPath, []byte("nothing yet\n"), 0o644))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := AwaitReady(ctx, logPath, DefaultReadyMarker, retry.FixedEvery(time.Hour, 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, perrors.IsCategory(err, perrors.CategoryPool))
}

func TestAwaitReadyMarkerAppearsMidWait(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pool.log")
	require.NoError(t, os.WriteFile(logPath, []byte("booting\n"), 0o644))

	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = f.WriteString(DefaultReadyMarker + "\n")
	}()

	res, err := AwaitReady(t.Context(), logPath, DefaultReadyMarker, retry.FixedEvery(10*time.Millisecond, 200))
	require.NoError(t, err)
	assert.Greater(t, res.Attempts, 1)
}

func TestScanForMarkerReturnsFirstMatch(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pool.log")
	content := "line one\nready: alpha\nready: beta\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	line, found, err := ScanForMarker(logPath, "ready:")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ready: alpha", line)
}

func TestScanForMarkerMissingFile(t *testing.T) {
	_, found, err := ScanForMarker(filepath.Join(t.TempDir(), "absent.log"), "x")
	assert.False(t, found)
	assert.True(t, os.IsNotExist(err))
}
