package pool

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
	"git.home.luguber.info/inful/poolpilot/internal/retry"
)

// DefaultReadyMarker is the log line fragment the pool controller emits once
// all engines have registered.
const DefaultReadyMarker = "Engines appear to have started successfully"

// scanBufferSize caps a single log line during the marker scan. Engine
// tracebacks can produce very long lines.
const scanBufferSize = 1024 * 1024

// WaitResult describes how a readiness wait ended.
type WaitResult struct {
	Attempts   int    // scan attempts consumed
	MarkerLine string // full log line containing the marker, when found
}

// AwaitReady polls the controller log until the readiness marker appears or
// the attempt budget is exhausted. Each attempt pauses for the policy delay
// first and then scans, so a pool that becomes ready during the final pause
// is still caught. A log file that does not exist yet counts as a
// non-match, not an error. Cancellation wins over the budget and is
// reported as a wrapped ctx error.
func AwaitReady(ctx context.Context, logPath, marker string, policy retry.Policy) (WaitResult, error) {
	if marker == "" {
		marker = DefaultReadyMarker
	}

	var res WaitResult
	budget := policy.Attempts()
	for attempt := 1; attempt <= budget; attempt++ {
		select {
		case <-ctx.Done():
			return res, perrors.Wrap(ctx.Err(), perrors.CategoryPool, perrors.SeverityFatal, "readiness wait canceled")
		case <-time.After(policy.Delay(attempt)):
		}

		res.Attempts = attempt
		line, found, err := ScanForMarker(logPath, marker)
		if err != nil && !os.IsNotExist(err) {
			slog.Debug("Pool log not readable yet",
				logfields.Path(logPath),
				logfields.Attempt(attempt),
				logfields.Error(err))
		}
		if found {
			res.MarkerLine = line
			slog.Info("Worker pool is ready",
				logfields.Attempts(attempt),
				logfields.Marker(marker))
			return res, nil
		}

		slog.Debug("Worker pool not ready yet",
			logfields.Attempt(attempt),
			logfields.Attempts(budget))
	}

	return res, perrors.PoolNotReady(budget).WithContext("marker", marker)
}

// ScanForMarker scans a log file line by line for the marker substring and
// returns the first matching line.
func ScanForMarker(path, marker string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	for scanner.Scan() {
		if line := scanner.Text(); strings.Contains(line, marker) {
			return line, true, nil
		}
	}
	return "", false, scanner.Err()
}
