package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyJobID      = "job_id"
	KeyJobName    = "job_name"
	KeyStage      = "stage"
	KeyEvent      = "event"
	KeyOutcome    = "outcome"
	KeyDurationMS = "duration_ms"
	KeyAttempt    = "attempt"
	KeyAttempts   = "attempts"
	KeyCount      = "count"
	KeyPath       = "path"
	KeyDir        = "dir"
	KeyMarker     = "marker"
	KeyExitCode   = "exit_code"
	KeyPID        = "pid"
	KeySubject    = "subject"
	KeyComponent  = "component"
	KeyName       = "name"
	KeyURL        = "url"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr   { return slog.String(KeyRunID, id) }
func JobID(id string) slog.Attr   { return slog.String(KeyJobID, id) }
func JobName(n string) slog.Attr  { return slog.String(KeyJobName, n) }
func Stage(name string) slog.Attr { return slog.String(KeyStage, name) }
func Event(e string) slog.Attr    { return slog.String(KeyEvent, e) }
func Outcome(o string) slog.Attr  { return slog.String(KeyOutcome, o) }
func DurationMS(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000.0)
}
func Attempt(n int) slog.Attr      { return slog.Int(KeyAttempt, n) }
func Attempts(n int) slog.Attr     { return slog.Int(KeyAttempts, n) }
func Count(n int) slog.Attr        { return slog.Int(KeyCount, n) }
func Path(p string) slog.Attr      { return slog.String(KeyPath, p) }
func Dir(d string) slog.Attr       { return slog.String(KeyDir, d) }
func Marker(m string) slog.Attr    { return slog.String(KeyMarker, m) }
func ExitCode(c int) slog.Attr     { return slog.Int(KeyExitCode, c) }
func PID(pid int) slog.Attr        { return slog.Int(KeyPID, pid) }
func Subject(s string) slog.Attr   { return slog.String(KeySubject, s) }
func Component(c string) slog.Attr { return slog.String(KeyComponent, c) }
func Name(n string) slog.Attr      { return slog.String(KeyName, n) }
func URL(u string) slog.Attr       { return slog.String(KeyURL, u) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
