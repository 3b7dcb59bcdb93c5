package pool

import (
	"os"
	"strings"
)

// tailReadBytes bounds how much of a log file the diagnostics reader pulls
// in; pool logs can grow large when many engines write tracebacks.
const tailReadBytes = 64 * 1024

// TailLines returns up to n trailing lines of a file. Missing files yield
// an error the caller can treat as "nothing to show".
func TailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	offset := info.Size() - tailReadBytes
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	trimmed := strings.TrimRight(string(buf), "\n")
	if trimmed == "" {
		return nil, nil
	}

	lines := strings.Split(trimmed, "\n")
	if offset > 0 && len(lines) > 0 {
		// First line is likely cut mid-way by the offset.
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Diagnostics gathers the tails of the given log files for failure
// reporting. Files that are missing or unreadable are simply absent from
// the result.
func Diagnostics(n int, paths ...string) map[string][]string {
	out := make(map[string][]string, len(paths))
	for _, p := range paths {
		lines, err := TailLines(p, n)
		if err != nil || len(lines) == 0 {
			continue
		}
		out[p] = lines
	}
	return out
}
