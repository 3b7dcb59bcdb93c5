// Package run manages per-run directories and their artifact layout.
//
// A run directory is created once per batch run (run-20260825-193000-1a2b3c4d)
// and holds everything the run produces: the profile copy the worker pool is
// addressed through, the pool manager's log, the analysis output, and the
// persisted run report. Run directories are never removed automatically;
// they are the results.
package run
