// Package pool manages the worker-pool controller process: starting it in
// the background with its output captured into the run directory, waiting
// for the readiness marker to appear in that log, and stopping the pool
// during teardown.
package pool

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
)

// DefaultBin is the pool controller binary used when none is configured.
const DefaultBin = "ipcluster"

// Options parameterize one pool lifecycle.
type Options struct {
	Bin        string   // controller binary, DefaultBin when empty
	ProfileDir string   // profile directory the pool is addressed through
	Engines    int      // worker count passed to the start invocation
	LogPath    string   // combined stdout/stderr of the controller
	ExtraArgs  []string // appended verbatim to the start invocation
}

// Manager drives a single pool controller process. Start launches the
// controller in the background; Stop asks it to shut the pool down. A
// Manager is not reusable across runs.
type Manager struct {
	opts Options

	mu      sync.Mutex
	cmd     *exec.Cmd
	started bool
	done    chan struct{} // closed when the start process has been reaped
	waitErr error
}

// NewManager returns a manager for one pool lifecycle.
func NewManager(opts Options) *Manager {
	if opts.Bin == "" {
		opts.Bin = DefaultBin
	}
	return &Manager{opts: opts, done: make(chan struct{})}
}

// StartArgs returns the argv (excluding the binary) used to start the pool.
func (m *Manager) StartArgs() []string {
	args := []string{"start", "-n", strconv.Itoa(m.opts.Engines), "--profile-dir", m.opts.ProfileDir}
	return append(args, m.opts.ExtraArgs...)
}

// Start launches the pool controller in the background and returns once the
// process is running. The controller daemonizes engine startup on its own;
// readiness is observed separately through its log (see AwaitReady). The
// process is deliberately not bound to a context: teardown is an explicit
// Stop so that engines are never orphaned by a canceled run context.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return perrors.New(perrors.CategoryPool, perrors.SeverityFatal, "worker pool already started")
	}

	logFile, err := os.OpenFile(m.opts.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return perrors.PoolStartFailed(err).WithContext("log", m.opts.LogPath)
	}

	cmd := exec.Command(m.opts.Bin, m.StartArgs()...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return perrors.PoolStartFailed(err).WithContext("bin", m.opts.Bin)
	}

	m.cmd = cmd
	m.started = true

	slog.Info("Worker pool controller started",
		logfields.PID(cmd.Process.Pid),
		logfields.Name(m.opts.Bin),
		logfields.Count(m.opts.Engines),
		logfields.Path(m.opts.LogPath))

	// Reap the process as soon as it exits so a controller that daemonizes
	// (or crashes) never turns into a zombie under us.
	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		m.waitErr = err
		m.mu.Unlock()
		_ = logFile.Close()
		close(m.done)
	}()

	return nil
}

// Started reports whether Start has run; Stop is only meaningful afterwards.
func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Exited reports whether the start process has already been reaped.
func (m *Manager) Exited() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// WaitErr returns the exit error of the start process once it has been
// reaped, nil before that or on clean exit.
func (m *Manager) WaitErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitErr
}

// Stop shuts the pool down via the controller's stop command and waits,
// bounded by ctx, for the start process to be reaped. Stop output is
// appended to the same log as the start output. Stop is safe to call
// whether or not the pool ever became ready.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return nil
	}

	logFile, err := os.OpenFile(m.opts.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return perrors.TeardownFailed(err).WithContext("log", m.opts.LogPath)
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.CommandContext(ctx, m.opts.Bin, "stop", "--profile-dir", m.opts.ProfileDir)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	slog.Info("Stopping worker pool", logfields.Name(m.opts.Bin), logfields.Dir(m.opts.ProfileDir))
	if err := cmd.Run(); err != nil {
		return perrors.TeardownFailed(err).WithContext("bin", m.opts.Bin)
	}

	select {
	case <-m.done:
	case <-ctx.Done():
		slog.Warn("Pool controller still running after stop", logfields.PID(m.pid()))
	}
	return nil
}

func (m *Manager) pid() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil || m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}
