package run

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/poolpilot/internal/logfields"
	"github.com/google/uuid"
)

// Artifact names inside a run directory. The pool manager writes PoolLog
// (via redirect) and its MPI launcher writes EngineLog on its own; the rest
// are written by poolpilot.
const (
	ProfileDirName     = "profile"
	PoolLogName        = "ipcluster.log"
	OutputLogName      = "output.log"
	EngineLogName      = "mpiexec.log"
	SubmitScriptName   = "submit.sbatch"
	ReportJSONName     = "report.json"
	ReportMarkdownName = "report.md"
)

// NewID returns a fresh run identifier.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns the 8-character prefix used in directory names and logs.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Paths resolves artifact locations inside one run directory.
type Paths struct {
	Dir string
}

func (p Paths) ProfileDir() string     { return filepath.Join(p.Dir, ProfileDirName) }
func (p Paths) PoolLog() string        { return filepath.Join(p.Dir, PoolLogName) }
func (p Paths) OutputLog() string      { return filepath.Join(p.Dir, OutputLogName) }
func (p Paths) EngineLog() string      { return filepath.Join(p.Dir, EngineLogName) }
func (p Paths) SubmitScript() string   { return filepath.Join(p.Dir, SubmitScriptName) }
func (p Paths) ReportJSON() string     { return filepath.Join(p.Dir, ReportJSONName) }
func (p Paths) ReportMarkdown() string { return filepath.Join(p.Dir, ReportMarkdownName) }

// Manager handles creation and layout of a single run directory.
type Manager struct {
	baseDir string
	runID   string
	dir     string // set after Create, or fixed via Attach
	ready   bool   // directory ensured at least once
}

// NewManager creates a manager that will place a fresh timestamped run
// directory under baseDir.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{
		baseDir: baseDir,
		runID:   NewID(),
	}
}

// Attach binds a manager to an existing run directory, typically one the
// submit step created before handing control to the scheduler. An empty
// runID gets a fresh identity.
func Attach(dir, runID string) *Manager {
	if runID == "" {
		runID = NewID()
	}
	return &Manager{
		runID: runID,
		dir:   dir,
	}
}

// ID returns the run identifier.
func (m *Manager) ID() string {
	return m.runID
}

// Create ensures the run directory exists.
// Fresh managers create a timestamped directory; attached managers ensure
// the fixed directory exists.
func (m *Manager) Create() error {
	if m.dir != "" {
		if err := os.MkdirAll(m.dir, 0o750); err != nil {
			return fmt.Errorf("failed to create run directory: %w", err)
		}
		if !m.ready {
			m.ready = true
			slog.Info("Using run directory", logfields.RunID(ShortID(m.runID)), logfields.Path(m.dir))
		}
		return nil
	}

	timestamp := time.Now().UTC().Format("20060102-150405")
	dir := filepath.Join(m.baseDir, fmt.Sprintf("run-%s-%s", timestamp, ShortID(m.runID)))

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	m.dir = dir
	m.ready = true
	slog.Info("Created run directory", logfields.RunID(ShortID(m.runID)), logfields.Path(dir))
	return nil
}

// Paths returns the artifact layout for the run directory.
// Create must have been called first.
func (m *Manager) Paths() Paths {
	return Paths{Dir: m.dir}
}

// PrepareProfile copies the profile template into the run directory.
// The profile parameterizes how the pool manager and connecting clients
// find each other; a missing template fails the run before anything starts.
// An existing profile copy from a previous attempt is overwritten in place.
func (m *Manager) PrepareProfile(templateDir string) (string, error) {
	if m.dir == "" {
		return "", fmt.Errorf("run directory not created")
	}
	if _, err := os.Stat(templateDir); err != nil {
		return "", fmt.Errorf("profile template not found: %s: %w", templateDir, err)
	}

	profileDir := m.Paths().ProfileDir()
	if err := CopyDir(templateDir, profileDir); err != nil {
		return "", fmt.Errorf("failed to copy profile template: %w", err)
	}

	slog.Debug("Copied profile template",
		logfields.RunID(ShortID(m.runID)),
		logfields.Dir(templateDir),
		logfields.Path(profileDir))
	return profileDir, nil
}

// CopyDir recursively copies a directory tree, preserving file modes.
func CopyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := CopyDir(srcPath, dstPath); err != nil {
				return err
			}
		} else {
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// copyFile copies a single file from src to dst
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = dstFile.Close()
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	// Preserve file permissions
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, srcInfo.Mode())
}
