// Package provenance records the version-control state of the analysis
// source tree at run time, so a result can always be traced back to the
// exact code that produced it.
package provenance

import (
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/poolpilot/internal/logfields"
)

// Info describes the source tree a run was started from.
type Info struct {
	Commit string `json:"commit"`
	Branch string `json:"branch,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// Capture inspects dir (or any parent, following the usual .git discovery)
// and returns its HEAD state. A directory that is not inside a repository,
// or a repository without commits, yields (nil, nil): provenance is
// best-effort and its absence is not a run failure.
func Capture(dir string) (*Info, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if stdErrors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if stdErrors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	info := &Info{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	// Worktree status can fail on exotic repo layouts; treat that as
	// "cleanliness unknown" rather than losing the commit hash.
	if wt, wtErr := repo.Worktree(); wtErr == nil {
		if status, stErr := wt.Status(); stErr == nil {
			info.Dirty = !status.IsClean()
		} else {
			slog.Debug("Could not read worktree status", logfields.Dir(dir), logfields.Error(stErr))
		}
	}

	return info, nil
}

// Describe renders the short human form, e.g. "3f2a1b9 (main, dirty)".
func (i *Info) Describe() string {
	if i == nil || i.Commit == "" {
		return "unknown"
	}
	short := i.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	suffix := ""
	if i.Branch != "" {
		suffix = i.Branch
	}
	if i.Dirty {
		if suffix != "" {
			suffix += ", "
		}
		suffix += "dirty"
	}
	if suffix == "" {
		return short
	}
	return fmt.Sprintf("%s (%s)", short, suffix)
}
