// Package executor applies an ordered commit list onto the review
// branch, persisting progress after every pick so a run interrupted by a
// merge conflict or a crash can be resumed by a later invocation.
package executor

import (
	"errors"
	"fmt"
	"io"

	"github.com/tr-legal-tech/crbranch/internal/gitx"
	"github.com/tr-legal-tech/crbranch/internal/model"
	"github.com/tr-legal-tech/crbranch/internal/reconcile"
	"github.com/tr-legal-tech/crbranch/internal/session"
)

// Backend is the branch-mutation surface the executor drives. *gitx.Repo
// satisfies it; tests supply a fake.
type Backend interface {
	CreateBranchAt(branch, start string) error
	Checkout(ref string) error
	DeleteBranch(branch string) error
	CurrentBranch() (string, error)
	Head() (string, error)
	CherryPick(sha string) error
	CherryPickInProgress() (bool, error)
	HasUnmergedPaths() (bool, error)
	CherryPickContinue() error
	CherryPickAbort() error
}

// Store persists session state between invocations.
type Store interface {
	Write(*session.Session) error
	Clear() error
}

// Outcome reports how a run ended: either every pending commit was
// applied, or the run suspended on a conflict that needs manual
// resolution.
type Outcome struct {
	Blocked       bool
	BlockedCommit string
}

// Executor owns the working tree for the duration of a run. It is not
// safe for concurrent use; the session file is the guard against
// concurrent invocations.
type Executor struct {
	backend  Backend
	store    Store
	progress io.Writer
}

// New returns an executor writing progress messages to progress (may be
// nil to discard).
func New(backend Backend, store Store, progress io.Writer) *Executor {
	if progress == nil {
		progress = io.Discard
	}
	return &Executor{backend: backend, store: store, progress: progress}
}

// Start checks out the target branch for a fresh run. Create and Rebuild
// reset the branch to the session's starting point; Append syncs it to
// the remote tip without rewriting history.
func (e *Executor) Start(s *session.Session) error {
	strategy, err := reconcile.ParseStrategy(s.Strategy)
	if err != nil {
		return err
	}

	switch strategy {
	case reconcile.StrategyCreate, reconcile.StrategyRebuild:
		if err := e.backend.CreateBranchAt(s.TargetBranch, s.StartingPoint); err != nil {
			return fmt.Errorf("preparing branch %s at %s: %w", s.TargetBranch, model.Short(s.StartingPoint), err)
		}
	case reconcile.StrategyAppend:
		remoteRef := s.Remote + "/" + s.TargetBranch
		if err := e.backend.CreateBranchAt(s.TargetBranch, remoteRef); err != nil {
			return fmt.Errorf("checking out %s from %s: %w", s.TargetBranch, remoteRef, err)
		}
	default:
		return fmt.Errorf("strategy %s has nothing to apply", strategy)
	}
	return nil
}

// Run applies pending commits in order until the queue is empty or a
// conflict suspends the run. After every applied commit the session is
// persisted, so the pending queue strictly shrinks and the applied
// mapping strictly grows in lockstep, whatever happens to the process.
func (e *Executor) Run(s *session.Session) (*Outcome, error) {
	total := len(s.Desired)
	for len(s.Pending) > 0 {
		sha := s.Pending[0]
		fmt.Fprintf(e.progress, "[%d/%d] cherry-picking %s\n", total-len(s.Pending)+1, total, model.Short(sha))

		err := e.backend.CherryPick(sha)
		if err == nil {
			if err := e.finalize(s, sha); err != nil {
				return nil, err
			}
			continue
		}

		var conflict *gitx.ConflictError
		if !errors.As(err, &conflict) {
			// Unrecoverable backend failure. Leave the persisted state
			// as-is so the operator can abort.
			return nil, err
		}

		resolved, err := e.tryRememberedResolution(s, sha)
		if err != nil {
			return nil, err
		}
		if resolved {
			continue
		}

		s.Phase = session.PhaseBlocked
		s.BlockedOn = sha
		if err := e.store.Write(s); err != nil {
			return nil, err
		}
		return &Outcome{Blocked: true, BlockedCommit: sha}, nil
	}

	return &Outcome{}, nil
}

// tryRememberedResolution finishes a conflicted pick when rerere has
// already staged a remembered resolution for every conflicted path. Best
// effort with a single attempt; the manual path is the correctness
// baseline.
func (e *Executor) tryRememberedResolution(s *session.Session, sha string) (bool, error) {
	unmerged, err := e.backend.HasUnmergedPaths()
	if err != nil {
		return false, err
	}
	if unmerged {
		return false, nil
	}

	if err := e.backend.CherryPickContinue(); err != nil {
		return false, nil
	}

	fmt.Fprintf(e.progress, "conflict on %s auto-resolved from remembered resolution\n", model.Short(sha))
	if err := e.finalize(s, sha); err != nil {
		return false, err
	}
	return true, nil
}

// finalize records the commit just created for origin sha and persists
// the session.
func (e *Executor) finalize(s *session.Session, sha string) error {
	head, err := e.backend.Head()
	if err != nil {
		return err
	}
	if err := s.MarkApplied(sha, head); err != nil {
		return err
	}
	return e.store.Write(s)
}

// Resume re-attaches to a suspended session after the operator resolved
// the conflict and ran `git cherry-pick --continue`. It folds the
// externally finalized commit into the applied mapping and re-enters the
// apply loop.
func (e *Executor) Resume(s *session.Session) (*Outcome, error) {
	inProgress, err := e.backend.CherryPickInProgress()
	if err != nil {
		return nil, err
	}
	if inProgress {
		return nil, errors.New("a cherry-pick is still in progress; finish it with 'git cherry-pick --continue' (or 'git cherry-pick --abort') first")
	}

	current, err := e.backend.CurrentBranch()
	if err != nil {
		return nil, err
	}
	if current != s.TargetBranch {
		return nil, fmt.Errorf("resume requires branch %s checked out, but HEAD is on %s", s.TargetBranch, current)
	}

	if s.Phase == session.PhaseBlocked {
		if err := e.finalize(s, s.BlockedOn); err != nil {
			return nil, err
		}
		s.Phase = session.PhaseApplying
		s.BlockedOn = ""
		if err := e.store.Write(s); err != nil {
			return nil, err
		}
	}

	return e.Run(s)
}

// Abort tears the session down: any in-progress pick is aborted, the
// worktree returns to the main branch, the local review branch is
// deleted when this session created or rewrote it, and the persisted
// state is discarded. A half-rebuilt branch is deleted rather than kept:
// the remote still holds the last published tip, while the local copy
// holds a partial rewrite that would be misleading to leave behind.
func (e *Executor) Abort(s *session.Session) error {
	inProgress, err := e.backend.CherryPickInProgress()
	if err != nil {
		return err
	}
	if inProgress {
		if err := e.backend.CherryPickAbort(); err != nil {
			return err
		}
	}

	if err := e.backend.Checkout(s.MainBranch); err != nil {
		return fmt.Errorf("returning to %s: %w", s.MainBranch, err)
	}

	if s.BranchCreated || s.ForcePush {
		if err := e.backend.DeleteBranch(s.TargetBranch); err != nil {
			return fmt.Errorf("deleting %s: %w", s.TargetBranch, err)
		}
	}

	return e.store.Clear()
}
