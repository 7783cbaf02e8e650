// Package session persists the state of one cherry-pick run so it can be
// re-attached after a conflict-driven suspension or a crash. The state
// lives inside the git dir, never in the worktree.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tr-legal-tech/crbranch/internal/model"
	"github.com/tr-legal-tech/crbranch/internal/util"
)

const sessionFile = "session.json"
const stateDir = "crbranch"

// Phases of a persisted session.
const (
	PhaseApplying = "applying"
	PhaseBlocked  = "blocked"
)

// ErrAlreadyActive is returned when a new run would collide with
// persisted state from another run.
var ErrAlreadyActive = errors.New("a crbranch session is already active; finish it with 'crbranch resume' or discard it with 'crbranch abort'")

// ErrInconsistent is returned when the persisted lists violate the
// session invariant.
var ErrInconsistent = errors.New("session state is inconsistent")

// AppliedPair links an origin commit to the commit created for it on the
// target branch. Insertion order is application order.
type AppliedPair struct {
	Origin string `json:"origin"`
	New    string `json:"new"`
}

// Session is the serializable state of one reconciliation run. It is the
// sole carrier of continuation across a conflict suspension: the process
// exits, and a later `resume` invocation re-reads it.
type Session struct {
	TicketID      string `json:"ticket_id"`
	TargetBranch  string `json:"target_branch"`
	MainBranch    string `json:"main_branch"`
	Remote        string `json:"remote"`
	Strategy      string `json:"strategy"`
	StartingPoint string `json:"starting_point,omitempty"`

	// Desired is the full reconciled commit list, immutable for the
	// lifetime of the session.
	Desired []string `json:"desired"`

	// Pending is the ordered queue of origin commits not yet applied.
	// Strictly shrinks from the front.
	Pending []string `json:"pending"`

	// Applied grows in lockstep with Pending shrinking; together with
	// the preapplied entries it always complements Pending with respect
	// to Desired.
	Applied []AppliedPair `json:"applied"`

	Phase         string `json:"phase"`
	BlockedOn     string `json:"blocked_on,omitempty"`
	BranchCreated bool   `json:"branch_created"`
	ForcePush     bool   `json:"force_push"`
	CreatedAt     string `json:"created_at"`
}

// New initializes a session in the applying phase.
func New(ticketID, target, main, remote string) *Session {
	return &Session{
		TicketID:     ticketID,
		TargetBranch: target,
		MainBranch:   main,
		Remote:       remote,
		Phase:        PhaseApplying,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
}

// MarkApplied pops origin from the front of the pending queue and
// records the commit created for it. The head of the queue must be the
// commit being finalized; anything else means the persisted state and
// the branch have diverged.
func (s *Session) MarkApplied(origin, created string) error {
	if len(s.Pending) == 0 || s.Pending[0] != origin {
		return fmt.Errorf("%w: %s is not the next pending commit", ErrInconsistent, model.Short(origin))
	}
	s.Pending = s.Pending[1:]
	s.Applied = append(s.Applied, AppliedPair{Origin: origin, New: created})
	return nil
}

// NewHashes returns the origin-to-created mapping accumulated so far.
func (s *Session) NewHashes() map[string]string {
	m := make(map[string]string, len(s.Applied))
	for _, p := range s.Applied {
		m[p.Origin] = p.New
	}
	return m
}

// Validate checks the complementarity invariant: every desired commit is
// either applied or pending, and nothing is both.
func (s *Session) Validate() error {
	seen := make(map[string]bool, len(s.Desired))
	for _, h := range s.Desired {
		seen[h] = true
	}

	accounted := make(map[string]bool, len(s.Desired))
	for _, p := range s.Applied {
		if !seen[p.Origin] {
			return fmt.Errorf("%w: applied commit %s is not in the desired set", ErrInconsistent, model.Short(p.Origin))
		}
		if accounted[p.Origin] {
			return fmt.Errorf("%w: commit %s accounted twice", ErrInconsistent, model.Short(p.Origin))
		}
		accounted[p.Origin] = true
	}
	for _, h := range s.Pending {
		if !seen[h] {
			return fmt.Errorf("%w: pending commit %s is not in the desired set", ErrInconsistent, model.Short(h))
		}
		if accounted[h] {
			return fmt.Errorf("%w: commit %s accounted twice", ErrInconsistent, model.Short(h))
		}
		accounted[h] = true
	}
	if len(accounted) != len(s.Desired) {
		return fmt.Errorf("%w: %d of %d desired commits accounted for", ErrInconsistent, len(accounted), len(s.Desired))
	}
	return nil
}

// Store reads and writes session state under a directory, normally the
// repository's git dir. Keeping the directory explicit lets tests run
// against a plain temp dir.
type Store struct {
	Dir string
}

// NewStore returns a store rooted at the given git dir.
func NewStore(gitDir string) *Store {
	return &Store{Dir: filepath.Join(gitDir, stateDir)}
}

func (st *Store) path() string {
	return filepath.Join(st.Dir, sessionFile)
}

// Write persists the session atomically.
func (st *Store) Write(s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	data = append(data, '\n')

	return util.WriteFileAtomic(st.path(), data, 0644)
}

// Read loads the persisted session. Returns nil if none exists.
func (st *Store) Read() (*Session, error) {
	data, err := os.ReadFile(st.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// EnsureInactive fails when a persisted session exists, so a new run
// never clobbers in-flight state. A session already targeting the
// requested branch points at resume instead of the generic message.
func (st *Store) EnsureInactive(target string) error {
	existing, err := st.Read()
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if existing.TargetBranch == target {
		return fmt.Errorf("%w (it targets %s; 'crbranch resume' continues it)", ErrAlreadyActive, existing.TargetBranch)
	}
	return fmt.Errorf("%w (it targets %s)", ErrAlreadyActive, existing.TargetBranch)
}

// Clear removes the persisted session state.
func (st *Store) Clear() error {
	err := os.Remove(st.path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
