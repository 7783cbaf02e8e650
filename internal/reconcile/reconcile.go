// Package reconcile computes the authoritative commit set for a review
// branch from two divergent histories: the ticket-tagged commits on the
// main branch and the commits previously applied to the review branch.
// Commits are identified by patch fingerprint rather than hash, so a
// change keeps its identity across amend, rebase, and cherry-pick.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/tr-legal-tech/crbranch/internal/model"
)

// ErrAmbiguousStartingPoint is returned when the branch rebuild base
// cannot be established because the first reconciled commit has no
// parent. Surfaced to the operator; never auto-resolved.
var ErrAmbiguousStartingPoint = errors.New("first commit of the set is a root commit; cannot establish a starting point")

// Graph is the commit-graph query surface reconciliation depends on.
// *gitx.Repo satisfies it; tests supply an in-memory fake.
type Graph interface {
	CommitsReferencing(branch, pattern string) ([]model.Commit, error)
	CommitsUniqueTo(branch, base string) ([]model.Commit, error)
	MergeBase(a, b string) (string, error)
	FingerprintOf(sha string) (model.Fingerprint, error)
	ParentOf(sha string) (string, error)
}

// Strategy classifies how the review branch must be updated.
type Strategy int

const (
	// StrategyNone: no commits reference the ticket and no review branch
	// exists. A terminal non-error outcome.
	StrategyNone Strategy = iota

	// StrategyCreate: no remote review branch exists yet.
	StrategyCreate

	// StrategyAppend: every commit already on the branch is still
	// desired; the missing ones can be added without rewriting history.
	StrategyAppend

	// StrategyRebuild: the branch holds commits that are no longer
	// desired (amended, rebased, or reverted upstream); history must be
	// reconstructed from a fresh starting point.
	StrategyRebuild

	// StrategyNoOp: the branch already matches the desired set exactly.
	StrategyNoOp
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyCreate:
		return "create"
	case StrategyAppend:
		return "append"
	case StrategyRebuild:
		return "rebuild"
	case StrategyNoOp:
		return "no-op"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy is the inverse of Strategy.String, used when re-reading
// a persisted session.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range []Strategy{StrategyNone, StrategyCreate, StrategyAppend, StrategyRebuild, StrategyNoOp} {
		if st.String() == s {
			return st, nil
		}
	}
	return StrategyNone, fmt.Errorf("unknown strategy %q", s)
}

// Params names the branches and ticket a reconciliation runs against.
type Params struct {
	// MainBranch is the source of truth for ticket tagging.
	MainBranch string

	// ReviewRef is the remote-tracking ref of the existing review branch
	// (e.g. "origin/CR/AB-1234"), or "" when no remote branch exists.
	ReviewRef string

	// TicketID is the canonical ticket identifier, matched
	// case-insensitively against commit messages.
	TicketID string
}

// Applied links a desired origin commit to the commit already carrying
// its change on the review branch.
type Applied struct {
	Origin string
	New    string
}

// Plan is the outcome of reconciliation.
type Plan struct {
	Strategy Strategy

	// Commits is the full reconciled set, ancestor-first, one commit per
	// surviving fingerprint.
	Commits []model.Commit

	// Pending is the ordered subset of Commits that still has to be
	// applied. Equal to Commits for Create and Rebuild; empty for NoOp.
	Pending []model.Commit

	// Preapplied maps desired commits already present on the review
	// branch to their on-branch hashes, in application order.
	Preapplied []Applied

	// StartingPoint is the commit the branch is (re)built from. Only set
	// for Create and Rebuild.
	StartingPoint string
}

// Reconcile computes the desired commit set and update strategy.
func Reconcile(g Graph, p Params) (*Plan, error) {
	mainPool, err := g.CommitsReferencing(p.MainBranch, p.TicketID)
	if err != nil {
		return nil, fmt.Errorf("listing %s commits on %s: %w", p.TicketID, p.MainBranch, err)
	}

	branchExists := p.ReviewRef != ""
	var reviewPool []model.Commit
	if branchExists {
		reviewPool, err = g.CommitsUniqueTo(p.ReviewRef, p.MainBranch)
		if err != nil {
			return nil, fmt.Errorf("listing commits unique to %s: %w", p.ReviewRef, err)
		}
	}

	fps := newFingerprints(g)

	excluded, err := exclusionSet(fps, mainPool, reviewPool)
	if err != nil {
		return nil, err
	}

	mainSurvivors, taken, err := survivors(fps, mainPool, excluded, nil)
	if err != nil {
		return nil, err
	}
	reviewSurvivors, _, err := survivors(fps, reviewCandidates(reviewPool), excluded, taken)
	if err != nil {
		return nil, err
	}

	ordered := mergeOrdered(mainSurvivors, reviewSurvivors)

	if len(ordered) == 0 && !branchExists {
		return &Plan{Strategy: StrategyNone}, nil
	}

	if !branchExists {
		start, err := startingPoint(g, ordered)
		if err != nil {
			return nil, err
		}
		return &Plan{
			Strategy:      StrategyCreate,
			Commits:       ordered,
			Pending:       ordered,
			StartingPoint: start,
		}, nil
	}

	return classify(g, p, fps, ordered, reviewPool)
}

// reviewCandidates filters a review pool down to the commits that are
// candidate changes in their own right: commits authored directly on the
// review branch. A commit carrying a cherry-pick trailer is a record of
// an applied main-branch change, not an independent candidate; letting
// it back into the pool would keep a stale pick's fingerprint desired
// forever and mask upstream rewrites.
func reviewCandidates(reviewPool []model.Commit) []model.Commit {
	var out []model.Commit
	for _, c := range reviewPool {
		if pickOrigin(c) == "" {
			out = append(out, c)
		}
	}
	return out
}

// classify decides between NoOp, Append, and Rebuild for an existing
// review branch by comparing the fingerprints already applied to it
// against the desired set. The applied scan is strictly limited to
// commits unique to the branch past the merge base; shared main-branch
// history must never be scanned, or convergent content from main would
// be misclassified as already applied.
func classify(g Graph, p Params, fps *fingerprints, ordered, reviewPool []model.Commit) (*Plan, error) {
	type appliedEntry struct {
		fp  model.Fingerprint
		sha string // hash of the commit on the review branch
	}

	// Every commit unique to the branch counts as applied content,
	// whether it arrived by cherry-pick (trailer) or directly.
	var applied []appliedEntry
	appliedFPs := make(map[model.Fingerprint]string) // fingerprint -> on-branch hash
	for _, c := range reviewPool {
		fp, err := appliedFingerprint(fps, c)
		if err != nil {
			return nil, err
		}
		applied = append(applied, appliedEntry{fp: fp, sha: c.FullHash})
		if _, seen := appliedFPs[fp]; !seen {
			appliedFPs[fp] = c.FullHash
		}
	}

	desiredFPs := make(map[model.Fingerprint]bool, len(ordered))
	for _, c := range ordered {
		fp, err := fps.of(c.FullHash)
		if err != nil {
			return nil, err
		}
		desiredFPs[fp] = true
	}

	stale := false
	for _, a := range applied {
		if !desiredFPs[a.fp] {
			stale = true
			break
		}
	}

	if stale {
		start, err := rebuildStartingPoint(g, p, ordered)
		if err != nil {
			return nil, err
		}
		return &Plan{
			Strategy:      StrategyRebuild,
			Commits:       ordered,
			Pending:       ordered,
			StartingPoint: start,
		}, nil
	}

	// applied ⊆ desired from here on
	var pending []model.Commit
	var preapplied []Applied
	for _, c := range ordered {
		fp, err := fps.of(c.FullHash)
		if err != nil {
			return nil, err
		}
		if sha, ok := appliedFPs[fp]; ok {
			preapplied = append(preapplied, Applied{Origin: c.FullHash, New: sha})
		} else {
			pending = append(pending, c)
		}
	}

	if len(pending) == 0 {
		return &Plan{
			Strategy:   StrategyNoOp,
			Commits:    ordered,
			Preapplied: preapplied,
		}, nil
	}

	return &Plan{
		Strategy:   StrategyAppend,
		Commits:    ordered,
		Pending:    pending,
		Preapplied: preapplied,
	}, nil
}

// appliedFingerprint identifies the change carried by a review-branch
// commit. The cherry-pick trailer's origin is fingerprinted when it still
// resolves, so a pick whose own patch-id drifted during conflict
// resolution keeps matching its origin; otherwise the commit itself is
// fingerprinted.
func appliedFingerprint(fps *fingerprints, c model.Commit) (model.Fingerprint, error) {
	if origin := pickOrigin(c); origin != "" {
		if fp, err := fps.of(origin); err == nil {
			return fp, nil
		}
	}
	return fps.of(c.FullHash)
}

// startingPoint returns the parent of the first reconciled commit.
func startingPoint(g Graph, ordered []model.Commit) (string, error) {
	start, err := g.ParentOf(ordered[0].FullHash)
	if err != nil {
		return "", fmt.Errorf("%w (%s)", ErrAmbiguousStartingPoint, ordered[0].ShortHash)
	}
	return start, nil
}

// rebuildStartingPoint handles the fully-reverted case: when nothing is
// desired anymore the branch is reset to its merge base with main,
// leaving it empty of the feature.
func rebuildStartingPoint(g Graph, p Params, ordered []model.Commit) (string, error) {
	if len(ordered) == 0 {
		base, err := g.MergeBase(p.ReviewRef, p.MainBranch)
		if err != nil {
			return "", fmt.Errorf("computing merge base of %s and %s: %w", p.ReviewRef, p.MainBranch, err)
		}
		return base, nil
	}
	return startingPoint(g, ordered)
}

// exclusionSet collects the fingerprints dropped because a commit in the
// pools is a structured revert: both the revert commit and its target
// are excluded.
func exclusionSet(fps *fingerprints, pools ...[]model.Commit) (map[model.Fingerprint]bool, error) {
	excluded := make(map[model.Fingerprint]bool)
	for _, pool := range pools {
		for _, c := range pool {
			target := revertTarget(c)
			if target == "" {
				continue
			}

			fp, err := fps.of(c.FullHash)
			if err != nil {
				return nil, err
			}
			excluded[fp] = true

			if tfp, err := fps.of(target); err == nil {
				excluded[tfp] = true
				continue
			}
			// Target no longer resolves (rewritten away); fall back to
			// matching by hash within the pools.
			for _, pool2 := range pools {
				for _, c2 := range pool2 {
					if model.SameHash(c2.FullHash, target) {
						fp2, err := fps.of(c2.FullHash)
						if err != nil {
							return nil, err
						}
						excluded[fp2] = true
					}
				}
			}
		}
	}
	return excluded, nil
}

// survivors filters a pool down to one commit per fingerprint, dropping
// excluded fingerprints and any fingerprint already claimed by an
// earlier pool. Returns the survivors and the updated claim set.
func survivors(fps *fingerprints, pool []model.Commit, excluded, claimed map[model.Fingerprint]bool) ([]model.Commit, map[model.Fingerprint]bool, error) {
	taken := make(map[model.Fingerprint]bool, len(pool)+len(claimed))
	for fp := range claimed {
		taken[fp] = true
	}

	var out []model.Commit
	for _, c := range pool {
		fp, err := fps.of(c.FullHash)
		if err != nil {
			return nil, nil, fmt.Errorf("fingerprinting %s: %w", c.ShortHash, err)
		}
		if excluded[fp] || taken[fp] {
			continue
		}
		taken[fp] = true
		out = append(out, c)
	}
	return out, taken, nil
}

// mergeOrdered merges two ancestry-ordered commit lists into one,
// choosing by author time between the heads and preserving the relative
// order within each list. This keeps the result consistent with each
// underlying history instead of trusting timestamps alone, which are not
// monotonic across rebases. Main-branch commits win ties.
func mergeOrdered(main, review []model.Commit) []model.Commit {
	out := make([]model.Commit, 0, len(main)+len(review))
	i, j := 0, 0
	for i < len(main) && j < len(review) {
		if !review[j].AuthorTime.Before(main[i].AuthorTime) {
			out = append(out, main[i])
			i++
		} else {
			out = append(out, review[j])
			j++
		}
	}
	out = append(out, main[i:]...)
	out = append(out, review[j:]...)
	return out
}

// fingerprints memoizes FingerprintOf lookups for one reconciliation run.
type fingerprints struct {
	g    Graph
	memo map[string]model.Fingerprint
}

func newFingerprints(g Graph) *fingerprints {
	return &fingerprints{g: g, memo: make(map[string]model.Fingerprint)}
}

func (f *fingerprints) of(sha string) (model.Fingerprint, error) {
	if fp, ok := f.memo[sha]; ok {
		return fp, nil
	}
	fp, err := f.g.FingerprintOf(sha)
	if err != nil {
		return "", err
	}
	f.memo[sha] = fp
	return fp, nil
}
