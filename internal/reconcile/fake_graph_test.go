package reconcile

import (
	"fmt"
	"time"

	"github.com/tr-legal-tech/crbranch/internal/gitx"
	"github.com/tr-legal-tech/crbranch/internal/model"
)

// fakeGraph is an in-memory Graph. Branches hold commits in ancestry
// order; fingerprints and parents are assigned explicitly so tests can
// simulate amends, rebases, and cherry-picks.
type fakeGraph struct {
	branches map[string][]model.Commit
	unique   map[string][]model.Commit // review ref -> commits past the merge base
	fps      map[string]model.Fingerprint
	parents  map[string]string
	bases    map[string]string // "a..b" -> merge base sha
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		branches: make(map[string][]model.Commit),
		unique:   make(map[string][]model.Commit),
		fps:      make(map[string]model.Fingerprint),
		parents:  make(map[string]string),
		bases:    make(map[string]string),
	}
}

func (g *fakeGraph) CommitsReferencing(branch, pattern string) ([]model.Commit, error) {
	ref, err := gitx.ReferencePattern(pattern)
	if err != nil {
		return nil, err
	}
	var out []model.Commit
	for _, c := range g.branches[branch] {
		if ref.MatchString(c.Message()) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *fakeGraph) CommitsUniqueTo(branch, base string) ([]model.Commit, error) {
	return g.unique[branch], nil
}

func (g *fakeGraph) MergeBase(a, b string) (string, error) {
	if base, ok := g.bases[a+".."+b]; ok {
		return base, nil
	}
	return "", fmt.Errorf("no merge base recorded for %s..%s", a, b)
}

func (g *fakeGraph) FingerprintOf(sha string) (model.Fingerprint, error) {
	if fp, ok := g.fps[sha]; ok {
		return fp, nil
	}
	return "", fmt.Errorf("unknown object %s", sha)
}

func (g *fakeGraph) ParentOf(sha string) (string, error) {
	if parent, ok := g.parents[sha]; ok {
		return parent, nil
	}
	return "", fmt.Errorf("%s has no parent", sha)
}

// addCommit registers a commit on a branch with its fingerprint and
// parent, and returns it. The hash doubles as the short hash for
// readability in failure output.
func (g *fakeGraph) addCommit(branch, hash, fp, parent, subject, body string, at time.Time) model.Commit {
	c := model.Commit{
		FullHash:   hash,
		ShortHash:  hash,
		AuthorTime: at,
		AuthorName: "Test Author",
		Subject:    subject,
		Body:       body,
	}
	g.branches[branch] = append(g.branches[branch], c)
	g.fps[hash] = model.Fingerprint(fp)
	if parent != "" {
		g.parents[hash] = parent
	}
	return c
}

// addUnique registers a commit as unique to a review ref (past the merge
// base with main).
func (g *fakeGraph) addUnique(ref, hash, fp, subject, body string, at time.Time) model.Commit {
	c := model.Commit{
		FullHash:   hash,
		ShortHash:  hash,
		AuthorTime: at,
		AuthorName: "Test Author",
		Subject:    subject,
		Body:       body,
	}
	g.unique[ref] = append(g.unique[ref], c)
	g.fps[hash] = model.Fingerprint(fp)
	return c
}

func hashes(commits []model.Commit) []string {
	return model.HashesOf(commits)
}

func pickedBody(origin string) string {
	return fmt.Sprintf("(cherry picked from commit %s)", origin)
}

func revertBody(target string) string {
	return fmt.Sprintf("This reverts commit %s.", target)
}
