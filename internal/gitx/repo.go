package gitx

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotGitRepo is returned when an operation requires a git repository
var ErrNotGitRepo = errors.New("not inside a git repository")

// ErrNoParent is returned when a root commit's parent is requested.
var ErrNoParent = errors.New("commit has no parent")

// Repo is a handle to the repository containing the current working
// directory. It carries no state; every method shells out to git, which is
// the single source of truth for history and worktree status.
type Repo struct{}

// Open verifies the current directory is inside a git work tree and
// returns a repository handle.
func Open() (*Repo, error) {
	out, err := run("rev-parse", "--is-inside-work-tree")
	if err != nil || out != "true" {
		return nil, ErrNotGitRepo
	}
	return &Repo{}, nil
}

// run executes a git command and returns the trimmed output.
func run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	output, err := cmd.Output()
	if err != nil {
		return "", gitError(args, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// gitError folds captured stderr into the returned error so failures name
// the command that produced them.
func gitError(args []string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("git %s: %s", strings.Join(args, " "),
			strings.TrimSpace(string(exitErr.Stderr)))
	}
	return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
}

// Root returns the top-level directory of the repository.
func (r *Repo) Root() (string, error) {
	return run("rev-parse", "--show-toplevel")
}

// GitDir returns the path to the repository's git directory, handling
// worktrees where .git is a pointer file instead of a directory.
func (r *Repo) GitDir() (string, error) {
	root, err := r.Root()
	if err != nil {
		return "", err
	}

	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil {
		return "", err
	}

	// If .git is a file, this is a worktree - read the actual git dir path
	if !info.IsDir() {
		content, err := os.ReadFile(gitDir)
		if err != nil {
			return "", err
		}
		// Format: "gitdir: /path/to/actual/.git/worktrees/name"
		parts := strings.SplitN(string(content), ": ", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[1]), nil
		}
	}

	return gitDir, nil
}

// CurrentBranch returns the name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	return run("rev-parse", "--abbrev-ref", "HEAD")
}

// Head returns the SHA of HEAD.
func (r *Repo) Head() (string, error) {
	return run("rev-parse", "HEAD")
}

// ResolveRef resolves a reference (branch, tag, SHA, relative) to a full
// commit SHA.
func (r *Repo) ResolveRef(ref string) (string, error) {
	return run("rev-parse", "--verify", ref+"^{commit}")
}

// HasUncommittedChanges returns true if the working tree or index differ
// from HEAD.
func (r *Repo) HasUncommittedChanges() (bool, error) {
	output, err := run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(output) > 0, nil
}

// Checkout checks out a commit or branch.
func (r *Repo) Checkout(ref string) error {
	_, err := run("checkout", ref)
	return err
}

// CreateBranchAt creates branch at start, resetting it if it already
// exists, and checks it out.
func (r *Repo) CreateBranchAt(branch, start string) error {
	_, err := run("checkout", "-B", branch, start)
	return err
}

// DeleteBranch force-deletes a local branch. The branch must not be
// checked out.
func (r *Repo) DeleteBranch(branch string) error {
	_, err := run("branch", "-D", branch)
	return err
}

// MergeBase returns the nearest common ancestor of two refs.
func (r *Repo) MergeBase(a, b string) (string, error) {
	return run("merge-base", a, b)
}

// ParentOf returns the first parent of a commit, or ErrNoParent for a
// root commit.
func (r *Repo) ParentOf(sha string) (string, error) {
	out, err := run("rev-parse", "--verify", "--quiet", sha+"^")
	if err != nil {
		return "", ErrNoParent
	}
	return out, nil
}

// Fetch updates remote-tracking refs from the remote.
func (r *Repo) Fetch(remote string) error {
	cmd := exec.Command("git", "fetch", "--prune", remote)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// RemoteBranchExists reports whether the remote-tracking ref for branch
// exists after a fetch.
func (r *Repo) RemoteBranchExists(remote, branch string) bool {
	_, err := run("rev-parse", "--verify", "--quiet",
		"refs/remotes/"+remote+"/"+branch)
	return err == nil
}
