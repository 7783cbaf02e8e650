package gitx

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tr-legal-tech/crbranch/internal/model"
)

// ConflictError reports a cherry-pick stopped by a merge conflict. The
// conflict is left in place for manual resolution.
type ConflictError struct {
	Commit string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cherry-pick of %s stopped on a merge conflict", model.Short(e.Commit))
}

// PushRejectedError reports a push refused by the remote, typically a
// non-fast-forward update of the review branch.
type PushRejectedError struct {
	Branch string
	Detail string
}

func (e *PushRejectedError) Error() string {
	return fmt.Sprintf("push of %s rejected by the remote: %s", e.Branch, e.Detail)
}

// CherryPick applies commit sha onto the current branch as a new commit,
// recording the origin hash as a "(cherry picked from commit ...)" line.
// Returns a *ConflictError when the pick stops on a merge conflict and
// the pick is left in progress.
func (r *Repo) CherryPick(sha string) error {
	cmd := exec.Command("git", "cherry-pick", "-x", sha)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	inProgress, stateErr := r.CherryPickInProgress()
	if stateErr == nil && inProgress {
		return &ConflictError{Commit: sha}
	}
	return fmt.Errorf("git cherry-pick -x %s: %s", sha, strings.TrimSpace(string(out)))
}

// CherryPickInProgress reports whether a cherry-pick is waiting for
// resolution (CHERRY_PICK_HEAD exists in the git dir).
func (r *Repo) CherryPickInProgress() (bool, error) {
	gitDir, err := r.GitDir()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(gitDir, "CHERRY_PICK_HEAD"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HasUnmergedPaths reports whether any path is still in conflict.
func (r *Repo) HasUnmergedPaths() (bool, error) {
	out, err := run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

// CherryPickContinue finalizes an in-progress cherry-pick whose conflicts
// have all been staged, keeping the prepared commit message.
func (r *Repo) CherryPickContinue() error {
	cmd := exec.Command("git", "-c", "core.editor=true", "cherry-pick", "--continue")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git cherry-pick --continue: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// CherryPickAbort abandons an in-progress cherry-pick and restores the
// pre-pick state of the branch.
func (r *Repo) CherryPickAbort() error {
	cmd := exec.Command("git", "cherry-pick", "--abort")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git cherry-pick --abort: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// Push updates the remote branch. With force=false the push sets the
// upstream and must fast-forward; with force=true the remote branch is
// rewritten, guarded by --force-with-lease against unseen remote commits.
// --no-verify keeps repository pre-push hooks from firing on review
// branch updates.
func (r *Repo) Push(remote, branch string, force bool) error {
	args := []string{"push", "--no-verify"}
	if force {
		args = append(args, "--force-with-lease")
	} else {
		args = append(args, "-u")
	}
	args = append(args, remote, branch)

	cmd := exec.Command("git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if strings.Contains(detail, "[rejected]") || strings.Contains(detail, "non-fast-forward") ||
			strings.Contains(detail, "stale info") {
			return &PushRejectedError{Branch: branch, Detail: detail}
		}
		return fmt.Errorf("git push: %s", detail)
	}
	return nil
}
