package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tr-legal-tech/crbranch/internal/config"
	"github.com/tr-legal-tech/crbranch/internal/executor"
	"github.com/tr-legal-tech/crbranch/internal/gitx"
	"github.com/tr-legal-tech/crbranch/internal/session"
)

var resumeNoPR bool

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a run suspended on a merge conflict",
	Long: `Re-attaches to the persisted session after the operator resolved the
conflict and ran 'git cherry-pick --continue'. The just-finalized commit is
recorded, the remaining commits are applied, and the branch is pushed and
published as usual.

Also retries pushing and publishing when a previous run applied everything
but failed at that stage.`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().BoolVar(&resumeNoPR, "no-pr", false, "Push the branch but skip the pull request")
}

func runResume(cmd *cobra.Command, args []string) error {
	repo, err := gitx.Open()
	if err != nil {
		return err
	}

	cfg, err := config.Read()
	if err != nil {
		return err
	}

	gitDir, err := repo.GitDir()
	if err != nil {
		return err
	}
	store := session.NewStore(gitDir)

	sess, err := store.Read()
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("no active session to resume")
	}

	exec := executor.New(repo, store, os.Stderr)

	if sess.Phase == session.PhaseBlocked || len(sess.Pending) > 0 {
		outcome, err := exec.Resume(sess)
		if err != nil {
			return err
		}
		if outcome.Blocked {
			return blockedError(outcome.BlockedCommit)
		}
	}

	return finish(cmd.Context(), repo, store, cfg, sess, resumeNoPR)
}
