package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tr-legal-tech/crbranch/internal/cli"
	"github.com/tr-legal-tech/crbranch/internal/executor"
	"github.com/tr-legal-tech/crbranch/internal/gitx"
	"github.com/tr-legal-tech/crbranch/internal/session"
)

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Discard the active session",
	Long: `Aborts any in-progress cherry-pick, returns to the main branch, deletes
the review branch if this session created it, and discards the persisted
state. The remote branch and pull request are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runAbort,
}

func init() {
	rootCmd.AddCommand(abortCmd)
}

func runAbort(cmd *cobra.Command, args []string) error {
	repo, err := gitx.Open()
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
		return fmt.Errorf("no active session to abort")
	}

	exec := executor.New(repo, store, os.Stderr)
	if err := exec.Abort(sess); err != nil {
		return err
	}

	cli.LogInfo("aborted session for %s; back on %s", sess.TicketID, sess.MainBranch)
	return nil
}
