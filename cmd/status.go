package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tr-legal-tech/crbranch/internal/gitx"
	"github.com/tr-legal-tech/crbranch/internal/model"
	"github.com/tr-legal-tech/crbranch/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the active session, if any",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	repo, err := gitx.Open()
	if err != nil {
		return err
	}

	gitDir, err := repo.GitDir()
	if err != nil {
		return err
	}

	sess, err := session.NewStore(gitDir).Read()
	if err != nil {
		return err
	}
	if sess == nil {
		fmt.Println("no active session")
		return nil
	}

	fmt.Printf("ticket:        %s\n", sess.TicketID)
	fmt.Printf("review branch: %s\n", sess.TargetBranch)
	fmt.Printf("main branch:   %s\n", sess.MainBranch)
	fmt.Printf("strategy:      %s\n", sess.Strategy)
	fmt.Printf("phase:         %s\n", sess.Phase)
	fmt.Printf("applied:       %d of %d\n", len(sess.Applied), len(sess.Desired))
	if sess.BlockedOn != "" {
		fmt.Printf("blocked on:    %s\n", model.Short(sess.BlockedOn))
		fmt.Println()
		fmt.Println("resolve the conflict, run 'git cherry-pick --continue', then 'crbranch resume'")
	} else if len(sess.Pending) > 0 {
		fmt.Printf("next pending:  %s\n", model.Short(sess.Pending[0]))
	}
	fmt.Printf("started:       %s\n", sess.CreatedAt)
	return nil
}
