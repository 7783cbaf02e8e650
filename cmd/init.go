package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tr-legal-tech/crbranch/internal/cli"
	"github.com/tr-legal-tech/crbranch/internal/config"
	"github.com/tr-legal-tech/crbranch/internal/gitx"
)

var (
	initTicketPrefix string
	initBranchPrefix string
	initRemote       string
	initMainBranch   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file to the repository",
	Long: `Creates .crbranch/config.yml in the repository root with the current
defaults, so the team can edit and commit it. Existing configuration is
never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initTicketPrefix, "ticket-prefix", "", "Ticket reference prefix (default AB#)")
	initCmd.Flags().StringVar(&initBranchPrefix, "branch-prefix", "", "Review branch name prefix (default CR/)")
	initCmd.Flags().StringVar(&initRemote, "remote", "", "Remote to reconcile against (default origin)")
	initCmd.Flags().StringVar(&initMainBranch, "main", "", "Main branch (default: auto-detected from the remote)")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := gitx.Open(); err != nil {
		return err
	}

	path, err := config.Path()
	if err != nil {
		return err
	}
	if config.Exists() {
		return fmt.Errorf("%s already exists; edit it instead", path)
	}

	cfg := &config.Config{
		TicketPrefix: initTicketPrefix,
		BranchPrefix: initBranchPrefix,
		Remote:       initRemote,
		MainBranch:   initMainBranch,
	}
	if err := config.Write(cfg); err != nil {
		return err
	}

	cli.LogInfo("wrote %s", path)
	return nil
}
