package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "crbranch",
	Short: "Maintain long-lived review branches aggregating a ticket's commits",
	Long: `Crbranch keeps a review branch in sync with every commit that references
a ticket. It collects tagged commits from the main branch, reconciles them
with what is already on the review branch, cherry-picks what is missing
(rebuilding the branch when upstream history was rewritten), and creates or
updates a draft pull request for the result.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("crbranch version %s\n", version))
}
