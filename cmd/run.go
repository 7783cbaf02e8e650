package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tr-legal-tech/crbranch/internal/cli"
	"github.com/tr-legal-tech/crbranch/internal/config"
	"github.com/tr-legal-tech/crbranch/internal/executor"
	"github.com/tr-legal-tech/crbranch/internal/gitx"
	"github.com/tr-legal-tech/crbranch/internal/model"
	"github.com/tr-legal-tech/crbranch/internal/reconcile"
	"github.com/tr-legal-tech/crbranch/internal/session"
	"github.com/tr-legal-tech/crbranch/internal/ticket"
)

var (
	runMainBranch string
	runNoPR       bool
)

var runCmd = &cobra.Command{
	Use:   "run <ticket>",
	Short: "Reconcile and update the review branch for a ticket",
	Long: `Collects every commit on the main branch referencing the ticket, compares
them with the existing review branch, and brings the branch up to date:
creating it, appending the missing commits, or rebuilding it when upstream
history was rewritten. Finishes by pushing the branch and creating or
updating its draft pull request.

The ticket reference can be given in any form containing the ticket number:

  crbranch run AB#1234
  crbranch run 1234

If a cherry-pick stops on a merge conflict, resolve it, run
'git cherry-pick --continue', then 'crbranch resume'.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runMainBranch, "main", "", "Main branch override (default: auto-detected from the remote)")
	runCmd.Flags().BoolVar(&runNoPR, "no-pr", false, "Push the branch but skip the pull request")
}

func runRun(cmd *cobra.Command, args []string) error {
	repo, err := gitx.Open()
	if err != nil {
		return err
	}

	cfg, err := config.Read()
	if err != nil {
		return err
	}

	ticketID, err := ticket.Normalize(args[0], cfg.TicketPrefix)
	if err != nil {
		return fmt.Errorf("%w (got %q)", err, args[0])
	}
	target := ticket.BranchName(cfg.BranchPrefix, ticketID)

	gitDir, err := repo.GitDir()
	if err != nil {
		return err
	}
	store := session.NewStore(gitDir)
	if err := store.EnsureInactive(target); err != nil {
		return err
	}

	dirty, err := repo.HasUncommittedChanges()
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("the working tree has uncommitted changes; commit or stash them first")
	}

	mainBranch := runMainBranch
	if mainBranch == "" {
		mainBranch = cfg.MainBranch
	}
	if mainBranch == "" {
		mainBranch, err = repo.DefaultBranch(cfg.Remote)
		if err != nil {
			return err
		}
	}

	cli.LogInfo("ticket %s, review branch %s, main branch %s", ticketID, target, mainBranch)

	spinner := cli.NewSpinner(fmt.Sprintf("fetching %s", cfg.Remote))
	spinner.Start()
	err = repo.Fetch(cfg.Remote)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("fetching %s: %w", cfg.Remote, err)
	}

	remoteMain := cfg.Remote + "/" + mainBranch
	if _, err := repo.ResolveRef(remoteMain); err != nil {
		return fmt.Errorf("main branch %s not found on %s: %w", mainBranch, cfg.Remote, err)
	}

	params := reconcile.Params{
		MainBranch: remoteMain,
		TicketID:   ticketID,
	}
	if repo.RemoteBranchExists(cfg.Remote, target) {
		params.ReviewRef = cfg.Remote + "/" + target
	}

	plan, err := reconcile.Reconcile(repo, params)
	if err != nil {
		return err
	}

	switch plan.Strategy {
	case reconcile.StrategyNone:
		cli.LogInfo("no commits reference %s; nothing to do", ticketID)
		return nil
	case reconcile.StrategyNoOp:
		cli.LogInfo("review branch %s is up to date (%d commit(s))", target, len(plan.Commits))
		return nil
	}

	cli.LogInfo("strategy %s: %d commit(s) desired, %d to apply",
		plan.Strategy, len(plan.Commits), len(plan.Pending))

	sess := session.New(ticketID, target, mainBranch, cfg.Remote)
	sess.Strategy = plan.Strategy.String()
	sess.StartingPoint = plan.StartingPoint
	sess.Desired = model.HashesOf(plan.Commits)
	sess.Pending = model.HashesOf(plan.Pending)
	for _, a := range plan.Preapplied {
		sess.Applied = append(sess.Applied, session.AppliedPair{Origin: a.Origin, New: a.New})
	}
	sess.BranchCreated = plan.Strategy == reconcile.StrategyCreate
	sess.ForcePush = plan.Strategy == reconcile.StrategyRebuild

	if err := store.Write(sess); err != nil {
		return err
	}

	exec := executor.New(repo, store, os.Stderr)
	if err := exec.Start(sess); err != nil {
		return err
	}

	outcome, err := exec.Run(sess)
	if err != nil {
		return err
	}
	if outcome.Blocked {
		return blockedError(outcome.BlockedCommit)
	}

	return finish(cmd.Context(), repo, store, cfg, sess, runNoPR)
}

func blockedError(sha string) error {
	return fmt.Errorf(`cherry-pick of %s stopped on a merge conflict
resolve the conflict, run 'git cherry-pick --continue', then 'crbranch resume'
to discard the run instead, use 'crbranch abort'`, model.Short(sha))
}
