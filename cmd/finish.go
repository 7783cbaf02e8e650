package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/tr-legal-tech/crbranch/internal/cli"
	"github.com/tr-legal-tech/crbranch/internal/config"
	"github.com/tr-legal-tech/crbranch/internal/gitx"
	"github.com/tr-legal-tech/crbranch/internal/model"
	"github.com/tr-legal-tech/crbranch/internal/publish"
	"github.com/tr-legal-tech/crbranch/internal/session"
)

// finish pushes the fully applied review branch and publishes its pull
// request. The session is cleared only once both succeeded: a failed
// publish keeps the session so 'crbranch resume' retries it without
// re-applying anything.
func finish(ctx context.Context, repo *gitx.Repo, store *session.Store, cfg *config.Config, sess *session.Session, noPR bool) error {
	if err := repo.Push(sess.Remote, sess.TargetBranch, sess.ForcePush); err != nil {
		var rejected *gitx.PushRejectedError
		if errors.As(err, &rejected) {
			return fmt.Errorf("%w\nthe remote branch moved since the last fetch; re-run 'crbranch run %s' to reconcile against it", rejected, sess.TicketID)
		}
		return err
	}
	cli.LogInfo("pushed %s to %s", sess.TargetBranch, sess.Remote)

	if !noPR {
		if err := publishPullRequest(ctx, repo, cfg, sess); err != nil {
			return err
		}
	}

	if err := store.Clear(); err != nil {
		return err
	}

	// Leave the operator back where the run started
	if err := repo.Checkout(sess.MainBranch); err != nil {
		cli.LogWarning("could not return to %s: %v", sess.MainBranch, err)
	}
	return nil
}

func publishPullRequest(ctx context.Context, repo *gitx.Repo, cfg *config.Config, sess *session.Session) error {
	token := cfg.Token()
	if token == "" {
		cli.LogWarning("%s is not set; branch pushed, pull request skipped", cfg.TokenEnv)
		return nil
	}

	owner, repoName := cfg.Owner, cfg.Repo
	if owner == "" || repoName == "" {
		url, err := repo.RemoteURL(sess.Remote)
		if err != nil {
			return err
		}
		owner, repoName, err = gitx.ParseOwnerRepo(url)
		if err != nil {
			return err
		}
	}

	commits := make([]model.Commit, 0, len(sess.Desired))
	for _, sha := range sess.Desired {
		c, err := repo.LookupCommit(sha)
		if err != nil {
			return fmt.Errorf("reading commit %s: %w", model.Short(sha), err)
		}
		commits = append(commits, c)
	}

	pub := publish.New(token, owner, repoName)
	result, err := pub.Publish(ctx, publish.Input{
		TicketID:  sess.TicketID,
		Branch:    sess.TargetBranch,
		Base:      sess.MainBranch,
		Commits:   commits,
		NewHashes: sess.NewHashes(),
		Draft:     !cfg.NoDraft,
		Rebuilt:   sess.ForcePush,
	})
	if err != nil {
		// The branch is already pushed; nothing is rolled back.
		return fmt.Errorf("branch %s was pushed, but %w\nre-run 'crbranch resume' to retry the pull request", sess.TargetBranch, err)
	}

	if result.Created {
		cli.LogInfo("created draft pull request #%d: %s", result.Number, result.URL)
	} else {
		cli.LogInfo("updated pull request #%d: %s", result.Number, result.URL)
	}
	return nil
}
