// Package publish creates or updates the draft pull request for a review
// branch. It is a boundary wrapper around the hosting API; failures here
// never unwind commits that were already applied and pushed.
package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v69/github"

	"github.com/tr-legal-tech/crbranch/internal/model"
)

// Error wraps any hosting-API failure so callers can tell it apart from
// apply-time errors: the branch work is done, only publishing failed.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publishing pull request: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Publisher talks to one hosting repository.
type Publisher struct {
	gh    *github.Client
	owner string
	repo  string
}

// New returns a publisher authenticated with token against owner/repo.
func New(token, owner, repo string) *Publisher {
	return &Publisher{
		gh:    github.NewClient(nil).WithAuthToken(token),
		owner: owner,
		repo:  repo,
	}
}

// Input carries everything the pull request must reflect.
type Input struct {
	TicketID   string
	Branch     string
	Base       string
	Commits    []model.Commit    // reconciled set, in branch order
	NewHashes  map[string]string // origin full hash -> hash on the review branch
	Draft      bool
	Rebuilt    bool // history was force-pushed this run
}

// Result identifies the created or updated pull request.
type Result struct {
	Number  int
	URL     string
	Created bool
}

// Publish creates the draft pull request for the branch, or updates the
// body of the existing one, and syncs assignees from commit authorship.
func (p *Publisher) Publish(ctx context.Context, in Input) (*Result, error) {
	siblings, err := p.siblingPullRequests(ctx, in.TicketID)
	if err != nil {
		// Cross-links are decoration; a failed search must not abort
		// the publish.
		siblings = nil
	}

	body := buildBody(in, siblings)
	title := fmt.Sprintf("%s review", in.TicketID)

	existing, err := p.findOpenPullRequest(ctx, in.Branch)
	if err != nil {
		return nil, &Error{Err: err}
	}

	var pr *github.PullRequest
	created := false
	if existing == nil {
		pr, _, err = p.gh.PullRequests.Create(ctx, p.owner, p.repo, &github.NewPullRequest{
			Title: github.Ptr(title),
			Head:  github.Ptr(in.Branch),
			Base:  github.Ptr(in.Base),
			Body:  github.Ptr(body),
			Draft: github.Ptr(in.Draft),
		})
		if err != nil {
			return nil, &Error{Err: err}
		}
		created = true
	} else {
		pr, _, err = p.gh.PullRequests.Edit(ctx, p.owner, p.repo, existing.GetNumber(), &github.PullRequest{
			Body: github.Ptr(body),
		})
		if err != nil {
			return nil, &Error{Err: err}
		}
	}

	if assignees := p.authorsOf(ctx, in.Commits); len(assignees) > 0 {
		// Best effort: unknown logins (e.g. authors without hosting
		// accounts) are rejected by the API and skipped.
		p.gh.Issues.AddAssignees(ctx, p.owner, p.repo, pr.GetNumber(), assignees)
	}

	return &Result{Number: pr.GetNumber(), URL: pr.GetHTMLURL(), Created: created}, nil
}

// findOpenPullRequest returns the open PR whose head is branch, or nil.
func (p *Publisher) findOpenPullRequest(ctx context.Context, branch string) (*github.PullRequest, error) {
	prs, _, err := p.gh.PullRequests.List(ctx, p.owner, p.repo, &github.PullRequestListOptions{
		Head:  p.owner + ":" + branch,
		State: "open",
	})
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return prs[0], nil
}

// siblingPullRequests finds open PRs in other repositories of the same
// owner that reference the ticket, for cross-linking. Paginates through
// all results.
func (p *Publisher) siblingPullRequests(ctx context.Context, ticketID string) ([]string, error) {
	query := fmt.Sprintf("user:%s is:pr is:open %q", p.owner, ticketID)

	var urls []string
	page := 1
	for {
		result, resp, err := p.gh.Search.Issues(ctx, query, &github.SearchOptions{
			ListOptions: github.ListOptions{Page: page, PerPage: 100},
		})
		if err != nil {
			return nil, err
		}

		for _, issue := range result.Issues {
			if strings.HasSuffix(issue.GetRepositoryURL(), "/"+p.repo) {
				continue // this repository's own PR
			}
			urls = append(urls, issue.GetHTMLURL())
		}

		if resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
	}
	return urls, nil
}

// authorsOf maps the origin commits to distinct hosting logins,
// preserving first-seen order. Commits whose author has no resolvable
// account are skipped.
func (p *Publisher) authorsOf(ctx context.Context, commits []model.Commit) []string {
	seen := make(map[string]bool)
	var logins []string
	for _, c := range commits {
		rc, _, err := p.gh.Repositories.GetCommit(ctx, p.owner, p.repo, c.FullHash, nil)
		if err != nil {
			continue
		}
		login := rc.GetAuthor().GetLogin()
		if login == "" || seen[login] {
			continue
		}
		seen[login] = true
		logins = append(logins, login)
	}
	return logins
}

// buildBody renders the PR body: the commit table keyed by original
// commit but linking to the commit actually on the branch, plus optional
// cross-links to sibling pull requests.
func buildBody(in Input, siblings []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review branch for %s, aggregating every commit referencing the ticket.\n\n", in.TicketID)
	if in.Rebuilt {
		b.WriteString("History was rebuilt this run (upstream commits were amended, rebased, or reverted); the branch was force-pushed.\n\n")
	}

	b.WriteString("| Original | On branch | Subject | Author |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, c := range in.Commits {
		onBranch := in.NewHashes[c.FullHash]
		if onBranch == "" {
			onBranch = c.FullHash
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n",
			c.ShortHash, model.Short(onBranch), escapeCell(c.Subject), escapeCell(c.AuthorName))
	}

	if len(siblings) > 0 {
		b.WriteString("\nRelated pull requests:\n")
		for _, url := range siblings {
			fmt.Fprintf(&b, "- %s\n", url)
		}
	}

	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
