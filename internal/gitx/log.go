package gitx

import (
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/tr-legal-tech/crbranch/internal/model"
)

// logFormat renders one commit per \x1e-terminated record with \x1f field
// separators, so multi-line bodies survive parsing.
const logFormat = "%H%x1f%h%x1f%aI%x1f%an%x1f%ae%x1f%s%x1f%b%x1e"

// CommitsReferencing returns the commits on branch whose message
// references the ticket, oldest first. The git-side grep is a literal
// case-insensitive substring pass; the results are then re-checked at a
// digit boundary so AB#100 never collects AB#1000's commits. Merge
// commits are skipped since they cannot be cherry-picked individually.
func (r *Repo) CommitsReferencing(branch, pattern string) ([]model.Commit, error) {
	out, err := run("log", "--reverse", "--no-merges",
		"--fixed-strings", "--regexp-ignore-case", "--grep", pattern,
		"--format="+logFormat, branch, "--")
	if err != nil {
		return nil, err
	}
	commits, err := parseCommits(out)
	if err != nil {
		return nil, err
	}
	ref, err := ReferencePattern(pattern)
	if err != nil {
		return nil, err
	}
	var matched []model.Commit
	for _, c := range commits {
		if ref.MatchString(c.Message()) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// ReferencePattern compiles the exact-match form of a ticket reference:
// the reference itself, case-insensitive, followed by a non-digit or the
// end of the message.
func ReferencePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)` + regexp.QuoteMeta(pattern) + `([^0-9]|$)`)
}

// CommitsUniqueTo returns the commits reachable from branch but not from
// base, bounded at their merge base, oldest first.
func (r *Repo) CommitsUniqueTo(branch, base string) ([]model.Commit, error) {
	mergeBase, err := r.MergeBase(branch, base)
	if err != nil {
		return nil, err
	}
	out, err := run("log", "--reverse", "--no-merges",
		"--format="+logFormat, mergeBase+".."+branch, "--")
	if err != nil {
		return nil, err
	}
	return parseCommits(out)
}

// LookupCommit reads a single commit by hash.
func (r *Repo) LookupCommit(sha string) (model.Commit, error) {
	out, err := run("log", "-1", "--format="+logFormat, sha, "--")
	if err != nil {
		return model.Commit{}, err
	}
	commits, err := parseCommits(out)
	if err != nil {
		return model.Commit{}, err
	}
	if len(commits) == 0 {
		return model.Commit{}, ErrNoParent
	}
	return commits[0], nil
}

// FingerprintOf returns the patch identity of a commit: the same logical
// change keeps the same fingerprint across amend, rebase, and
// cherry-pick. A commit with an empty diff falls back to its own hash so
// distinct empty commits stay distinct.
func (r *Repo) FingerprintOf(sha string) (model.Fingerprint, error) {
	show, err := run("show", sha)
	if err != nil {
		return "", err
	}

	cmd := exec.Command("git", "patch-id", "--stable")
	cmd.Stdin = strings.NewReader(show)
	out, err := cmd.Output()
	if err != nil {
		return "", gitError([]string{"patch-id", "--stable"}, err)
	}

	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return model.Fingerprint(sha), nil
	}
	return model.Fingerprint(fields[0]), nil
}

func parseCommits(out string) ([]model.Commit, error) {
	var commits []model.Commit
	for _, record := range strings.Split(out, "\x1e") {
		record = strings.TrimLeft(record, "\n\r ")
		if record == "" {
			continue
		}
		fields := strings.SplitN(record, "\x1f", 7)
		if len(fields) < 7 {
			continue
		}

		authorTime, err := time.Parse(time.RFC3339, fields[2])
		if err != nil {
			return nil, err
		}

		commits = append(commits, model.Commit{
			FullHash:    fields[0],
			ShortHash:   fields[1],
			AuthorTime:  authorTime.UTC(),
			AuthorName:  fields[3],
			AuthorEmail: fields[4],
			Subject:     fields[5],
			Body:        strings.TrimSpace(fields[6]),
		})
	}
	return commits, nil
}
