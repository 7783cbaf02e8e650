package gitx

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoMainBranch is returned when the remote's default branch cannot be
// detected and no override was configured.
var ErrNoMainBranch = errors.New("could not detect the default branch; set main_branch in .crbranch/config.yml or pass --main")

var headBranchRe = regexp.MustCompile(`HEAD branch:\s*(\S+)`)

// DefaultBranch determines the default branch (main, master, ...) from
// the remote's advertised HEAD.
func (r *Repo) DefaultBranch(remote string) (string, error) {
	out, err := run("remote", "show", remote)
	if err != nil {
		return "", fmt.Errorf("%w (git remote show %s failed)", ErrNoMainBranch, remote)
	}
	branch := parseHeadBranch(out)
	if branch == "" {
		return "", ErrNoMainBranch
	}
	return branch, nil
}

// parseHeadBranch extracts the "HEAD branch: <name>" line from
// `git remote show` output. Returns "" when the remote advertises no
// head (e.g. an empty repository, where git prints "(unknown)").
func parseHeadBranch(out string) string {
	m := headBranchRe.FindStringSubmatch(out)
	if m == nil || m[1] == "(unknown)" {
		return ""
	}
	return m[1]
}

// RemoteURL returns the fetch URL of a remote.
func (r *Repo) RemoteURL(remote string) (string, error) {
	return run("remote", "get-url", remote)
}

// ParseOwnerRepo extracts the hosting owner and repository name from a
// remote URL. Supports the ssh (git@host:owner/repo.git) and https
// (https://host/owner/repo.git) forms.
func ParseOwnerRepo(url string) (owner, repo string, err error) {
	path := url
	switch {
	case strings.Contains(url, "://"):
		parts := strings.SplitN(url, "://", 2)
		path = parts[1]
		if i := strings.Index(path, "/"); i >= 0 {
			path = path[i+1:]
		} else {
			path = ""
		}
	case strings.Contains(url, ":"):
		path = url[strings.Index(url, ":")+1:]
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot derive owner/repo from remote URL %q", url)
	}
	return parts[0], parts[1], nil
}
