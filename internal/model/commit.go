package model

import (
	"strings"
	"time"
)

// Commit is an immutable snapshot of a single commit as read from the
// commit graph. A commit produced by cherry-picking is a distinct value
// with its own hash; the link back to its origin lives in the session's
// applied mapping, not here.
type Commit struct {
	FullHash    string
	ShortHash   string
	AuthorTime  time.Time
	AuthorName  string
	AuthorEmail string
	Subject     string
	Body        string
}

// Message returns the full commit message (subject plus body).
func (c Commit) Message() string {
	if c.Body == "" {
		return c.Subject
	}
	return c.Subject + "\n\n" + c.Body
}

// Fingerprint is the content-derived identity of a change, stable across
// amend, rebase, and cherry-pick. It is an opaque value; compare it for
// equality, never parse it.
type Fingerprint string

// HashesOf returns the full hashes of commits, preserving order.
func HashesOf(commits []Commit) []string {
	hashes := make([]string, 0, len(commits))
	for _, c := range commits {
		hashes = append(hashes, c.FullHash)
	}
	return hashes
}

// Short returns an abbreviated hash for display when the short form is
// not already known.
func Short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// SameHash reports whether two hashes identify the same commit, allowing
// one to be an abbreviation of the other.
func SameHash(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}
