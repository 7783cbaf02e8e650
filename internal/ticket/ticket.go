package ticket

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidTicketReference is returned when the user-supplied reference
// contains no digits to identify a work item.
var ErrInvalidTicketReference = errors.New("ticket reference contains no digits")

var (
	digitsRe   = regexp.MustCompile(`\d+`)
	nonAlnumRe = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// Normalize turns a free-form ticket reference ("AB#1234", "#1234", "1234")
// into the canonical ticket identifier: the configured prefix followed by
// the digits found in the input.
func Normalize(raw, prefix string) (string, error) {
	digits := strings.Join(digitsRe.FindAllString(raw, -1), "")
	if digits == "" {
		return "", ErrInvalidTicketReference
	}
	return prefix + digits, nil
}

// Slugify maps a canonical ticket id to a branch-safe slug: every run of
// characters outside [A-Za-z0-9] collapses to a single separator.
// Applying Slugify to its own output returns the input unchanged.
func Slugify(canonicalID string) string {
	slug := nonAlnumRe.ReplaceAllString(canonicalID, "-")
	return strings.Trim(slug, "-")
}

// BranchName returns the review branch name for a canonical ticket id.
// The prefix is used verbatim (it may contain a path separator, e.g. "CR/");
// only the ticket id is slugged.
func BranchName(branchPrefix, canonicalID string) string {
	return branchPrefix + Slugify(canonicalID)
}
