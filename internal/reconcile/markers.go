package reconcile

import (
	"regexp"
	"strings"

	"github.com/tr-legal-tech/crbranch/internal/model"
)

// revertSubjectPrefix is the subject prefix git writes for `git revert`.
const revertSubjectPrefix = "Revert "

var (
	revertBodyRe = regexp.MustCompile(`This reverts commit ([0-9a-f]{7,40})`)
	trailerRe    = regexp.MustCompile(`\(cherry picked from commit ([0-9a-f]{7,40})\)`)
)

// revertTarget returns the hash of the commit a revert commit undoes, or
// "" when the commit is not a structured revert. Both the subject prefix
// and the body back-reference must be present; a commit that merely
// mentions "Revert" in prose is not a revert.
func revertTarget(c model.Commit) string {
	if !strings.HasPrefix(c.Subject, revertSubjectPrefix) {
		return ""
	}
	m := revertBodyRe.FindStringSubmatch(c.Body)
	if m == nil {
		return ""
	}
	return m[1]
}

// pickOrigin returns the origin hash recorded by `git cherry-pick -x`, or
// "" when the commit carries no such trailer.
func pickOrigin(c model.Commit) string {
	m := trailerRe.FindStringSubmatch(c.Body)
	if m == nil {
		return ""
	}
	return m[1]
}
