package hotspotdb

import (
	"regexp"
	"strings"

	"github.com/banshee-data/elitemining/internal/materials"
)

var spaceRun = regexp.MustCompile(`\s+`)

// collapseWhitespace trims and squeezes internal whitespace to single spaces.
func collapseWhitespace(s string) string {
	return spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// NormalizeBodyName strips the system-name prefix from a journal body name and
// collapses whitespace. Ring letter case is never altered: "2 a A Ring" and
// "2 A Ring" are different physical rings.
func NormalizeBodyName(body, system string) string {
	b := collapseWhitespace(body)
	s := collapseWhitespace(system)
	if s != "" && len(b) > len(s) && strings.EqualFold(b[:len(s)], s) && b[len(s)] == ' ' {
		b = b[len(s)+1:]
	} else if strings.EqualFold(b, s) {
		b = ""
	}
	return collapseWhitespace(b)
}

// bodyDesignator matches a body name that already starts where it should:
// either a body number ("2 A Ring", "12 b B Ring") or a star designator
// followed by a body number ("BC 3 A Ring").
var bodyDesignator = regexp.MustCompile(`^(?:[A-Z]{1,3} )?\d`)

// foreignSplit captures a leading name chunk ahead of a plausible body
// designator. Greedy so the longest viable prefix wins; sector names contain
// digits ("Col 285 Sector CC-K a38-2") and must stay whole.
var foreignSplit = regexp.MustCompile(`^(.+) ((?:[A-Z]{1,3} )?\d.*)$`)

// SplitForeignPrefix detects a body name that still carries another system's
// name (rings scanned in multi-star systems, or rows from older buggy
// ingestions) and returns the true (system, body) split. The leading chunk is
// not treated as a system name when it is a bare star designator from the
// whitelist ("AB 2 A Ring" stays a body of the current system).
func SplitForeignPrefix(body string, tbl *materials.Table) (system, rest string, ok bool) {
	b := collapseWhitespace(body)
	if bodyDesignator.MatchString(b) {
		return "", b, false
	}
	m := foreignSplit.FindStringSubmatch(b)
	if m == nil {
		return "", b, false
	}
	prefix, remainder := m[1], m[2]
	if tbl != nil && tbl.IsStarSuffix(prefix) {
		return "", b, false
	}
	if !strings.Contains(remainder, "Ring") {
		return "", b, false
	}
	return prefix, remainder, true
}

// SplitStarSuffix reports whether a system name ends in a 1-3 letter star
// designator from the whitelist, returning the base name and suffix.
func SplitStarSuffix(system string, tbl *materials.Table) (base, suffix string, ok bool) {
	s := collapseWhitespace(system)
	i := strings.LastIndex(s, " ")
	if i <= 0 {
		return "", "", false
	}
	base, suffix = s[:i], s[i+1:]
	if tbl == nil || !tbl.IsStarSuffix(suffix) {
		return "", "", false
	}
	return base, suffix, true
}
