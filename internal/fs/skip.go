package fs

import "strings"

// DefaultSkipDirs are directory name fragments that are never worth
// cataloging: recycle bins, system volume metadata, trash and cache folders.
var DefaultSkipDirs = []string{
	"$RECYCLE.BIN",
	"System Volume Information",
	"$Windows.~BT",
	"Windows.old",
	".Trash",
	".cache",
}

// SkipMatcher checks directory names against a set of noise-directory
// fragments. Matching is case-insensitive substring matching: "found.000" in
// a skip list matches "FOUND.000" as a directory name.
type SkipMatcher struct {
	fragments []string
}

// NewSkipMatcher builds a matcher from raw fragments. Blank entries and lines
// starting with '#' are dropped. Pass nil to use DefaultSkipDirs.
func NewSkipMatcher(raw []string) *SkipMatcher {
	if raw == nil {
		raw = DefaultSkipDirs
	}
	var fragments []string
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" || strings.HasPrefix(r, "#") {
			continue
		}
		fragments = append(fragments, strings.ToLower(r))
	}
	return &SkipMatcher{fragments: fragments}
}

// Match reports whether a directory with this name should be skipped.
func (m *SkipMatcher) Match(dirName string) bool {
	if len(m.fragments) == 0 {
		return false
	}
	lower := strings.ToLower(dirName)
	for _, f := range m.fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
