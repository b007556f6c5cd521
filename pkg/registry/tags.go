package registry

import (
	"strconv"
	"strings"
)

// tagSeparators are tried in order; the first one present in the input wins.
var tagSeparators = []string{"|", ";", ","}

// ToTags converts a pipe, semicolon or comma separated string into a list of tags.
// Only the first separator found (in that priority order) is used, so "a;b,c"
// yields ["a", "b,c"]. Empty tokens are dropped.
func ToTags(s string) []string {
	tags := []string{}
	if strings.TrimSpace(s) == "" {
		return tags
	}
	for _, sep := range tagSeparators {
		if strings.Contains(s, sep) {
			for _, part := range strings.Split(s, sep) {
				if part = strings.TrimSpace(part); part != "" {
					tags = append(tags, part)
				}
			}
			return tags
		}
	}
	return append(tags, strings.TrimSpace(s))
}

// ToInt converts a registry cell to an integer. Empty or malformed cells report false.
func ToInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IntPtr is ToInt for optional payload fields.
func IntPtr(s string) *int {
	n, ok := ToInt(s)
	if !ok {
		return nil
	}
	return &n
}
