package rules

import (
	"strings"
)

// minRuleLength is the shortest non-comment line accepted as a rule
const minRuleLength = 2

// IsComment reports whether line is an appliance rule comment
func IsComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "#")
}

// IsException reports whether rule is an allowlist rule
func IsException(rule string) bool {
	return strings.HasPrefix(strings.TrimSpace(rule), "@@")
}

// Normalize cleans a raw rule list for storage.
// Rules are trimmed and lines shorter than two characters dropped. Comment
// lines are kept verbatim and never deduplicated. Other rules are
// deduplicated by exact match, first occurrence wins, order preserved.
func Normalize(lines []string) []string {
	out := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))

	for _, line := range lines {
		if IsComment(line) {
			out = append(out, line)
			continue
		}

		rule := strings.TrimSpace(line)
		if len(rule) < minRuleLength {
			continue
		}
		if _, dup := seen[rule]; dup {
			continue
		}
		seen[rule] = struct{}{}
		out = append(out, rule)
	}

	return out
}

// Add appends rule to list unless an identical rule is already present.
// It reports whether the list changed.
func Add(list []string, rule string) ([]string, bool) {
	rule = strings.TrimSpace(rule)
	if len(rule) < minRuleLength {
		return list, false
	}
	for _, existing := range list {
		if strings.TrimSpace(existing) == rule {
			return list, false
		}
	}

	out := make([]string, len(list), len(list)+1)
	copy(out, list)
	return append(out, rule), true
}

// Remove drops every line equal to rule after trimming.
// It reports whether the list changed.
func Remove(list []string, rule string) ([]string, bool) {
	rule = strings.TrimSpace(rule)
	out := make([]string, 0, len(list))
	removed := false
	for _, existing := range list {
		if strings.TrimSpace(existing) == rule {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	if !removed {
		return list, false
	}
	return out, true
}

// Split breaks a newline separated rule blob into lines
func Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}
