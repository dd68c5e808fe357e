package core

import (
	"sort"
	"strings"

	"github.com/SamuelRCrider/leakguard/utils"
)

// Redact replaces each matched span of text with "[REDACTED:<label>]".
// Overlapping spans are merged into the one that starts first.
func Redact(text string, matches []utils.RawMatch, label func(utils.RawMatch) string) string {
	sorted := append([]utils.RawMatch(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartIndex < sorted[j].StartIndex
	})

	var builder strings.Builder
	lastIndex := 0

	for _, match := range sorted {
		if match.EndIndex > len(text) {
			continue
		}
		if match.StartIndex < lastIndex {
			// Absorbed by the marker already written
			if match.EndIndex > lastIndex {
				lastIndex = match.EndIndex
			}
			continue
		}
		builder.WriteString(text[lastIndex:match.StartIndex])
		builder.WriteString("[REDACTED:" + label(match) + "]")
		lastIndex = match.EndIndex
	}

	if lastIndex < len(text) {
		builder.WriteString(text[lastIndex:])
	}

	return builder.String()
}

// Redact masks every match of the scanner's rules that a finding would be
// built for, labelled with the rule category. It returns the redacted text
// and the number of matches.
func (s *Scanner) Redact(content *Content) (string, int, error) {
	if err := s.CheckSize(content); err != nil {
		return "", 0, err
	}

	categories := make(map[string]string, len(s.rules))
	var kept []utils.RawMatch
	for _, rule := range s.rules {
		categories[rule.ID] = rule.Category
		for m := range Matches(rule, content) {
			if !s.builder.Suppressed(m, rule, content) {
				kept = append(kept, m)
			}
		}
	}

	redacted := Redact(content.Data, kept, func(m utils.RawMatch) string {
		if c := categories[m.RuleID]; c != "" {
			return c
		}
		return m.RuleID
	})
	return redacted, len(kept), nil
}
