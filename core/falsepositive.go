package core

import (
	"regexp"
	"strings"
)

// falsePositive is one exclusion entry, tried both literally and as a regex
type falsePositive struct {
	literal string
	re      *regexp.Regexp
}

func newFalsePositive(entry string) falsePositive {
	fp := falsePositive{literal: entry}
	// Entries are validated before compilation, so this only fails for
	// callers bypassing CompileRule.
	if re, err := regexp.Compile(entry); err == nil {
		fp.re = re
	}
	return fp
}

func (f falsePositive) matches(s string) bool {
	if f.literal != "" && strings.Contains(s, f.literal) {
		return true
	}
	return f.re != nil && f.re.MatchString(s)
}

// IsFalsePositive reports whether matched text or its context hits any
// of the rule's exclusion entries. Comparison uses the untruncated strings.
func (r *CompiledRule) IsFalsePositive(matchedText, context string) bool {
	for _, fp := range r.falsePositives {
		if fp.matches(matchedText) || fp.matches(context) {
			return true
		}
	}
	return false
}
