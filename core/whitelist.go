package core

import (
	"fmt"
	"regexp"
)

// WhitelistType selects what a whitelist entry is compared against
type WhitelistType string

const (
	// WhitelistTarget exempts every match in one target (URI or file path)
	WhitelistTarget WhitelistType = "target"

	// WhitelistPattern exempts any matched text hit by a regular expression
	WhitelistPattern WhitelistType = "pattern"
)

// WhitelistEntry is one exemption, shared by every rule
type WhitelistEntry struct {
	Type  WhitelistType `json:"type" yaml:"type" mapstructure:"type"`
	Value string        `json:"value" yaml:"value" mapstructure:"value"`
}

// Whitelist is checked before any rule's false-positive patterns. A nil
// *Whitelist allows nothing.
type Whitelist struct {
	targets  map[string]bool
	patterns []*regexp.Regexp
}

// NewWhitelist compiles entries. Pattern entries must be valid RE2.
func NewWhitelist(entries []WhitelistEntry) (*Whitelist, error) {
	w := &Whitelist{targets: make(map[string]bool)}
	for i, e := range entries {
		if e.Value == "" {
			return nil, NewError(KindMissingRequiredField, "compile whitelist", fmt.Sprintf("entry %d", i),
				fmt.Errorf("value is empty"))
		}
		switch e.Type {
		case WhitelistTarget:
			w.targets[e.Value] = true
		case WhitelistPattern:
			re, err := regexp.Compile(e.Value)
			if err != nil {
				return nil, NewError(KindInvalidPattern, "compile whitelist", e.Value, err)
			}
			w.patterns = append(w.patterns, re)
		default:
			return nil, NewError(KindInvalidField, "compile whitelist", fmt.Sprintf("entry %d", i),
				fmt.Errorf("unknown whitelist type %q", e.Type))
		}
	}
	return w, nil
}

// Len reports the number of entries
func (w *Whitelist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.targets) + len(w.patterns)
}

// Allows reports whether a match of matchedText in content is exempt
func (w *Whitelist) Allows(content *Content, matchedText string) bool {
	if w == nil {
		return false
	}
	if content != nil && (w.targets[content.Target] || (content.FilePath != "" && w.targets[content.FilePath])) {
		return true
	}
	for _, re := range w.patterns {
		if re.MatchString(matchedText) {
			return true
		}
	}
	return false
}
