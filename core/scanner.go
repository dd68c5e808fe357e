package core

import (
	"fmt"
	"iter"
	"regexp"
	"sort"
	"strings"

	"github.com/SamuelRCrider/leakguard/utils"
)

// DefaultMaxContentSize bounds the bytes scanned per target
const DefaultMaxContentSize = 10 * 1024 * 1024

// Target types derived from the target URI scheme
const (
	TargetTypeFile = "file"
	TargetTypeURL  = "url"
)

// TargetTypeOf classifies a target URI by scheme. Anything that is not
// file:// (or a bare path) is treated as a URL.
func TargetTypeOf(target string) string {
	scheme, _, found := strings.Cut(target, "://")
	if !found || strings.EqualFold(scheme, "file") {
		return TargetTypeFile
	}
	return TargetTypeURL
}

// Content is the text fetched for one target
type Content struct {
	Target string
	Data   string

	// HasLineMap is false for sources without stable line structure
	// (fetched URLs); matches then carry line number 0 and no context.
	HasLineMap bool

	// File targets only
	FilePath string
	FileSize int64
}

// CompiledRule is a validated rule with its patterns compiled once per scan
type CompiledRule struct {
	Rule

	re             *regexp.Regexp
	falsePositives []falsePositive
}

// CompileRule validates rule and compiles its pattern and false-positive entries.
func CompileRule(rule Rule) (*CompiledRule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	// ValidateRule has already proven these compile
	compiled := &CompiledRule{
		Rule: rule,
		re:   regexp.MustCompile(rule.Pattern),
	}
	for _, fp := range rule.FalsePositivePatterns {
		compiled.falsePositives = append(compiled.falsePositives, newFalsePositive(fp))
	}
	return compiled, nil
}

// CompileRules compiles every rule, failing on the first invalid one.
func CompileRules(rules []Rule) ([]*CompiledRule, error) {
	out := make([]*CompiledRule, 0, len(rules))
	for _, r := range rules {
		c, err := CompileRule(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// lineIndex maps byte offsets to 1-based line numbers
type lineIndex struct {
	starts []int
	lines  []string
}

func newLineIndex(text string) *lineIndex {
	idx := &lineIndex{starts: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			idx.starts = append(idx.starts, i+1)
		}
	}
	idx.lines = strings.Split(text, "\n")
	return idx
}

// lineOf returns the 1-based line containing offset
func (l *lineIndex) lineOf(offset int) int {
	return sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset })
}

// window joins the lines within n of line, clipped to the content bounds
func (l *lineIndex) window(line, n int) string {
	start := line - n - 1
	if start < 0 {
		start = 0
	}
	end := line + n
	if end > len(l.lines) {
		end = len(l.lines)
	}
	return strings.Join(l.lines[start:end], "\n")
}

// Matches lazily yields the non-overlapping, leftmost-first occurrences of
// rule in content. A disabled rule yields nothing. Empty matches are skipped.
func Matches(rule *CompiledRule, content *Content) iter.Seq[utils.RawMatch] {
	return func(yield func(utils.RawMatch) bool) {
		if rule == nil || content == nil || !rule.Enabled {
			return
		}

		locs := rule.re.FindAllStringIndex(content.Data, -1)
		if len(locs) == 0 {
			return
		}

		var lines *lineIndex
		if content.HasLineMap {
			lines = newLineIndex(content.Data)
		}
		for _, loc := range locs {
			if loc[0] == loc[1] {
				continue
			}

			m := utils.RawMatch{
				StartIndex: loc[0],
				EndIndex:   loc[1],
				Value:      content.Data[loc[0]:loc[1]],
				RuleID:     rule.ID,
				Source:     content.Target,
			}
			if lines != nil {
				m.LineNumber = lines.lineOf(loc[0])
				m.Context = lines.window(m.LineNumber, rule.ContextLines)
			}

			if !yield(m) {
				return
			}
		}
	}
}

// Match collects Matches into a slice
func Match(rule *CompiledRule, content *Content) []utils.RawMatch {
	var out []utils.RawMatch
	for m := range Matches(rule, content) {
		out = append(out, m)
	}
	return out
}

// ScannerConfig defines limits applied before any rule runs
type ScannerConfig struct {
	// MaxContentSize limits the bytes scanned per target. Zero means DefaultMaxContentSize.
	MaxContentSize int
}

// Scanner applies a fixed set of compiled rules to content sequentially.
// It is safe for concurrent use; the engine uses Match directly per cell.
type Scanner struct {
	config  ScannerConfig
	rules   []*CompiledRule
	builder FindingBuilder
}

// NewScanner compiles rules and returns a scanner over them
func NewScanner(config ScannerConfig, rules []Rule) (*Scanner, error) {
	compiled, err := CompileRules(rules)
	if err != nil {
		return nil, err
	}
	if config.MaxContentSize <= 0 {
		config.MaxContentSize = DefaultMaxContentSize
	}
	return &Scanner{config: config, rules: compiled}, nil
}

// WithFindingBuilder overrides how findings are stamped (ids and clock)
func (s *Scanner) WithFindingBuilder(b FindingBuilder) *Scanner {
	s.builder = b
	return s
}

// CheckSize reports ErrContentTooLarge for oversize content
func (s *Scanner) CheckSize(content *Content) error {
	return checkContentSize(content, s.config.MaxContentSize)
}

func checkContentSize(content *Content, limit int) error {
	if limit > 0 && len(content.Data) > limit {
		return NewError(KindContentTooLarge, "scan", content.Target,
			fmt.Errorf("content is %d bytes, limit is %d", len(content.Data), limit))
	}
	return nil
}

// Scan runs every rule against content in rule order and returns the
// surviving findings.
func (s *Scanner) Scan(content *Content) ([]Finding, error) {
	if err := s.CheckSize(content); err != nil {
		return nil, err
	}

	var findings []Finding
	for _, rule := range s.rules {
		raw := Match(rule, content)
		if len(raw) == 0 {
			continue
		}
		findings = append(findings, s.builder.Build(raw, rule, content)...)
	}
	return findings, nil
}
