package report

import (
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SamuelRCrider/leakguard/core"
)

// Display limits, in runes
const (
	htmlMatchLimit   = 50
	csvMatchLimit    = 100
	csvContextLimit  = 150
	txtMatchLimit    = 200
	txtContextLimit  = 300
	ellipsis         = "..."
	placeholder      = "-"
	displayTimestamp = "2006-01-02 15:04:05"
)

type levelCount struct {
	Level core.RiskLevel
	Count int
}

type nameCount struct {
	Name  string
	Count int
}

// view is what every renderer consumes
type view struct {
	result      *core.DetectionResult
	opts        Options
	findings    []core.Finding
	summary     core.Summary
	risks       []levelCount
	categories  []nameCount
	targets     []nameCount
	generatedAt time.Time
}

func buildView(result *core.DetectionResult, opts Options) *view {
	summary := core.Summarize(result.Findings)

	v := &view{
		result:      result,
		opts:        opts,
		findings:    sortFindings(filterFindings(result.Findings, opts), opts),
		summary:     summary,
		targets:     targetStatistics(result),
		generatedAt: opts.GeneratedAt,
	}
	for _, level := range core.RiskLevels {
		v.risks = append(v.risks, levelCount{Level: level, Count: summary.RiskLevelCount[level]})
	}
	for _, c := range summary.Categories() {
		v.categories = append(v.categories, nameCount{Name: c, Count: summary.CategoryCount[c]})
	}
	return v
}

func filterFindings(findings []core.Finding, opts Options) []core.Finding {
	out := make([]core.Finding, 0, len(findings))
	for _, f := range findings {
		if len(opts.FilterRiskLevel) > 0 && !slices.Contains(opts.FilterRiskLevel, f.RiskLevel) {
			continue
		}
		if len(opts.FilterCategory) > 0 && !slices.Contains(opts.FilterCategory, f.Category) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// sortFindings orders a copy. Ties keep detection order in both directions.
func sortFindings(findings []core.Finding, opts Options) []core.Finding {
	if opts.SortBy == SortInsertion {
		return findings
	}

	var compare func(a, b core.Finding) int
	switch opts.SortBy {
	case SortRiskLevel:
		compare = func(a, b core.Finding) int { return a.RiskLevel.Rank() - b.RiskLevel.Rank() }
	case SortCategory:
		compare = func(a, b core.Finding) int { return strings.Compare(a.Category, b.Category) }
	case SortTarget:
		compare = func(a, b core.Finding) int { return strings.Compare(a.Target, b.Target) }
	case SortCreatedAt:
		compare = func(a, b core.Finding) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return findings
	}

	desc := opts.SortOrder == SortDesc
	sort.SliceStable(findings, func(i, j int) bool {
		c := compare(findings[i], findings[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
	return findings
}

// targetStatistics counts findings per distinct target. Every scanned
// target is listed, including those with zero findings.
func targetStatistics(result *core.DetectionResult) []nameCount {
	counts := make(map[string]int)
	var order []string
	add := func(target string) {
		if _, seen := counts[target]; !seen {
			counts[target] = 0
			order = append(order, target)
		}
	}

	for _, t := range result.Targets {
		add(t)
	}
	for _, f := range result.Findings {
		add(f.Target)
		counts[f.Target]++
	}

	out := make([]nameCount, 0, len(order))
	for _, t := range order {
		out = append(out, nameCount{Name: t, Count: counts[t]})
	}
	return out
}

// truncate shortens s to limit runes plus an ellipsis. Text of exactly
// limit runes is returned unchanged.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + ellipsis
}

func lineLabel(n int) string {
	if n <= 0 {
		return placeholder
	}
	return strconv.Itoa(n)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return placeholder
	}
	return t.Format(displayTimestamp)
}

func formatEnd(t *time.Time) string {
	if t == nil {
		return placeholder
	}
	return formatTime(*t)
}
