package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/SamuelRCrider/leakguard/utils"
)

// Finding is a single confirmed occurrence of sensitive data. Rule fields
// are snapshot copies taken at build time; a Finding is never mutated.
type Finding struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	TargetType  string    `json:"targetType"`
	Rule        string    `json:"rule"`
	RuleName    string    `json:"ruleName"`
	Category    string    `json:"category"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Pattern     string    `json:"pattern"`
	MatchedText string    `json:"matchedText"`
	Context     string    `json:"context"`
	LineNumber  int       `json:"lineNumber,omitempty"`
	FilePath    string    `json:"filePath,omitempty"`
	FileSize    int64     `json:"fileSize,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FindingBuilder stamps findings. Zero values use uuid.NewString and time.Now.
type FindingBuilder struct {
	Now   func() time.Time
	NewID func() string

	// Whitelist is consulted before the rule's own false-positive patterns
	Whitelist *Whitelist
}

// Suppressed reports whether m is dropped by the whitelist or by the
// rule's false-positive patterns
func (b FindingBuilder) Suppressed(m utils.RawMatch, rule *CompiledRule, content *Content) bool {
	return b.Whitelist.Allows(content, m.Value) || rule.IsFalsePositive(m.Value, m.Context)
}

func (b FindingBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

func (b FindingBuilder) newID() string {
	if b.NewID != nil {
		return b.NewID()
	}
	return uuid.NewString()
}

// Build converts raw matches into findings, dropping whitelisted matches
// and false positives. Each match is judged independently; order is preserved.
func (b FindingBuilder) Build(raw []utils.RawMatch, rule *CompiledRule, content *Content) []Finding {
	findings := make([]Finding, 0, len(raw))
	targetType := TargetTypeOf(content.Target)

	for _, m := range raw {
		if b.Suppressed(m, rule, content) {
			continue
		}

		f := Finding{
			ID:          b.newID(),
			Target:      content.Target,
			TargetType:  targetType,
			Rule:        rule.ID,
			RuleName:    rule.Name,
			Category:    rule.Category,
			RiskLevel:   rule.RiskLevel,
			Pattern:     rule.Pattern,
			MatchedText: m.Value,
			Context:     m.Context,
			LineNumber:  m.LineNumber,
			CreatedAt:   b.now(),
		}
		if targetType == TargetTypeFile {
			f.FilePath = content.FilePath
			f.FileSize = content.FileSize
		}
		findings = append(findings, f)
	}
	return findings
}

// BuildFindings is Build with the default id generator and clock
func BuildFindings(raw []utils.RawMatch, rule *CompiledRule, content *Content) []Finding {
	return FindingBuilder{}.Build(raw, rule, content)
}
