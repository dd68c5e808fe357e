package core

import (
	"time"
)

// RuleSetBuilder provides a fluent interface for assembling rule sets
type RuleSetBuilder struct {
	set *RuleSet
}

// NewRuleSetBuilder creates a new rule set builder
func NewRuleSetBuilder() *RuleSetBuilder {
	now := time.Now().UTC()
	return &RuleSetBuilder{
		set: &RuleSet{
			Metadata: RuleSetMetadata{
				CreatedAt: now,
				UpdatedAt: now,
			},
			Rules: []Rule{},
		},
	}
}

// WithMetadata sets the rule set metadata
func (b *RuleSetBuilder) WithMetadata(version, description, author string) *RuleSetBuilder {
	b.set.Metadata.Version = version
	b.set.Metadata.Description = description
	b.set.Metadata.Author = author
	return b
}

// AddRule adds an enabled regex rule to the set
func (b *RuleSetBuilder) AddRule(id, name, pattern, category string, risk RiskLevel) *RuleSetBuilder {
	b.set.Rules = append(b.set.Rules, Rule{
		ID:        id,
		Name:      name,
		Type:      RuleTypeRegex,
		Pattern:   pattern,
		Category:  category,
		RiskLevel: risk,
		Enabled:   true,
		CreatedAt: b.set.Metadata.CreatedAt,
	})
	return b
}

// ConfigureLastRule configures additional properties for the last added rule
func (b *RuleSetBuilder) ConfigureLastRule() *RuleConfigurator {
	if len(b.set.Rules) == 0 {
		b.set.Rules = append(b.set.Rules, Rule{})
	}

	return &RuleConfigurator{
		builder: b,
		rule:    &b.set.Rules[len(b.set.Rules)-1],
	}
}

// Build returns the assembled rule set. Rules are not validated here;
// use ParseRuleSet or NewRule for untrusted input.
func (b *RuleSetBuilder) Build() *RuleSet {
	b.set.Metadata.UpdatedAt = time.Now().UTC()
	return b.set
}

// RuleConfigurator provides methods to configure a rule
type RuleConfigurator struct {
	builder *RuleSetBuilder
	rule    *Rule
}

// WithDescription sets the description for the rule
func (c *RuleConfigurator) WithDescription(description string) *RuleConfigurator {
	c.rule.Description = description
	return c
}

// WithTags sets informational tags
func (c *RuleConfigurator) WithTags(tags ...string) *RuleConfigurator {
	c.rule.Tags = tags
	return c
}

// WithContextLines sets how many lines surround each match
func (c *RuleConfigurator) WithContextLines(n int) *RuleConfigurator {
	c.rule.ContextLines = n
	return c
}

func (c *RuleConfigurator) WithExamples(examples ...string) *RuleConfigurator {
	c.rule.Examples = examples
	return c
}

func (c *RuleConfigurator) WithFalsePositivePatterns(patterns ...string) *RuleConfigurator {
	c.rule.FalsePositivePatterns = patterns
	return c
}

// ForProject scopes the rule to a project
func (c *RuleConfigurator) ForProject(projectID string) *RuleConfigurator {
	c.rule.ProjectID = projectID
	return c
}

// Disabled marks the rule as not evaluated at scan time
func (c *RuleConfigurator) Disabled() *RuleConfigurator {
	c.rule.Enabled = false
	return c
}

// Done returns to the rule set builder
func (c *RuleConfigurator) Done() *RuleSetBuilder {
	return c.builder
}
