package core

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() Rule {
	return Rule{
		Name:                  "Password assignment",
		Type:                  RuleTypeRegex,
		Pattern:               `password\s*=\s*\S+`,
		Category:              "password",
		RiskLevel:             RiskMedium,
		Enabled:               true,
		ContextLines:          1,
		FalsePositivePatterns: []string{"changeme", `example\.com`},
	}
}

// TestValidateRule covers each rejection kind
func TestValidateRule(t *testing.T) {
	assert.NoError(t, ValidateRule(validRule()))

	missingName := validRule()
	missingName.Name = ""
	assert.ErrorIs(t, ValidateRule(missingName), ErrMissingRequiredField)

	missingRisk := validRule()
	missingRisk.RiskLevel = ""
	assert.ErrorIs(t, ValidateRule(missingRisk), ErrMissingRequiredField)

	badPattern := validRule()
	badPattern.Pattern = `(unclosed`
	err := ValidateRule(badPattern)
	assert.ErrorIs(t, err, ErrInvalidPattern)
	assert.Equal(t, KindInvalidPattern, KindOf(err))

	// An uncompilable false-positive entry is rejected even though it is
	// also used as a literal substring
	badFP := validRule()
	badFP.FalsePositivePatterns = []string{"[oops"}
	assert.ErrorIs(t, ValidateRule(badFP), ErrInvalidPattern)

	badRisk := validRule()
	badRisk.RiskLevel = "critical"
	assert.ErrorIs(t, ValidateRule(badRisk), ErrInvalidField)

	badType := validRule()
	badType.Type = "glob"
	assert.ErrorIs(t, ValidateRule(badType), ErrUnsupportedRuleType)

	negativeContext := validRule()
	negativeContext.ContextLines = -1
	assert.ErrorIs(t, ValidateRule(negativeContext), ErrInvalidField)
}

func TestNewRuleAssignsIdentity(t *testing.T) {
	r := validRule()
	r.Type = ""

	created, err := NewRule(r)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, RuleTypeRegex, created.Type)

	r.Pattern = "("
	_, err = NewRule(r)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestSelfTest(t *testing.T) {
	r := validRule()
	r.Examples = []string{"password = hunter22", "passwd: nope"}

	failed, err := SelfTest(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"passwd: nope"}, failed)
}

// TestDefaultRuleSet checks every built-in rule is valid and matches its examples
func TestDefaultRuleSet(t *testing.T) {
	set := DefaultRuleSet()
	require.NotEmpty(t, set.Rules)

	for _, r := range set.Rules {
		assert.NoError(t, ValidateRule(r), r.Name)
		failed, err := SelfTest(r)
		assert.NoError(t, err)
		assert.Empty(t, failed, r.Name)
	}

	assert.Len(t, set.Enabled(), len(set.Rules))
}

func TestRuleSetSaveAndLoad(t *testing.T) {
	set := NewRuleSetBuilder().
		WithMetadata("1.2.0", "Test rules", "Test Author").
		AddRule("r-api", "API key", `api_key=\w+`, "api_key", RiskHigh).
		ConfigureLastRule().
		WithDescription("API keys").
		WithContextLines(2).
		WithTags("api").
		Done().
		AddRule("r-old", "Old rule", `legacy`, "misc", RiskLow).
		ConfigureLastRule().
		Disabled().
		Done().
		Build()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, SaveRuleSet(set, path))
	assert.NotEmpty(t, set.Metadata.Hash)

	loaded, err := LoadRuleSet(path)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", loaded.Metadata.Version)
	assert.Equal(t, set.Metadata.Hash, loaded.Metadata.Hash)
	require.Len(t, loaded.Rules, 2)
	assert.Equal(t, 2, loaded.Rules[0].ContextLines)
	assert.Equal(t, RiskHigh, loaded.Rules[0].RiskLevel)

	enabled := loaded.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "r-api", enabled[0].ID)

	r, ok := loaded.Find("r-old")
	assert.True(t, ok)
	assert.False(t, r.Enabled)
}

func TestParseRuleSetRejectsInvalidRules(t *testing.T) {
	data := []byte(`
metadata:
  version: "1"
rules:
  - name: broken
    pattern: "(["
    risk_level: high
    enabled: true
`)
	_, err := ParseRuleSet(data)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	dup := []byte(`
rules:
  - id: a
    name: one
    pattern: one
    risk_level: low
  - id: a
    name: two
    pattern: two
    risk_level: low
`)
	_, err = ParseRuleSet(dup)
	assert.ErrorIs(t, err, ErrInvalidField)

	// Missing ids are filled in from position
	ok := []byte(`
rules:
  - name: one
    pattern: one
    risk_level: low
`)
	set, err := ParseRuleSet(ok)
	require.NoError(t, err)
	assert.Equal(t, "rule-1", set.Rules[0].ID)
	assert.Equal(t, RuleTypeRegex, set.Rules[0].Type)
}

// TestRuleSetManagerRevise verifies pattern edits append a new rule
func TestRuleSetManagerRevise(t *testing.T) {
	var auditBuf bytes.Buffer
	m := NewRuleSetManager("", NewAuditWriter(&auditBuf, AuditLogLevelVerbose))

	original, err := m.Add(validRule())
	require.NoError(t, err)

	revised, err := m.Revise(original.ID, func(r *Rule) {
		r.Pattern = `passw(or)?d\s*=\s*\S+`
	})
	require.NoError(t, err)

	assert.NotEqual(t, original.ID, revised.ID)
	assert.Equal(t, original.ID, revised.Supersedes)
	assert.True(t, revised.Enabled)

	rules := m.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, original.Pattern, rules[0].Pattern, "old pattern is never rewritten")
	assert.False(t, rules[0].Enabled)
	assert.Equal(t, revised.ID, rules[1].ID)

	// A revision with a bad pattern leaves the set untouched
	_, err = m.Revise(revised.ID, func(r *Rule) { r.Pattern = "(" })
	assert.ErrorIs(t, err, ErrInvalidPattern)
	assert.Len(t, m.Rules(), 2)
	assert.True(t, m.Rules()[1].Enabled)

	_, err = m.Revise("missing", func(r *Rule) {})
	assert.ErrorIs(t, err, ErrRuleNotFound)

	assert.Contains(t, auditBuf.String(), `"event_type":"rule_created"`)
	assert.Contains(t, auditBuf.String(), `"event_type":"rule_revised"`)
}

func TestRuleSetManagerSetEnabled(t *testing.T) {
	m := NewRuleSetManager("", nil)
	r, err := m.Add(validRule())
	require.NoError(t, err)

	require.NoError(t, m.SetEnabled(r.ID, false))
	assert.False(t, m.Rules()[0].Enabled)
	assert.ErrorIs(t, m.SetEnabled("nope", true), ErrRuleNotFound)
}

func TestRuleSetManagerLoadArchivesVersions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	m := NewRuleSetManager(dir, nil)

	v1 := NewRuleSetBuilder().WithMetadata("1", "", "").AddRule("a", "A", "a+", "misc", RiskLow).Build()
	require.NoError(t, SaveRuleSet(v1, path))
	require.NoError(t, m.Load(path))

	v2 := NewRuleSetBuilder().WithMetadata("2", "", "").AddRule("b", "B", "b+", "misc", RiskLow).Build()
	require.NoError(t, SaveRuleSet(v2, path))
	require.NoError(t, m.Load(path))

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, "1", history[0].Version)
	assert.Equal(t, "2", history[1].Version)

	archived, err := os.ReadDir(filepath.Join(dir, "archive"))
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}
