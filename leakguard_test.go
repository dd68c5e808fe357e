package leakguard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelRCrider/leakguard/core"
	"github.com/SamuelRCrider/leakguard/report"
)

const configFile = `# service configuration
api_key = "sk-1234567890abcdef1234567890abcdef"
password = "example"
jwt_secret = "s3cr3t-signing-key"
`

// TestBasicUsage shows the common path: scan a file, then render a report
func TestBasicUsage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.conf")
	require.NoError(t, os.WriteFile(path, []byte(configFile), 0644))

	result, err := ScanTargets(context.Background(), "basic usage", []string{"file://" + filepath.ToSlash(path)}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, 100.0, result.Progress)

	categories := map[string]int{}
	for _, f := range result.Findings {
		categories[f.Category]++
		assert.Equal(t, path, f.FilePath)
		assert.NotZero(t, f.LineNumber)
	}
	assert.Equal(t, 1, categories["api_key"])
	assert.Equal(t, 1, categories["jwt_secret"])

	rep, err := RenderReport(result, "JSON", report.Options{GeneratedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, "application/json", rep.ContentType)
	assert.Equal(t, "sensitive_report_basic_usage_20240115_103000.json", rep.Filename)

	parsed, _, err := report.ParseJSONReport(rep.Content)
	require.NoError(t, err)
	assert.Len(t, parsed.Findings, len(result.Findings))
}

func TestScanTextWithCustomRules(t *testing.T) {
	rules := core.NewRuleSetBuilder().
		AddRule("token", "Token", `token=\w+`, "token", core.RiskMedium).
		ConfigureLastRule().
		WithContextLines(1).
		WithFalsePositivePatterns("token=dummy").
		Done().
		Build().Rules

	result, err := ScanText(context.Background(), "file:///inline.txt", "a\ntoken=abc\nb\nc\ntoken=dummy", rules)
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, 2, result.Findings[0].LineNumber)
	assert.Equal(t, "a\ntoken=abc\nb", result.Findings[0].Context)

	// URL targets have no line map
	result, err = ScanText(context.Background(), "https://example.com/app.js", "token=abc", rules)
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Zero(t, result.Findings[0].LineNumber)
	assert.Empty(t, result.Findings[0].Context)
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, len(core.DefaultRuleSet().Rules), len(rules))

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, core.SaveRuleSet(core.DefaultRuleSet(), path))
	rules, err = LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, "builtin-api-key", rules[0].ID)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRenderReportRejectsUnknownFormat(t *testing.T) {
	_, err := RenderReport(&core.DetectionResult{}, "xml", report.Options{})
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestRedactText(t *testing.T) {
	out, n, err := RedactText("db password = s3cretValue\nadmin: ops@corp.io\nuser_password = changeme1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "db [REDACTED:password]\nadmin: [REDACTED:pii]\nuser_password = changeme1", out)

	_, _, err = RedactText("x", []core.Rule{{Name: "broken", Pattern: "(", RiskLevel: core.RiskLow}})
	assert.ErrorIs(t, err, core.ErrInvalidPattern)
}
