package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelRCrider/leakguard/core"
	"github.com/SamuelRCrider/leakguard/provider"
	"github.com/SamuelRCrider/leakguard/report"
)

const sampleConfig = "# config\napi_key = 'sk-1234567890abcdef1234567890abcdef'\n"

var fixedNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) (*Server, *report.MemoryResults) {
	t.Helper()
	results := report.NewMemoryResults()
	rules := core.NewMemoryRuleSource(core.DefaultRuleSet().Rules...)
	opts = append([]Option{WithResults(results), WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(rules, Config{Engine: core.EngineConfig{Workers: 2}}, opts...), results
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult, i int) string {
	t.Helper()
	require.Greater(t, len(res.Content), i)
	tc, ok := res.Content[i].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestScanContentAndRender(t *testing.T) {
	s, results := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleScanContent(ctx, call(map[string]interface{}{
		"content": sampleConfig,
		"name":    "inline check",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res, 0))

	var result core.DetectionResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &result))
	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, []string{InlineTarget}, result.Targets)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "api_key", result.Findings[0].Category)
	assert.Equal(t, 2, result.Findings[0].LineNumber)

	stored, err := results.Result(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, "inline check", stored.Name)

	res, err = s.handleRenderReport(ctx, call(map[string]interface{}{
		"detectionId": result.ID,
		"format":      "txt",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res, 0))
	assert.Contains(t, text(t, res, 0), "详细发现")
	assert.Contains(t, text(t, res, 1), "sensitive_report_inline_check_20240115_103000.txt")
	assert.Contains(t, text(t, res, 1), "text/plain")
}

func TestScanContentErrors(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleScanContent(context.Background(), call(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), string(core.KindMissingRequiredField))

	res, err = s.handleScanContent(context.Background(), call(map[string]interface{}{
		"content": sampleConfig,
		"ruleIds": "builtin-api-key, no-such-rule",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), string(core.KindRuleNotFound))
}

func TestScanTargets(t *testing.T) {
	s, _ := newTestServer(t)
	res, err := s.handleScanTargets(context.Background(), call(map[string]interface{}{"targets": "file:///a"}))
	require.NoError(t, err)
	assert.True(t, res.IsError, "disabled without a provider")

	static := provider.NewStatic().
		Set("file:///etc/app.conf", sampleConfig).
		Set("https://example.com/config.js", "password = 'hunter2hunter2'")
	s, _ = newTestServer(t, WithProvider(static))

	res, err = s.handleScanTargets(context.Background(), call(map[string]interface{}{
		"targets": "file:///etc/app.conf,\nhttps://example.com/config.js",
		"ruleIds": "builtin-api-key",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res, 0))

	var result core.DetectionResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &result))
	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 2, result.FinishCount)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "file:///etc/app.conf", result.Findings[0].Target)
}

func TestValidateRule(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleValidateRule(ctx, call(map[string]interface{}{
		"name":                  "token",
		"pattern":               `token\s*=\s*\w{8,}`,
		"riskLevel":             "HIGH",
		"contextLines":          float64(2),
		"falsePositivePatterns": "example,placeholder\ntest_.*",
		"examples":              "token = abcdefgh12\ntoken = short",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res, 0))

	var body validateResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &body))
	assert.False(t, body.Valid)
	assert.Equal(t, []string{"token = short"}, body.FailedExamples)

	res, err = s.handleValidateRule(ctx, call(map[string]interface{}{
		"name":      "broken",
		"pattern":   "[invalid regex",
		"riskLevel": "high",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), string(core.KindInvalidPattern))

	res, err = s.handleValidateRule(ctx, call(map[string]interface{}{"pattern": "x", "riskLevel": "high"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), string(core.KindMissingRequiredField))
}

func TestRenderReportFromJSON(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	result := core.DetectionResult{
		ID:          "det-json",
		Name:        "posted",
		Targets:     []string{"file:///a"},
		Status:      core.StatusCompleted,
		StartTime:   fixedNow,
		TotalCount:  1,
		FinishCount: 1,
		Progress:    100,
	}
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	res, err := s.handleRenderReport(ctx, call(map[string]interface{}{"result": string(raw), "format": "csv"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res, 0))
	assert.True(t, strings.HasPrefix(text(t, res, 0), "序号,"))

	cases := []struct {
		args map[string]interface{}
		kind core.ErrorKind
	}{
		{map[string]interface{}{"result": string(raw), "format": "xml"}, core.KindUnsupportedFormat},
		{map[string]interface{}{"result": string(raw), "sortBy": "severity"}, core.KindInvalidField},
		{map[string]interface{}{"result": "{not json"}, core.KindInvalidField},
		{map[string]interface{}{}, core.KindMissingRequiredField},
		{map[string]interface{}{"detectionId": "missing"}, core.KindResultNotFound},
	}
	for _, tc := range cases {
		res, err := s.handleRenderReport(ctx, call(tc.args))
		require.NoError(t, err)
		assert.True(t, res.IsError, tc.args)
		assert.Contains(t, text(t, res, 0), string(tc.kind))
	}
}

func TestRedactContent(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleRedactContent(ctx, call(map[string]interface{}{"content": sampleConfig}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res, 0))

	var body redactResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &body))
	assert.Equal(t, 1, body.Redacted)
	assert.Equal(t, "# config\n[REDACTED:api_key]\n", body.Content)
	assert.NotContains(t, body.Content, "sk-1234567890")

	res, err = s.handleRedactContent(ctx, call(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), string(core.KindMissingRequiredField))

	res, err = s.handleRedactContent(ctx, call(map[string]interface{}{"content": sampleConfig, "ruleIds": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), string(core.KindRuleNotFound))
}

func TestWhitelistAppliesToScanAndRedact(t *testing.T) {
	allow, err := core.NewWhitelist([]core.WhitelistEntry{{Type: core.WhitelistPattern, Value: `sk-1234567890abcdef`}})
	require.NoError(t, err)
	s, _ := newTestServer(t, WithWhitelist(allow))
	ctx := context.Background()

	res, err := s.handleScanContent(ctx, call(map[string]interface{}{"content": sampleConfig}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res, 0))
	var result core.DetectionResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &result))
	assert.Empty(t, result.Findings)

	res, err = s.handleRedactContent(ctx, call(map[string]interface{}{"content": sampleConfig}))
	require.NoError(t, err)
	var body redactResponse
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &body))
	assert.Zero(t, body.Redacted)
	assert.Equal(t, sampleConfig, body.Content)
}

func TestListRules(t *testing.T) {
	s, _ := newTestServer(t)
	res, err := s.handleListRules(context.Background(), call(nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var rules []core.Rule
	require.NoError(t, json.Unmarshal([]byte(text(t, res, 0)), &rules))
	assert.Len(t, rules, len(core.DefaultRuleSet().Enabled()))
}

func TestRateLimit(t *testing.T) {
	s := New(core.NewMemoryRuleSource(), Config{RequestsPerMinute: 1})
	now := fixedNow
	s.limiter.now = func() time.Time { return now }

	calls := 0
	h := s.limit("list_rules", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		calls++
		return mcp.NewToolResultText("ok"), nil
	})

	res, err := h(context.Background(), call(nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = h(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res, 0), "rate limit exceeded")

	now = now.Add(time.Minute)
	res, err = h(context.Background(), call(nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 2, calls)
}
