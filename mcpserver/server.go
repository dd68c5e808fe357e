// Package mcpserver exposes scanning, redaction, rule validation and report
// rendering as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/SamuelRCrider/leakguard/core"
	"github.com/SamuelRCrider/leakguard/provider"
	"github.com/SamuelRCrider/leakguard/report"
)

// InlineTarget names content passed directly to scan_content
const InlineTarget = "file:///inline.txt"

// Results stores scan results so render_report can find them by ID
type Results interface {
	report.ResultStore
	report.ResultWriter
}

// Config describes the server identity and scan limits
type Config struct {
	Name    string
	Version string
	Engine  core.EngineConfig

	// Tool calls allowed per tool and minute. Zero disables limiting.
	RequestsPerMinute int
}

type Server struct {
	mcp      *server.MCPServer
	config   Config
	rules    core.RuleSource
	results  Results
	provider core.ContentProvider
	allow    *core.Whitelist
	limiter  *RateLimiter
	logger   *zap.SugaredLogger
	audit    *core.AuditLogger
	now      func() time.Time
}

type Option func(*Server)

// WithResults keeps every scan result and enables render_report by detectionId
func WithResults(r Results) Option {
	return func(s *Server) { s.results = r }
}

// WithProvider enables the scan_targets tool
func WithProvider(p core.ContentProvider) Option {
	return func(s *Server) { s.provider = p }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAudit(audit *core.AuditLogger) Option {
	return func(s *Server) { s.audit = audit }
}

// WithWhitelist exempts targets and matched text in scans and redaction
func WithWhitelist(w *core.Whitelist) Option {
	return func(s *Server) { s.allow = w }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New registers the leakguard tools on a fresh MCP server
func New(rules core.RuleSource, config Config, opts ...Option) *Server {
	if config.Name == "" {
		config.Name = "leakguard"
	}
	if config.Version == "" {
		config.Version = "1.0.0"
	}

	s := &Server{
		config:  config,
		rules:   rules,
		limiter: NewRateLimiter(config.RequestsPerMinute, time.Minute),
		logger:  zap.NewNop().Sugar(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(config.Name, config.Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s.mcp.AddTool(mcp.NewTool("scan_content",
		mcp.WithDescription("Scan text for leaked credentials and other sensitive information"),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text to scan")),
		mcp.WithString("target", mcp.Description("URI recorded on findings; file:// targets get line numbers")),
		mcp.WithString("name", mcp.Description("Detection name")),
		mcp.WithString("projectId", mcp.Description("Project whose rules apply")),
		mcp.WithString("ruleIds", mcp.Description("Comma separated rule IDs; empty means all enabled rules")),
	), s.limit("scan_content", s.handleScanContent))

	s.mcp.AddTool(mcp.NewTool("scan_targets",
		mcp.WithDescription("Fetch and scan file:// or http(s):// targets"),
		mcp.WithString("targets", mcp.Required(), mcp.Description("Targets separated by commas or newlines")),
		mcp.WithString("name", mcp.Description("Detection name")),
		mcp.WithString("projectId", mcp.Description("Project whose rules apply")),
		mcp.WithString("ruleIds", mcp.Description("Comma separated rule IDs; empty means all enabled rules")),
	), s.limit("scan_targets", s.handleScanTargets))

	s.mcp.AddTool(mcp.NewTool("validate_rule",
		mcp.WithDescription("Check that a detection rule compiles and matches its examples"),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("RE2 regular expression")),
		mcp.WithString("riskLevel", mcp.Required(), mcp.Enum("low", "medium", "high")),
		mcp.WithString("category"),
		mcp.WithNumber("contextLines"),
		mcp.WithString("falsePositivePatterns", mcp.Description("One pattern per line")),
		mcp.WithString("examples", mcp.Description("One example per line")),
	), s.limit("validate_rule", s.handleValidateRule))

	s.mcp.AddTool(mcp.NewTool("render_report",
		mcp.WithDescription("Render a detection result as html, json, csv or txt"),
		mcp.WithString("detectionId", mcp.Description("ID of a result produced by a scan tool")),
		mcp.WithString("result", mcp.Description("Detection result JSON, used when detectionId is empty")),
		mcp.WithString("format", mcp.Enum("html", "json", "csv", "txt")),
		mcp.WithString("sortBy", mcp.Enum("riskLevel", "category", "target", "createdAt")),
		mcp.WithString("sortOrder", mcp.Enum("asc", "desc")),
		mcp.WithString("riskLevel", mcp.Description("Comma separated risk levels to list")),
		mcp.WithString("category", mcp.Description("Comma separated categories to list")),
		mcp.WithString("summary", mcp.Description("true or false")),
		mcp.WithString("details", mcp.Description("true or false")),
	), s.limit("render_report", s.handleRenderReport))

	s.mcp.AddTool(mcp.NewTool("redact_content",
		mcp.WithDescription("Mask sensitive information in text before it is shared"),
		mcp.WithString("content", mcp.Required(), mcp.Description("Text to redact")),
		mcp.WithString("projectId", mcp.Description("Project whose rules apply")),
		mcp.WithString("ruleIds", mcp.Description("Comma separated rule IDs; empty means all enabled rules")),
	), s.limit("redact_content", s.handleRedactContent))

	s.mcp.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List the enabled detection rules"),
		mcp.WithString("projectId"),
	), s.limit("list_rules", s.handleListRules))

	return s
}

// ServeStdio blocks serving MCP requests on stdin/stdout
func (s *Server) ServeStdio() error {
	s.logger.Infow("MCP server starting", "name", s.config.Name, "version", s.config.Version)
	return server.ServeStdio(s.mcp)
}

func (s *Server) limit(tool string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ok, reset := s.limiter.Allow(tool); !ok {
			s.logger.Warnw("Tool call rate limited", "tool", tool, "reset", reset)
			return mcp.NewToolResultError(fmt.Sprintf("rate limit exceeded for %s, retry after %s", tool, reset.Format(time.RFC3339))), nil
		}
		return h(ctx, req)
	}
}

func stringArg(args map[string]interface{}, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitLines keeps commas, which are common inside regular expressions
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// toolError turns an error into a tool-level failure the client can read
func toolError(err error) *mcp.CallToolResult {
	if kind := core.KindOf(err); kind != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) scan(ctx context.Context, p core.ContentProvider, args map[string]interface{}, targets []string) (*mcp.CallToolResult, error) {
	name := stringArg(args, "name")
	if name == "" {
		name = "mcp-scan"
	}

	engine := core.NewEngine(p, s.config.Engine,
		core.WithRuleSource(s.rules),
		core.WithLogger(s.logger),
		core.WithAudit(s.audit),
		core.WithWhitelist(s.allow),
		core.WithClock(s.now),
	)
	result, err := engine.Run(ctx, core.ScanRequest{
		ID:        uuid.NewString(),
		ProjectID: stringArg(args, "projectId"),
		Name:      name,
		Targets:   targets,
		RuleIDs:   splitList(stringArg(args, "ruleIds")),
	})
	if err != nil && result == nil {
		return toolError(err), nil
	}

	if s.results != nil {
		if perr := s.results.PutResult(ctx, result); perr != nil {
			core.ReportError(s.logger, "Failed to store scan result", perr, "detection", result.ID)
		}
	}
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleScanContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.Params.Arguments
	content := stringArg(args, "content")
	if content == "" {
		return toolError(core.NewError(core.KindMissingRequiredField, "scan content", "content", nil)), nil
	}

	target := stringArg(args, "target")
	if target == "" {
		target = InlineTarget
	}
	return s.scan(ctx, provider.NewStatic().Set(target, content), args, []string{target})
}

func (s *Server) handleScanTargets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.provider == nil {
		return mcp.NewToolResultError("scan_targets is disabled on this server"), nil
	}
	args := req.Params.Arguments
	targets := splitList(stringArg(args, "targets"))
	if len(targets) == 0 {
		return toolError(core.NewError(core.KindMissingRequiredField, "scan targets", "targets", nil)), nil
	}
	return s.scan(ctx, s.provider, args, targets)
}

type redactResponse struct {
	Content  string `json:"content"`
	Redacted int    `json:"redacted"`
}

func (s *Server) handleRedactContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.Params.Arguments
	text := stringArg(args, "content")
	if text == "" {
		return toolError(core.NewError(core.KindMissingRequiredField, "redact content", "content", nil)), nil
	}

	rules, err := s.rules.RulesFor(ctx, stringArg(args, "projectId"), splitList(stringArg(args, "ruleIds")))
	if err != nil {
		return toolError(err), nil
	}
	scanner, err := core.NewScanner(core.ScannerConfig{MaxContentSize: s.config.Engine.MaxContentSize}, rules)
	if err != nil {
		return toolError(err), nil
	}
	scanner.WithFindingBuilder(core.FindingBuilder{Whitelist: s.allow})

	content, err := provider.NewStatic().Set(InlineTarget, text).Fetch(ctx, InlineTarget)
	if err != nil {
		return nil, err
	}
	redacted, n, err := scanner.Redact(content)
	if err != nil {
		return toolError(err), nil
	}

	s.logger.Debugw("Content redacted", "matches", n, "rules", len(rules))
	return jsonResult(redactResponse{Content: redacted, Redacted: n})
}

type validateResponse struct {
	Valid          bool     `json:"valid"`
	FailedExamples []string `json:"failedExamples,omitempty"`
}

func (s *Server) handleValidateRule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.Params.Arguments
	rule := core.Rule{
		Name:                  stringArg(args, "name"),
		Pattern:               stringArg(args, "pattern"),
		RiskLevel:             core.RiskLevel(strings.ToLower(stringArg(args, "riskLevel"))),
		Category:              stringArg(args, "category"),
		FalsePositivePatterns: splitLines(stringArg(args, "falsePositivePatterns")),
		Examples:              splitLines(stringArg(args, "examples")),
	}
	if n, ok := args["contextLines"].(float64); ok {
		rule.ContextLines = int(n)
	}

	if err := core.ValidateRule(rule); err != nil {
		return toolError(err), nil
	}
	failed, err := core.SelfTest(rule)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(validateResponse{Valid: len(failed) == 0, FailedExamples: failed})
}

func (s *Server) handleRenderReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.Params.Arguments

	format := report.FormatHTML
	if f := stringArg(args, "format"); f != "" {
		parsed, err := report.ParseFormat(f)
		if err != nil {
			return toolError(err), nil
		}
		format = parsed
	}

	opts, err := report.OptionsFromParams(func(k string) string { return stringArg(args, k) }, s.now())
	if err != nil {
		return toolError(err), nil
	}

	result, err := s.lookupResult(ctx, args)
	if err != nil {
		return toolError(err), nil
	}

	rep, err := report.Render(result, format, opts)
	if err != nil {
		return toolError(err), nil
	}

	s.audit.Record(core.AuditEvent{
		EventType:   "report_rendered",
		Severity:    core.SeverityInfo,
		DetectionID: result.ID,
		ProjectID:   result.ProjectID,
		Metadata:    map[string]string{"format": string(format), "filename": rep.Filename},
	})

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(rep.Content)},
			mcp.TextContent{Type: "text", Text: fmt.Sprintf("filename: %s\ncontent-type: %s", rep.Filename, rep.ContentType)},
		},
	}, nil
}

func (s *Server) lookupResult(ctx context.Context, args map[string]interface{}) (*core.DetectionResult, error) {
	if id := stringArg(args, "detectionId"); id != "" {
		if s.results == nil {
			return nil, core.NewError(core.KindResultNotFound, "lookup result", id, errors.New("no result store configured"))
		}
		return s.results.Result(ctx, id)
	}

	raw := stringArg(args, "result")
	if raw == "" {
		return nil, core.NewError(core.KindMissingRequiredField, "render report", "detectionId", errors.New("either detectionId or result is required"))
	}
	var result core.DetectionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, core.NewError(core.KindInvalidField, "render report", "result", err)
	}
	result.Summary = core.Summarize(result.Findings)
	return &result, nil
}

func (s *Server) handleListRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rules, err := s.rules.RulesFor(ctx, stringArg(req.Params.Arguments, "projectId"), nil)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rules)
}
