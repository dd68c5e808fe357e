package core

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EngineConfig bounds a scan
type EngineConfig struct {
	// Workers is the size of the matcher pool. Zero means GOMAXPROCS.
	Workers int

	// MaxContentSize limits bytes per target. Zero means DefaultMaxContentSize.
	MaxContentSize int
}

// Engine runs rules against targets with a bounded worker pool
type Engine struct {
	config   EngineConfig
	provider ContentProvider
	rules    RuleSource
	logger   *zap.SugaredLogger
	audit    *AuditLogger
	builder  FindingBuilder
	allow    *Whitelist
	now      func() time.Time
}

// TargetExpander is implemented by providers where one target can stand
// for many documents, such as a directory or a glob. Expand returns the
// target itself when there is nothing to expand.
type TargetExpander interface {
	Expand(ctx context.Context, target string) ([]string, error)
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

func WithLogger(logger *zap.SugaredLogger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithAudit(audit *AuditLogger) EngineOption {
	return func(e *Engine) { e.audit = audit }
}

// WithRuleSource lets requests name rules by ID instead of passing them
func WithRuleSource(src RuleSource) EngineOption {
	return func(e *Engine) { e.rules = src }
}

// WithFindingBuilder overrides finding ids and timestamps
func WithFindingBuilder(b FindingBuilder) EngineOption {
	return func(e *Engine) { e.builder = b }
}

// WithWhitelist exempts targets and matched text from every rule
func WithWhitelist(w *Whitelist) EngineOption {
	return func(e *Engine) { e.allow = w }
}

// WithClock sets the clock used for start and end times
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine reading targets through provider
func NewEngine(provider ContentProvider, config EngineConfig, opts ...EngineOption) *Engine {
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	if config.MaxContentSize <= 0 {
		config.MaxContentSize = DefaultMaxContentSize
	}
	e := &Engine{
		config:   config,
		provider: provider,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.allow != nil {
		e.builder.Whitelist = e.allow
	}
	return e
}

// ScanRequest describes one detection run
type ScanRequest struct {
	ID        string
	ProjectID string
	Name      string
	Targets   []string

	// Rules to apply. When nil, RuleIDs are resolved through the engine's RuleSource.
	Rules   []Rule
	RuleIDs []string
}

type scanJob struct {
	target  int
	rule    int
	content *Content
}

// scanMsg is either the start of a target (begin) or one finished cell
type scanMsg struct {
	target   int
	begin    bool
	cells    int
	err      error
	rule     int
	findings []Finding
}

type targetState struct {
	begun    bool
	folded   bool
	expected int
	received int
	err      error
	byRule   [][]Finding
}

func (t *targetState) done() bool {
	return t.begun && t.received == t.expected
}

// Run scans every target with every enabled rule. Directory and glob
// targets are first expanded into one target per file. Invalid rules fail
// the call before any target is fetched. A failing target is recorded in
// the result and does not stop the others. On cancellation the partial
// result is returned, marked failed, together with an ErrCanceled error.
func (e *Engine) Run(ctx context.Context, req ScanRequest) (*DetectionResult, error) {
	rules, err := e.resolveRules(ctx, req)
	if err != nil {
		return nil, err
	}

	var enabled []Rule
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	compiled, err := CompileRules(enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	targets := e.expand(ctx, req.Targets)

	agg := NewAggregator(DetectionMeta{
		ID:        req.ID,
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Targets:   targets,
	}, e.now)
	detectionID := agg.result.ID

	e.logger.Infow("scan started", "detection", detectionID, "targets", len(targets), "rules", len(compiled))
	e.audit.Record(AuditEvent{
		EventType:   "scan_started",
		DetectionID: detectionID,
		ProjectID:   req.ProjectID,
		Metadata: map[string]string{
			"targets": strconv.Itoa(len(targets)),
			"rules":   strconv.Itoa(len(compiled)),
		},
	})

	jobs := make(chan scanJob, e.config.Workers)
	results := make(chan scanMsg, e.config.Workers*2)

	var workers sync.WaitGroup
	for i := 0; i < e.config.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					continue
				}
				rule := compiled[job.rule]
				raw := Match(rule, job.content)
				results <- scanMsg{
					target:   job.target,
					rule:     job.rule,
					findings: e.builder.Build(raw, rule, job.content),
				}
			}
		}()
	}

	go func() {
		e.produce(ctx, targets, compiled, jobs, results)
		close(jobs)
		workers.Wait()
		close(results)
	}()

	states := make([]targetState, len(targets))
	next := 0
	fold := func(i int) {
		st := &states[i]
		var findings []Finding
		for _, f := range st.byRule {
			findings = append(findings, f...)
		}
		agg.Add(TargetResult{Target: targets[i], Findings: findings, Err: st.err})
		st.folded = true
	}

	for msg := range results {
		st := &states[msg.target]
		if msg.begin {
			st.begun = true
			st.expected = msg.cells
			st.err = msg.err
			st.byRule = make([][]Finding, len(compiled))
		} else {
			st.byRule[msg.rule] = msg.findings
			st.received++
		}

		for next < len(states) && states[next].done() {
			fold(next)
			next++
		}
	}

	// A deadline that fires after the last fold does not undo a finished scan
	canceled := next < len(states) && ctx.Err() != nil
	if canceled {
		// Keep completed targets that were queued behind an unfinished one
		for i := next; i < len(states); i++ {
			if states[i].done() && !states[i].folded {
				fold(i)
			}
		}
		agg.Cancel()
	}

	result := agg.Finish()

	e.logger.Infow("scan finished",
		"detection", result.ID,
		"status", result.Status,
		"findings", len(result.Findings),
		"finished", result.FinishCount,
		"total", result.TotalCount,
	)
	e.audit.Record(AuditEvent{
		EventType:   "scan_finished",
		DetectionID: result.ID,
		ProjectID:   result.ProjectID,
		Severity:    severityFor(result.Status),
		Metadata: map[string]string{
			"status":   string(result.Status),
			"findings": strconv.Itoa(len(result.Findings)),
			"finished": strconv.Itoa(result.FinishCount),
		},
	})

	if canceled {
		return result, NewError(KindCanceled, "scan", result.Name, ctx.Err())
	}
	return result, nil
}

// produce fetches targets in order. For each target it announces the
// number of cells on results before queueing them, so the collector
// always sees a target's begin message ahead of its cells.
func (e *Engine) produce(ctx context.Context, targets []string, rules []*CompiledRule, jobs chan<- scanJob, results chan<- scanMsg) {
	for i, target := range targets {
		if ctx.Err() != nil {
			return
		}

		content, err := e.fetch(ctx, target)
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			ReportError(e.logger, "target failed", err, "target", target)
			e.audit.Record(AuditEvent{
				EventType: "target_failed",
				Severity:  SeverityWarning,
				Target:    target,
				Detail:    err.Error(),
			})
			results <- scanMsg{target: i, begin: true, err: err}
			continue
		}

		results <- scanMsg{target: i, begin: true, cells: len(rules)}
		for r := range rules {
			select {
			case jobs <- scanJob{target: i, rule: r, content: content}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// expand replaces directory and glob targets with the files behind them.
// A target that fails to expand is kept as is, so fetching it records the
// failure against that target.
func (e *Engine) expand(ctx context.Context, targets []string) []string {
	x, ok := e.provider.(TargetExpander)
	if !ok {
		return targets
	}

	out := make([]string, 0, len(targets))
	for _, target := range targets {
		files, err := x.Expand(ctx, target)
		if err != nil {
			ReportError(e.logger, "target expansion failed", err, "target", target)
			out = append(out, target)
			continue
		}
		if len(files) != 1 || files[0] != target {
			e.logger.Debugw("target expanded", "target", target, "files", len(files))
		}
		out = append(out, files...)
	}
	return out
}

func (e *Engine) fetch(ctx context.Context, target string) (*Content, error) {
	content, err := e.provider.Fetch(ctx, target)
	if err != nil {
		return nil, NewError(KindTargetFailed, "fetch", target, err)
	}
	if content.Target == "" {
		content.Target = target
	}
	if err := checkContentSize(content, e.config.MaxContentSize); err != nil {
		return nil, err
	}
	return content, nil
}

func (e *Engine) resolveRules(ctx context.Context, req ScanRequest) ([]Rule, error) {
	if req.Rules != nil {
		return req.Rules, nil
	}
	if e.rules == nil {
		return nil, NewError(KindRuleNotFound, "resolve rules", req.ProjectID, fmt.Errorf("no rules given and no rule source configured"))
	}
	rules, err := e.rules.RulesFor(ctx, req.ProjectID, req.RuleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rules: %w", err)
	}
	return rules, nil
}

func severityFor(status DetectionStatus) AuditLogSeverity {
	if status == StatusFailed {
		return SeverityWarning
	}
	return SeverityInfo
}
