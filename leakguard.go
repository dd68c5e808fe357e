// Package leakguard scans files and URLs for leaked credentials and renders
// the findings as downloadable reports.
package leakguard

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/SamuelRCrider/leakguard/core"
	"github.com/SamuelRCrider/leakguard/provider"
	"github.com/SamuelRCrider/leakguard/report"
)

// LoadRules reads a YAML rule set, or returns the built-in rules when path is empty
func LoadRules(path string) ([]core.Rule, error) {
	if path == "" {
		return core.DefaultRuleSet().Rules, nil
	}
	set, err := core.LoadRuleSet(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return set.Rules, nil
}

// ScanTargets fetches file:// and http(s):// targets and applies rules
// with default engine settings. Nil rules means the built-in set.
func ScanTargets(ctx context.Context, name string, targets []string, rules []core.Rule) (*core.DetectionResult, error) {
	return ScanTargetsWithConfig(ctx, name, targets, rules, core.EngineConfig{})
}

// ScanTargetsWithConfig is ScanTargets with explicit worker and size limits
func ScanTargetsWithConfig(ctx context.Context, name string, targets []string, rules []core.Rule, config core.EngineConfig) (*core.DetectionResult, error) {
	if rules == nil {
		rules = core.DefaultRuleSet().Rules
	}
	engine := core.NewEngine(provider.Default(int64(config.MaxContentSize)), config)
	result, err := engine.Run(ctx, core.ScanRequest{
		ID:      uuid.NewString(),
		Name:    name,
		Targets: targets,
		Rules:   rules,
	})
	if err != nil {
		return result, fmt.Errorf("scan failed: %w", err)
	}
	return result, nil
}

// ScanText scans an in-memory document. target is recorded on findings;
// file:// targets get line numbers and context.
func ScanText(ctx context.Context, target, text string, rules []core.Rule) (*core.DetectionResult, error) {
	if rules == nil {
		rules = core.DefaultRuleSet().Rules
	}
	engine := core.NewEngine(provider.NewStatic().Set(target, text), core.EngineConfig{Workers: 1})
	result, err := engine.Run(ctx, core.ScanRequest{
		ID:      uuid.NewString(),
		Name:    target,
		Targets: []string{target},
		Rules:   rules,
	})
	if err != nil {
		return result, fmt.Errorf("scan failed: %w", err)
	}
	return result, nil
}

// RenderReport renders result in the named format (html, json, csv, txt)
func RenderReport(result *core.DetectionResult, format string, opts report.Options) (*report.Report, error) {
	f, err := report.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return report.Render(result, f, opts)
}

// RedactText masks every match of rules in text with "[REDACTED:<category>]"
// and reports how many matches were masked. Nil rules means the built-in set.
func RedactText(text string, rules []core.Rule) (string, int, error) {
	if rules == nil {
		rules = core.DefaultRuleSet().Rules
	}
	scanner, err := core.NewScanner(core.ScannerConfig{}, rules)
	if err != nil {
		return "", 0, err
	}
	// A file target gives false-positive checks the same context as a scan
	const target = "file:///inline.txt"
	content, err := provider.NewStatic().Set(target, text).Fetch(context.Background(), target)
	if err != nil {
		return "", 0, err
	}
	return scanner.Redact(content)
}
