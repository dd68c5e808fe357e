package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SamuelRCrider/leakguard/core"
	"github.com/SamuelRCrider/leakguard/provider"
	"github.com/SamuelRCrider/leakguard/report"
)

// errFindings signals findings at or above --fail-on
var errFindings = errors.New("findings at or above the failure threshold")

func exitCode(err error) int {
	if errors.Is(err, errFindings) {
		return 2
	}
	return 1
}

type scanOptions struct {
	name      string
	projectID string
	rulesPath string
	ruleIDs   []string
	report    string
	output    string
	jsonOut   bool
	save      bool
	failOn    string
}

func newScanCmd(a *app) *cobra.Command {
	o := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <target>...",
		Short: "Scan files or URLs for sensitive information",
		Long: `Scan applies every enabled rule to each target. Targets are file:// URIs,
plain paths, directories, glob patterns or http(s):// URLs. Directories and
globs are expanded into their text files, each reported as its own target.
A target that cannot be read is reported and does not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, a, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.name, "name", "n", "", "detection name (default: first target)")
	f.StringVar(&o.projectID, "project", "", "project whose rules apply")
	f.StringVarP(&o.rulesPath, "rules", "r", "", "YAML rule set (overrides database and config)")
	f.StringSliceVar(&o.ruleIDs, "rule-ids", nil, "only apply these rule IDs")
	f.StringVar(&o.report, "report", "", "also write a report: html, json, csv or txt")
	f.StringVarP(&o.output, "output", "o", "", "report directory (default report.output_dir)")
	f.BoolVar(&o.jsonOut, "json", false, "print the detection result as JSON instead of a summary")
	f.BoolVar(&o.save, "save", false, "store the result in the database")
	f.StringVar(&o.failOn, "fail-on", "", "exit with status 2 when a finding is at least this risk level")
	return cmd
}

func runScan(cmd *cobra.Command, a *app, o *scanOptions, args []string) error {
	ctx := cmd.Context()

	var threshold core.RiskLevel
	if o.failOn != "" {
		threshold = core.RiskLevel(strings.ToLower(o.failOn))
		if !threshold.Valid() {
			return core.NewError(core.KindInvalidField, "parse flags", "fail-on", fmt.Errorf("unknown risk level %q", o.failOn))
		}
	}

	var format report.Format
	if o.report != "" {
		f, err := report.ParseFormat(o.report)
		if err != nil {
			return err
		}
		format = f
	}

	src, err := a.ruleSource(ctx, o.rulesPath)
	if err != nil {
		return err
	}

	targets := make([]string, len(args))
	for i, arg := range args {
		targets[i] = normalizeTarget(arg)
	}
	name := o.name
	if name == "" {
		name = targets[0]
	}

	result, runErr := a.engine(src).Run(ctx, core.ScanRequest{
		ID:        uuid.NewString(),
		ProjectID: o.projectID,
		Name:      name,
		Targets:   targets,
		RuleIDs:   o.ruleIDs,
	})
	if result == nil {
		return runErr
	}

	if o.save {
		db, err := a.requireStore()
		if err != nil {
			return err
		}
		if err := db.PutResult(ctx, result); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if o.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		printSummary(out, result)
	}

	if format != "" {
		dir := o.output
		if dir == "" {
			dir = a.cfg.Report.OutputDir
		}
		opts, err := a.defaultReportOptions()
		if err != nil {
			return err
		}
		path, err := writeReport(result, format, opts, dir)
		if err != nil {
			return err
		}
		if !o.jsonOut {
			colorCyan.Fprintf(out, "Report written to %s\n", path)
		}
	}

	if runErr != nil {
		return runErr
	}
	if threshold != "" && exceeds(result.Findings, threshold) {
		return errFindings
	}
	return nil
}

// normalizeTarget turns plain paths into absolute file:// URIs
func normalizeTarget(arg string) string {
	if strings.Contains(arg, "://") {
		return arg
	}
	return provider.TargetOf(arg)
}

func exceeds(findings []core.Finding, threshold core.RiskLevel) bool {
	for _, f := range findings {
		if f.RiskLevel.Rank() >= threshold.Rank() {
			return true
		}
	}
	return false
}

func writeReport(result *core.DetectionResult, format report.Format, opts report.Options, dir string) (string, error) {
	rep, err := report.Render(result, format, opts)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, rep.Filename)
	if err := os.WriteFile(path, rep.Content, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func printSummary(w io.Writer, r *core.DetectionResult) {
	status := colorGreen
	if r.Status == core.StatusFailed {
		status = colorRed
	}
	fmt.Fprintf(w, "Detection %s (%s)\n", r.Name, r.ID)
	status.Fprintf(w, "Status: %s  ", r.Status)
	fmt.Fprintf(w, "targets %d/%d, findings %d\n", r.FinishCount, r.TotalCount, len(r.Findings))

	for _, level := range core.RiskLevels {
		n := r.Summary.RiskLevelCount[level]
		c := colorCyan
		switch level {
		case core.RiskHigh:
			c = colorRed
		case core.RiskMedium:
			c = colorYellow
		}
		c.Fprintf(w, "  %-6s %d\n", level, n)
	}

	for _, te := range r.TargetErrors {
		colorRed.Fprintf(w, "  ! %s: %s\n", te.Target, te.Error)
	}

	for _, f := range r.Findings {
		line := "-"
		if f.LineNumber > 0 {
			line = fmt.Sprint(f.LineNumber)
		}
		fmt.Fprintf(w, "  [%s] %s %s:%s %s\n", f.RiskLevel, f.RuleName, f.Target, line, f.MatchedText)
	}
}
