package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SamuelRCrider/leakguard/core"
	"github.com/SamuelRCrider/leakguard/report"
)

type reportOptions struct {
	format    string
	sortBy    string
	sortOrder string
	risk      string
	category  string
	noSummary bool
	noDetails bool
	output    string
	stdout    bool
	list      bool
	projectID string
}

func newReportCmd(a *app) *cobra.Command {
	o := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report <result.json | detection-id>",
		Short: "Render a detection result as html, json, csv or txt",
		Long: `Report reads a detection result from a JSON file (the output of
"scan --json" or a json report) or, when the argument is not a file,
loads it from the database by detection ID. With --list it prints the
results stored in the database instead.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if o.list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.list {
				return runListResults(cmd, a, o.projectID)
			}
			return runReport(cmd, a, o, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.format, "format", "f", "", "html, json, csv or txt (default report.format)")
	f.StringVar(&o.sortBy, "sort-by", "", "riskLevel, category, target or createdAt")
	f.StringVar(&o.sortOrder, "sort-order", "", "asc or desc")
	f.StringVar(&o.risk, "risk-level", "", "comma separated risk levels to list")
	f.StringVar(&o.category, "category", "", "comma separated categories to list")
	f.BoolVar(&o.noSummary, "no-summary", false, "leave out the summary section")
	f.BoolVar(&o.noDetails, "no-details", false, "leave out the findings")
	f.StringVarP(&o.output, "output", "o", "", "report directory (default report.output_dir)")
	f.BoolVar(&o.stdout, "stdout", false, "write the report to stdout instead of a file")
	f.BoolVar(&o.list, "list", false, "list stored results, newest first")
	f.StringVar(&o.projectID, "project", "", "with --list, only this project's results")
	return cmd
}

func runListResults(cmd *cobra.Command, a *app, projectID string) error {
	db, err := a.requireStore()
	if err != nil {
		return err
	}
	infos, err := db.ListResults(cmd.Context(), projectID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROJECT\tSTATUS\tSTARTED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", info.ID, info.Name, info.ProjectID, info.Status, info.StartTime.Format(time.DateTime))
	}
	return tw.Flush()
}

func runReport(cmd *cobra.Command, a *app, o *reportOptions, source string) error {
	name := o.format
	if name == "" {
		name = a.cfg.Report.Format
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		return err
	}

	opts, err := a.defaultReportOptions()
	if err != nil {
		return err
	}
	if o.sortBy != "" || o.sortOrder != "" {
		if opts.SortBy, opts.SortOrder, err = report.ParseSort(o.sortBy, o.sortOrder); err != nil {
			return err
		}
	}
	if opts.FilterRiskLevel, err = report.ParseRiskLevels(o.risk); err != nil {
		return err
	}
	opts.FilterCategory = report.ParseCategories(o.category)
	opts.OmitSummary = o.noSummary
	opts.OmitDetails = o.noDetails

	result, err := a.loadResult(cmd, source)
	if err != nil {
		return err
	}

	if o.stdout {
		rep, err := report.Render(result, format, opts)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(rep.Content)
		return err
	}

	dir := o.output
	if dir == "" {
		dir = a.cfg.Report.OutputDir
	}
	path, err := writeReport(result, format, opts, dir)
	if err != nil {
		return err
	}

	a.audit.Record(core.AuditEvent{
		EventType:   "report_rendered",
		Severity:    core.SeverityInfo,
		DetectionID: result.ID,
		ProjectID:   result.ProjectID,
		Metadata:    map[string]string{"format": string(format), "path": path},
	})
	colorGreen.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
	return nil
}

// defaultReportOptions applies the report.* config settings
func (a *app) defaultReportOptions() (report.Options, error) {
	opts := report.Options{GeneratedAt: time.Now()}
	if a.cfg.Report.SortBy == "" {
		return opts, nil
	}
	var err error
	opts.SortBy, opts.SortOrder, err = report.ParseSort(a.cfg.Report.SortBy, a.cfg.Report.SortOrder)
	return opts, err
}

func (a *app) loadResult(cmd *cobra.Command, source string) (*core.DetectionResult, error) {
	data, err := os.ReadFile(source)
	if err == nil {
		return decodeResult(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}

	db, err := a.store()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, core.NewError(core.KindResultNotFound, "load result", source,
			errors.New("not a file and no database configured"))
	}
	return db.Result(cmd.Context(), source)
}

// decodeResult accepts a plain detection result or a json report
func decodeResult(data []byte) (*core.DetectionResult, error) {
	if bytes.Contains(data, []byte(`"metadata"`)) {
		result, _, err := report.ParseJSONReport(data)
		if err == nil {
			return result, nil
		}
	}

	var result core.DetectionResult
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&result); err != nil {
		return nil, core.NewError(core.KindInvalidField, "load result", "json", err)
	}
	if strings.TrimSpace(result.ID) == "" {
		return nil, core.NewError(core.KindMissingRequiredField, "load result", "id", errors.New("result has no id"))
	}
	result.Summary = core.Summarize(result.Findings)
	return &result, nil
}
