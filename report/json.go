package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/SamuelRCrider/leakguard/core"
)

type jsonMetadata struct {
	DetectionID   string               `json:"detectionId"`
	ProjectID     string               `json:"projectId"`
	Name          string               `json:"name"`
	Targets       []string             `json:"targets"`
	Status        core.DetectionStatus `json:"status"`
	StartTime     time.Time            `json:"startTime"`
	EndTime       *time.Time           `json:"endTime,omitempty"`
	Progress      float64              `json:"progress"`
	TotalCount    int                  `json:"totalCount"`
	FinishCount   int                  `json:"finishCount"`
	TotalFindings int                  `json:"totalFindings"`
	FilteredCount int                  `json:"filteredCount"`
	TargetErrors  []core.TargetError   `json:"targetErrors,omitempty"`
	GeneratedAt   time.Time            `json:"generatedAt"`
}

type jsonSummary struct {
	TotalFindings    int                    `json:"totalFindings"`
	RiskLevelCount   map[core.RiskLevel]int `json:"riskLevelCount"`
	CategoryCount    map[string]int         `json:"categoryCount"`
	TargetStatistics map[string]int         `json:"targetStatistics"`
}

type jsonReport struct {
	Metadata jsonMetadata   `json:"metadata"`
	Summary  *jsonSummary   `json:"summary,omitempty"`
	Findings []core.Finding `json:"findings,omitempty"`
}

// renderJSON is the canonical form: nothing is truncated
func renderJSON(v *view) ([]byte, error) {
	r := v.result
	doc := jsonReport{
		Metadata: jsonMetadata{
			DetectionID:   r.ID,
			ProjectID:     r.ProjectID,
			Name:          r.Name,
			Targets:       r.Targets,
			Status:        r.Status,
			StartTime:     r.StartTime,
			EndTime:       r.EndTime,
			Progress:      r.Progress,
			TotalCount:    r.TotalCount,
			FinishCount:   r.FinishCount,
			TotalFindings: v.summary.TotalFindings,
			FilteredCount: len(v.findings),
			TargetErrors:  r.TargetErrors,
			GeneratedAt:   v.generatedAt,
		},
	}

	if !v.opts.OmitSummary {
		targets := make(map[string]int, len(v.targets))
		for _, t := range v.targets {
			targets[t.Name] = t.Count
		}
		doc.Summary = &jsonSummary{
			TotalFindings:    v.summary.TotalFindings,
			RiskLevelCount:   v.summary.RiskLevelCount,
			CategoryCount:    v.summary.CategoryCount,
			TargetStatistics: targets,
		}
	}
	if !v.opts.OmitDetails {
		doc.Findings = v.findings
	}

	return json.MarshalIndent(doc, "", "  ")
}

// ParseJSONReport rebuilds a detection result from a JSON report. A report
// rendered with default options reproduces the original result exactly;
// the generation time is returned separately.
func ParseJSONReport(data []byte) (*core.DetectionResult, time.Time, error) {
	var doc jsonReport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse JSON report: %w", err)
	}

	m := doc.Metadata
	findings := doc.Findings
	if findings == nil {
		findings = []core.Finding{}
	}

	result := &core.DetectionResult{
		ID:           m.DetectionID,
		ProjectID:    m.ProjectID,
		Name:         m.Name,
		Targets:      m.Targets,
		Status:       m.Status,
		StartTime:    m.StartTime,
		EndTime:      m.EndTime,
		Progress:     m.Progress,
		Findings:     findings,
		Summary:      core.Summarize(findings),
		TotalCount:   m.TotalCount,
		FinishCount:  m.FinishCount,
		TargetErrors: m.TargetErrors,
	}
	return result, m.GeneratedAt, nil
}
