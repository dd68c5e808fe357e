package core

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DetectionStatus is the lifecycle state of a detection run
type DetectionStatus string

const (
	StatusPending   DetectionStatus = "pending"
	StatusRunning   DetectionStatus = "running"
	StatusCompleted DetectionStatus = "completed"
	StatusFailed    DetectionStatus = "failed"
)

// TargetError records a target that could not be fetched or scanned
type TargetError struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

// Summary is derived from findings and never stored independently
type Summary struct {
	TotalFindings  int               `json:"totalFindings"`
	RiskLevelCount map[RiskLevel]int `json:"riskLevelCount"`
	CategoryCount  map[string]int    `json:"categoryCount"`
}

// Summarize counts findings by risk level and category. Every risk level
// is present in the result; categories appear only when observed.
func Summarize(findings []Finding) Summary {
	s := Summary{
		TotalFindings:  len(findings),
		RiskLevelCount: make(map[RiskLevel]int, len(RiskLevels)),
		CategoryCount:  make(map[string]int),
	}
	for _, level := range RiskLevels {
		s.RiskLevelCount[level] = 0
	}
	for _, f := range findings {
		s.RiskLevelCount[f.RiskLevel]++
		s.CategoryCount[f.Category]++
	}
	return s
}

// Categories returns the observed category names sorted ascending
func (s Summary) Categories() []string {
	out := make([]string, 0, len(s.CategoryCount))
	for c := range s.CategoryCount {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// DetectionResult is the outcome of scanning a set of targets with a set of rules
type DetectionResult struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"projectId"`
	Name         string          `json:"name"`
	Targets      []string        `json:"targets"`
	Status       DetectionStatus `json:"status"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      *time.Time      `json:"endTime,omitempty"`
	Progress     float64         `json:"progress"`
	Findings     []Finding       `json:"findings"`
	Summary      Summary         `json:"summary"`
	TotalCount   int             `json:"totalCount"`
	FinishCount  int             `json:"finishCount"`
	TargetErrors []TargetError   `json:"targetErrors,omitempty"`
}

// DetectionMeta identifies a detection run before it starts
type DetectionMeta struct {
	ID        string
	ProjectID string
	Name      string
	Targets   []string
}

// TargetResult is everything learned about one target
type TargetResult struct {
	Target   string
	Findings []Finding
	Err      error
}

// Aggregator folds per-target results into one DetectionResult.
// It is not safe for concurrent use: exactly one goroutine owns it.
type Aggregator struct {
	result   *DetectionResult
	now      func() time.Time
	canceled bool
}

// NewAggregator starts a running detection over meta.Targets.
// A nil now uses time.Now.
func NewAggregator(meta DetectionMeta, now func() time.Time) *Aggregator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	return &Aggregator{
		now: now,
		result: &DetectionResult{
			ID:         meta.ID,
			ProjectID:  meta.ProjectID,
			Name:       meta.Name,
			Targets:    append([]string(nil), meta.Targets...),
			Status:     StatusRunning,
			StartTime:  now(),
			Findings:   []Finding{},
			TotalCount: len(meta.Targets),
			Summary:    Summarize(nil),
		},
	}
}

// Add records the outcome of one target. A target error flips the final
// status to failed but keeps every finding gathered so far.
func (a *Aggregator) Add(tr TargetResult) {
	r := a.result
	if tr.Err != nil {
		r.TargetErrors = append(r.TargetErrors, TargetError{Target: tr.Target, Error: tr.Err.Error()})
	}
	r.Findings = append(r.Findings, tr.Findings...)
	if r.FinishCount < r.TotalCount {
		r.FinishCount++
	}
	r.Progress = progress(r.FinishCount, r.TotalCount)
}

// Cancel marks the run as interrupted; Finish will report failed.
func (a *Aggregator) Cancel() {
	a.canceled = true
}

// Finish closes the run and returns the result. Status is completed only
// when every target finished without error.
func (a *Aggregator) Finish() *DetectionResult {
	r := a.result
	end := a.now()
	r.EndTime = &end
	r.Progress = progress(r.FinishCount, r.TotalCount)
	r.Summary = Summarize(r.Findings)

	if !a.canceled && r.FinishCount == r.TotalCount && len(r.TargetErrors) == 0 {
		r.Status = StatusCompleted
	} else {
		r.Status = StatusFailed
	}
	return r
}

func progress(finished, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(finished) * 100 / float64(total)
}

// Aggregate folds a complete set of target results in order
func Aggregate(meta DetectionMeta, results []TargetResult, now func() time.Time) *DetectionResult {
	agg := NewAggregator(meta, now)
	for _, tr := range results {
		agg.Add(tr)
	}
	return agg.Finish()
}
