package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	return func() time.Time { return fixedTime }
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Finding{
		{RiskLevel: RiskHigh, Category: "api_key"},
		{RiskLevel: RiskHigh, Category: "jwt_secret"},
		{RiskLevel: RiskMedium, Category: "api_key"},
	})

	assert.Equal(t, 3, s.TotalFindings)
	assert.Equal(t, map[RiskLevel]int{RiskHigh: 2, RiskMedium: 1, RiskLow: 0}, s.RiskLevelCount)
	assert.Equal(t, map[string]int{"api_key": 2, "jwt_secret": 1}, s.CategoryCount)
	assert.Equal(t, []string{"api_key", "jwt_secret"}, s.Categories())

	empty := Summarize(nil)
	assert.Zero(t, empty.TotalFindings)
	assert.Len(t, empty.RiskLevelCount, 3)
	assert.Empty(t, empty.CategoryCount)
}

func TestAggregateCompleted(t *testing.T) {
	meta := DetectionMeta{ID: "det-1", ProjectID: "p", Name: "nightly", Targets: []string{"file:///a", "file:///b"}}
	result := Aggregate(meta, []TargetResult{
		{Target: "file:///a", Findings: []Finding{{ID: "1", RiskLevel: RiskHigh, Category: "x"}}},
		{Target: "file:///b", Findings: []Finding{{ID: "2", RiskLevel: RiskLow, Category: "y"}}},
	}, fixedClock())

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 2, result.FinishCount)
	assert.Equal(t, 100.0, result.Progress)
	assert.Equal(t, fixedTime, result.StartTime)
	require.NotNil(t, result.EndTime)
	assert.Equal(t, fixedTime, *result.EndTime)
	assert.Equal(t, []string{"1", "2"}, []string{result.Findings[0].ID, result.Findings[1].ID})
	assert.Equal(t, 2, result.Summary.TotalFindings)
}

// TestAggregateTargetError keeps other targets' findings when one fails
func TestAggregateTargetError(t *testing.T) {
	meta := DetectionMeta{Name: "n", Targets: []string{"file:///a", "https://down.example"}}
	result := Aggregate(meta, []TargetResult{
		{Target: "file:///a", Findings: []Finding{{ID: "1", RiskLevel: RiskHigh}}},
		{Target: "https://down.example", Err: errors.New("connection refused")},
	}, fixedClock())

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 2, result.FinishCount)
	assert.Len(t, result.Findings, 1)
	require.Len(t, result.TargetErrors, 1)
	assert.Equal(t, "https://down.example", result.TargetErrors[0].Target)
	assert.Equal(t, "connection refused", result.TargetErrors[0].Error)
	assert.NotEmpty(t, result.ID)
}

func TestAggregatorCancel(t *testing.T) {
	agg := NewAggregator(DetectionMeta{Targets: []string{"a", "b", "c", "d"}}, fixedClock())
	assert.Equal(t, StatusRunning, agg.result.Status)
	assert.Nil(t, agg.result.EndTime)

	agg.Add(TargetResult{Target: "a"})
	agg.Cancel()
	result := agg.Finish()

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 1, result.FinishCount)
	assert.Equal(t, 25.0, result.Progress)
}

func TestAggregateNoTargets(t *testing.T) {
	result := Aggregate(DetectionMeta{Name: "empty"}, nil, fixedClock())
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 100.0, result.Progress)
	assert.NotNil(t, result.Findings)
}
