package report

import (
	"fmt"
	"strings"

	"github.com/SamuelRCrider/leakguard/core"
)

// ParseSort validates user-supplied sort settings
func ParseSort(by, order string) (SortBy, SortOrder, error) {
	var sortBy SortBy
	switch SortBy(by) {
	case SortInsertion, SortRiskLevel, SortCategory, SortTarget, SortCreatedAt:
		sortBy = SortBy(by)
	case "time":
		sortBy = SortCreatedAt
	default:
		return "", "", core.NewError(core.KindInvalidField, "parse sort", by, fmt.Errorf("unknown sort field"))
	}

	switch SortOrder(strings.ToLower(order)) {
	case "", SortAsc:
		return sortBy, SortAsc, nil
	case SortDesc:
		return sortBy, SortDesc, nil
	default:
		return "", "", core.NewError(core.KindInvalidField, "parse sort", order, fmt.Errorf("sort order must be asc or desc"))
	}
}

// ParseRiskLevels parses a comma separated list such as "high,medium"
func ParseRiskLevels(list string) ([]core.RiskLevel, error) {
	var out []core.RiskLevel
	for _, item := range splitList(list) {
		level := core.RiskLevel(strings.ToLower(item))
		if !level.Valid() {
			return nil, core.NewError(core.KindInvalidField, "parse risk levels", item, fmt.Errorf("unknown risk level"))
		}
		out = append(out, level)
	}
	return out, nil
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParseCategories splits a comma separated category list
func ParseCategories(list string) []string {
	return splitList(list)
}
