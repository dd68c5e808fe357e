package core

import (
	"context"
	"sync"
)

// ContentProvider fetches the text behind a target URI
type ContentProvider interface {
	Fetch(ctx context.Context, target string) (*Content, error)
}

// RuleSource resolves the rules a scan should apply.
// An empty ruleIDs means every enabled rule of the project.
type RuleSource interface {
	RulesFor(ctx context.Context, projectID string, ruleIDs []string) ([]Rule, error)
}

// MemoryRuleSource serves rules held in memory, e.g. from a YAML rule set
type MemoryRuleSource struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewMemoryRuleSource copies rules into a new source
func NewMemoryRuleSource(rules ...Rule) *MemoryRuleSource {
	return &MemoryRuleSource{rules: append([]Rule(nil), rules...)}
}

// Put appends rules
func (s *MemoryRuleSource) Put(rules ...Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rules...)
}

// RulesFor returns matching rules in insertion order. Rules without a
// project ID are global and apply to every project. Requesting an
// unknown ID is an error.
func (s *MemoryRuleSource) RulesFor(ctx context.Context, projectID string, ruleIDs []string) ([]Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inProject := func(r Rule) bool {
		return r.ProjectID == "" || projectID == "" || r.ProjectID == projectID
	}

	if len(ruleIDs) == 0 {
		var out []Rule
		for _, r := range s.rules {
			if r.Enabled && inProject(r) {
				out = append(out, r)
			}
		}
		return out, nil
	}

	out := make([]Rule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		found := false
		for _, r := range s.rules {
			if r.ID == id && inProject(r) {
				out = append(out, r)
				found = true
				break
			}
		}
		if !found {
			return nil, NewError(KindRuleNotFound, "resolve rules", id, nil)
		}
	}
	return out, nil
}

// RulesFor serves the active rule set with MemoryRuleSource semantics
func (m *RuleSetManager) RulesFor(ctx context.Context, projectID string, ruleIDs []string) ([]Rule, error) {
	return NewMemoryRuleSource(m.Rules()...).RulesFor(ctx, projectID, ruleIDs)
}
