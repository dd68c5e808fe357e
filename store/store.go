// Package store persists rules and finished detection results in SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/SamuelRCrider/leakguard/core"
)

// Options configures Open
type Options struct {
	Path        string
	LogLevel    string // silent, error, warn, info
	JournalMode string // WAL
	Synchronous string // NORMAL

	Logger *zap.SugaredLogger
	Audit  *core.AuditLogger
}

// Store is a GORM-backed rule source and result store
type Store struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
	audit  *core.AuditLogger
}

var _ core.RuleSource = (*Store)(nil)

// ruleRecord is the persisted form of core.Rule. Seq keeps insertion order.
type ruleRecord struct {
	Seq                   uint     `gorm:"primaryKey;autoIncrement"`
	RuleID                string   `gorm:"uniqueIndex;size:64;not null"`
	ProjectID             string   `gorm:"index;size:64"`
	Name                  string   `gorm:"not null"`
	Description           string
	Type                  string   `gorm:"size:16"`
	Pattern               string   `gorm:"not null"`
	Category              string   `gorm:"index;size:64"`
	RiskLevel             string   `gorm:"size:16"`
	Tags                  []string `gorm:"serializer:json"`
	Enabled               bool
	ContextLines          int
	Examples              []string `gorm:"serializer:json"`
	FalsePositivePatterns []string `gorm:"serializer:json"`
	Supersedes            string   `gorm:"index;size:64"`
	CreatedAt             time.Time
}

func (ruleRecord) TableName() string { return "rules" }

type resultRecord struct {
	ID        string                `gorm:"primaryKey;size:64"`
	ProjectID string                `gorm:"index;size:64"`
	Name      string
	Status    string                `gorm:"size:16"`
	StartTime time.Time             `gorm:"index"`
	Result    *core.DetectionResult `gorm:"serializer:json"`
	UpdatedAt time.Time
}

func (resultRecord) TableName() string { return "detection_results" }

// Open creates the database file if needed and migrates the schema
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, core.NewError(core.KindMissingRequiredField, "open store", "", errors.New("database path is empty"))
	}
	if opts.JournalMode == "" {
		opts.JournalMode = "WAL"
	}
	if opts.Synchronous == "" {
		opts.Synchronous = "NORMAL"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir %s: %w", dir, err)
		}
	}

	var level gormlogger.LogLevel
	switch strings.ToLower(opts.LogLevel) {
	case "error":
		level = gormlogger.Error
	case "warn":
		level = gormlogger.Warn
	case "info":
		level = gormlogger.Info
	default:
		level = gormlogger.Silent
	}

	db, err := gorm.Open(sqlite.Open(opts.Path), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(level),
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", opts.Path, err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode = %s;", opts.JournalMode),
		fmt.Sprintf("PRAGMA synchronous = %s;", opts.Synchronous),
		"PRAGMA temp_store = MEMORY;",
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to exec pragma %s: %w", p, err)
		}
	}

	if err := db.AutoMigrate(&ruleRecord{}, &resultRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Infow("Database initialized", "path", opts.Path, "journal_mode", opts.JournalMode)
	return &Store{db: db, logger: logger, audit: opts.Audit}, nil
}

// Close releases the underlying connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func toRecord(r core.Rule) ruleRecord {
	return ruleRecord{
		RuleID:                r.ID,
		ProjectID:             r.ProjectID,
		Name:                  r.Name,
		Description:           r.Description,
		Type:                  string(r.Type),
		Pattern:               r.Pattern,
		Category:              r.Category,
		RiskLevel:             string(r.RiskLevel),
		Tags:                  r.Tags,
		Enabled:               r.Enabled,
		ContextLines:          r.ContextLines,
		Examples:              r.Examples,
		FalsePositivePatterns: r.FalsePositivePatterns,
		Supersedes:            r.Supersedes,
		CreatedAt:             r.CreatedAt,
	}
}

func (rec ruleRecord) rule() core.Rule {
	return core.Rule{
		ID:                    rec.RuleID,
		ProjectID:             rec.ProjectID,
		Name:                  rec.Name,
		Description:           rec.Description,
		Type:                  core.RuleType(rec.Type),
		Pattern:               rec.Pattern,
		Category:              rec.Category,
		RiskLevel:             core.RiskLevel(rec.RiskLevel),
		Tags:                  rec.Tags,
		Enabled:               rec.Enabled,
		ContextLines:          rec.ContextLines,
		Examples:              rec.Examples,
		FalsePositivePatterns: rec.FalsePositivePatterns,
		Supersedes:            rec.Supersedes,
		CreatedAt:             rec.CreatedAt,
	}
}

// CreateRule validates rule and stores it. An existing ID is never overwritten.
func (s *Store) CreateRule(ctx context.Context, rule core.Rule) (core.Rule, error) {
	created, err := core.NewRule(rule)
	if err != nil {
		return core.Rule{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertRule(tx, created)
	})
	if err != nil {
		return core.Rule{}, err
	}

	s.audit.Record(core.AuditEvent{
		EventType: "rule_created",
		Severity:  core.SeverityInfo,
		ProjectID: created.ProjectID,
		Metadata:  map[string]string{"rule_id": created.ID, "rule_name": created.Name},
	})
	return created, nil
}

func insertRule(tx *gorm.DB, rule core.Rule) error {
	var count int64
	if err := tx.Model(&ruleRecord{}).Where("rule_id = ?", rule.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check rule %s: %w", rule.ID, err)
	}
	if count > 0 {
		return core.NewError(core.KindRuleImmutable, "create rule", rule.ID, errors.New("rule exists, revise it instead"))
	}
	rec := toRecord(rule)
	if err := tx.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert rule %s: %w", rule.ID, err)
	}
	return nil
}

// ImportRules stores every rule of a rule set whose ID is not yet known
// and returns how many were added. Existing rules are left untouched.
func (s *Store) ImportRules(ctx context.Context, rules []core.Rule) (int, error) {
	added := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rules {
			created, err := core.NewRule(r)
			if err != nil {
				return err
			}
			if err := insertRule(tx, created); err != nil {
				if errors.Is(err, core.ErrRuleImmutable) {
					continue
				}
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debugw("Imported rules", "offered", len(rules), "added", added)
	return added, nil
}

// Rule loads a single rule by ID, disabled revisions included
func (s *Store) Rule(ctx context.Context, id string) (core.Rule, error) {
	var rec ruleRecord
	err := s.db.WithContext(ctx).Where("rule_id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Rule{}, core.NewError(core.KindRuleNotFound, "load rule", id, nil)
	}
	if err != nil {
		return core.Rule{}, fmt.Errorf("failed to load rule %s: %w", id, err)
	}
	return rec.rule(), nil
}

// ListRules returns every rule of a project (plus global rules) in
// insertion order, disabled revisions included. An empty projectID lists all.
func (s *Store) ListRules(ctx context.Context, projectID string) ([]core.Rule, error) {
	var recs []ruleRecord
	q := s.db.WithContext(ctx).Order("seq")
	if projectID != "" {
		q = q.Where("(project_id = ? OR project_id = '')", projectID)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	out := make([]core.Rule, len(recs))
	for i, rec := range recs {
		out[i] = rec.rule()
	}
	return out, nil
}

// RulesFor implements core.RuleSource with the same semantics as
// core.MemoryRuleSource.
func (s *Store) RulesFor(ctx context.Context, projectID string, ruleIDs []string) ([]core.Rule, error) {
	if len(ruleIDs) == 0 {
		var recs []ruleRecord
		q := s.db.WithContext(ctx).Where("enabled = ?", true).Order("seq")
		if projectID != "" {
			q = q.Where("(project_id = ? OR project_id = '')", projectID)
		}
		if err := q.Find(&recs).Error; err != nil {
			return nil, fmt.Errorf("failed to query rules: %w", err)
		}
		out := make([]core.Rule, len(recs))
		for i, rec := range recs {
			out[i] = rec.rule()
		}
		return out, nil
	}

	var recs []ruleRecord
	if err := s.db.WithContext(ctx).Where("rule_id IN ?", ruleIDs).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	byID := make(map[string]ruleRecord, len(recs))
	for _, rec := range recs {
		byID[rec.RuleID] = rec
	}

	out := make([]core.Rule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		rec, ok := byID[id]
		if !ok || (projectID != "" && rec.ProjectID != "" && rec.ProjectID != projectID) {
			return nil, core.NewError(core.KindRuleNotFound, "resolve rules", id, nil)
		}
		out = append(out, rec.rule())
	}
	return out, nil
}

// SetEnabled toggles a rule. This is the only in-place edit allowed.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&ruleRecord{}).Where("rule_id = ?", id).Update("enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("failed to update rule %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return core.NewError(core.KindRuleNotFound, "set enabled", id, nil)
	}
	return nil
}

// ReviseRule stores a new revision of rule id with edit applied and
// disables the old one. Only the latest revision can be revised.
func (s *Store) ReviseRule(ctx context.Context, id string, edit func(*core.Rule)) (core.Rule, error) {
	var created core.Rule
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old ruleRecord
		err := tx.Where("rule_id = ?", id).First(&old).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return core.NewError(core.KindRuleNotFound, "revise rule", id, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to load rule %s: %w", id, err)
		}

		var successors int64
		if err := tx.Model(&ruleRecord{}).Where("supersedes = ?", id).Count(&successors).Error; err != nil {
			return fmt.Errorf("failed to check revisions of %s: %w", id, err)
		}
		if successors > 0 {
			return core.NewError(core.KindRuleImmutable, "revise rule", id, errors.New("rule already superseded"))
		}

		next := old.rule()
		next.Tags = append([]string(nil), next.Tags...)
		next.Examples = append([]string(nil), next.Examples...)
		next.FalsePositivePatterns = append([]string(nil), next.FalsePositivePatterns...)
		edit(&next)
		next.ID = ""
		next.CreatedAt = time.Time{}
		next.Supersedes = old.RuleID

		created, err = core.NewRule(next)
		if err != nil {
			return err
		}
		if err := tx.Model(&ruleRecord{}).Where("rule_id = ?", id).Update("enabled", false).Error; err != nil {
			return fmt.Errorf("failed to disable rule %s: %w", id, err)
		}
		return insertRule(tx, created)
	})
	if err != nil {
		return core.Rule{}, err
	}

	s.audit.Record(core.AuditEvent{
		EventType: "rule_revised",
		Severity:  core.SeverityInfo,
		ProjectID: created.ProjectID,
		Metadata:  map[string]string{"rule_id": created.ID, "supersedes": id},
	})
	return created, nil
}

// PutResult stores or replaces a detection result under its ID
func (s *Store) PutResult(ctx context.Context, result *core.DetectionResult) error {
	if result == nil || result.ID == "" {
		return core.NewError(core.KindMissingRequiredField, "store result", "", errors.New("detection result has no id"))
	}
	rec := resultRecord{
		ID:        result.ID,
		ProjectID: result.ProjectID,
		Name:      result.Name,
		Status:    string(result.Status),
		StartTime: result.StartTime,
		Result:    result,
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to store result %s: %w", result.ID, err)
	}
	return nil
}

// Result loads a stored detection result. It satisfies report.ResultStore.
func (s *Store) Result(ctx context.Context, id string) (*core.DetectionResult, error) {
	var rec resultRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.NewError(core.KindResultNotFound, "lookup result", id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result %s: %w", id, err)
	}
	if rec.Result == nil {
		return nil, core.NewError(core.KindResultNotFound, "lookup result", id, errors.New("empty payload"))
	}
	return rec.Result, nil
}

// ResultInfo is a stored result without its findings
type ResultInfo struct {
	ID        string
	ProjectID string
	Name      string
	Status    core.DetectionStatus
	StartTime time.Time
}

// ListResults returns stored results newest first, optionally for one project
func (s *Store) ListResults(ctx context.Context, projectID string) ([]ResultInfo, error) {
	var recs []resultRecord
	q := s.db.WithContext(ctx).Select("id", "project_id", "name", "status", "start_time").Order("start_time DESC")
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	out := make([]ResultInfo, len(recs))
	for i, rec := range recs {
		out[i] = ResultInfo{
			ID:        rec.ID,
			ProjectID: rec.ProjectID,
			Name:      rec.Name,
			Status:    core.DetectionStatus(rec.Status),
			StartTime: rec.StartTime,
		}
	}
	return out, nil
}
