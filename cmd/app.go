package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/SamuelRCrider/leakguard"
	"github.com/SamuelRCrider/leakguard/config"
	"github.com/SamuelRCrider/leakguard/core"
	"github.com/SamuelRCrider/leakguard/logging"
	"github.com/SamuelRCrider/leakguard/provider"
	"github.com/SamuelRCrider/leakguard/report"
	"github.com/SamuelRCrider/leakguard/store"
)

// app holds the process-wide dependencies built from config
type app struct {
	configPath string
	debug      bool

	cfg       *config.Config
	logger    *zap.SugaredLogger
	audit     *core.AuditLogger
	db        *store.Store
	whitelist *core.Whitelist

	// set when rules come from a YAML file
	manager   *core.RuleSetManager
	rulesPath string
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = logging.New(a.debug || cfg.Log.Debug, cfg.Log.Level)
	if err != nil {
		return err
	}

	a.whitelist, err = cfg.ScanWhitelist()
	if err != nil {
		return err
	}

	if cfg.Audit.Enabled {
		a.audit, err = core.NewAuditLogger(cfg.AuditLogConfig())
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		a.audit.WithLogger(a.logger)
	}
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			core.ReportError(a.logger, "Failed to close database", err)
		}
	}
	if err := a.audit.Close(); err != nil {
		core.ReportError(a.logger, "Failed to close audit log", err)
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

// store opens the configured database once. It returns nil when no
// database path is configured.
func (a *app) store() (*store.Store, error) {
	if a.db != nil || a.cfg.Database.Path == "" {
		return a.db, nil
	}
	db, err := store.Open(store.Options{
		Path:        a.cfg.Database.Path,
		LogLevel:    a.cfg.Database.LogLevel,
		JournalMode: a.cfg.Database.JournalMode,
		Synchronous: a.cfg.Database.Synchronous,
		Logger:      a.logger,
		Audit:       a.audit,
	})
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

// requireStore is store for commands that cannot run without a database
func (a *app) requireStore() (*store.Store, error) {
	db, err := a.store()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, core.NewError(core.KindMissingRequiredField, "open store", "database.path",
			errors.New("set database.path or LEAKGUARD_DATABASE_PATH"))
	}
	return db, nil
}

// ruleSource prefers the database; otherwise rules come from rulesPath
// (or scan.rules_path, or the built-in set). A new database is seeded
// with the built-in rules.
func (a *app) ruleSource(ctx context.Context, rulesPath string) (core.RuleSource, error) {
	db, err := a.store()
	if err != nil {
		return nil, err
	}
	if db != nil && rulesPath == "" {
		existing, err := db.ListRules(ctx, "")
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			added, err := db.ImportRules(ctx, core.DefaultRuleSet().Rules)
			if err != nil {
				return nil, err
			}
			a.logger.Infow("Seeded built-in rules", "count", added)
		}
		return db, nil
	}

	if rulesPath == "" {
		rulesPath = a.cfg.Scan.RulesPath
	}
	if rulesPath == "" {
		rules, err := leakguard.LoadRules("")
		if err != nil {
			return nil, err
		}
		return core.NewMemoryRuleSource(rules...), nil
	}

	// Older versions are archived next to the file when it is reloaded
	m := core.NewRuleSetManager(filepath.Dir(rulesPath), a.audit)
	if err := m.Load(rulesPath); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	a.rulesPath = rulesPath
	a.manager = m
	return m, nil
}

// results returns the database when configured, otherwise an in-memory store
func (a *app) results() (interface {
	report.ResultStore
	report.ResultWriter
}, error) {
	db, err := a.store()
	if err != nil {
		return nil, err
	}
	if db != nil {
		return db, nil
	}
	return report.NewMemoryResults(), nil
}

func (a *app) provider() core.ContentProvider {
	var client *http.Client
	if a.cfg.Fetch.Timeout > 0 {
		client = &http.Client{Timeout: a.cfg.Fetch.Timeout}
	}
	web := provider.NewHTTP(client, a.cfg.Scan.MaxContentSize, a.cfg.Fetch.UserAgent)
	return provider.NewMux().
		Handle("file", provider.File{MaxBytes: a.cfg.Scan.MaxContentSize, Recursive: a.cfg.Scan.Recursive}).
		Handle("http", web).
		Handle("https", web)
}

func (a *app) engine(src core.RuleSource) *core.Engine {
	return core.NewEngine(a.provider(), a.cfg.EngineConfig(),
		core.WithRuleSource(src),
		core.WithLogger(a.logger),
		core.WithAudit(a.audit),
		core.WithWhitelist(a.whitelist),
		core.WithClock(time.Now),
	)
}
