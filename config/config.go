// Package config loads leakguard settings from a YAML file, LEAKGUARD_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SamuelRCrider/leakguard/core"
)

// EnvPrefix prefixes environment overrides, e.g. LEAKGUARD_SCAN_WORKERS
const EnvPrefix = "LEAKGUARD"

type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	Audit    AuditConfig    `mapstructure:"audit" yaml:"audit"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
}

type LogConfig struct {
	// debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	Debug bool   `mapstructure:"debug" yaml:"debug"`
}

type ScanConfig struct {
	Workers        int   `mapstructure:"workers" yaml:"workers"`
	MaxContentSize int64 `mapstructure:"max_content_size" yaml:"max_content_size"`

	// YAML rule set used when no database is configured. Empty means the built-in rules.
	RulesPath string `mapstructure:"rules_path" yaml:"rules_path"`

	// Directory targets include subdirectories
	Recursive bool `mapstructure:"recursive" yaml:"recursive"`

	// Targets and matched text exempt from every rule
	Whitelist []core.WhitelistEntry `mapstructure:"whitelist" yaml:"whitelist"`
}

type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type AuditConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	RotationSize  int64  `mapstructure:"rotation_size" yaml:"rotation_size"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
	Console       bool   `mapstructure:"console" yaml:"console"`
}

type DatabaseConfig struct {
	// Empty disables persistence
	Path        string `mapstructure:"path" yaml:"path"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	JournalMode string `mapstructure:"journal_mode" yaml:"journal_mode"`
	Synchronous string `mapstructure:"synchronous" yaml:"synchronous"`
}

type ReportConfig struct {
	Format    string `mapstructure:"format" yaml:"format"`
	SortBy    string `mapstructure:"sort_by" yaml:"sort_by"`
	SortOrder string `mapstructure:"sort_order" yaml:"sort_order"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.debug", false)

	v.SetDefault("scan.workers", 4)
	v.SetDefault("scan.max_content_size", core.DefaultMaxContentSize)
	v.SetDefault("scan.rules_path", "")
	v.SetDefault("scan.recursive", true)

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.user_agent", "leakguard/1.0")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "audit.log")
	v.SetDefault("audit.level", string(core.AuditLogLevelStandard))
	v.SetDefault("audit.rotation_size", 100*1024*1024)
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.console", false)

	v.SetDefault("database.path", "")
	v.SetDefault("database.log_level", "silent")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.synchronous", "NORMAL")

	v.SetDefault("report.format", "html")
	v.SetDefault("report.sort_by", "")
	v.SetDefault("report.sort_order", "desc")
	v.SetDefault("report.output_dir", ".")

	v.SetDefault("http.addr", ":8080")
}

// Load reads configPath, or searches ./leakguard.yaml and
// $HOME/.leakguard/config.yaml when it is empty. A missing file is only
// an error when configPath was given explicitly.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("leakguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.leakguard")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.Scan.Workers < 1 {
		return core.NewError(core.KindInvalidField, "load config", "scan.workers",
			fmt.Errorf("must be >= 1 (got %d)", c.Scan.Workers))
	}
	if c.Scan.MaxContentSize < 1 {
		return core.NewError(core.KindInvalidField, "load config", "scan.max_content_size",
			fmt.Errorf("must be >= 1 (got %d)", c.Scan.MaxContentSize))
	}
	if _, err := c.ScanWhitelist(); err != nil {
		return err
	}
	switch core.AuditLogLevel(c.Audit.Level) {
	case core.AuditLogLevelMinimal, core.AuditLogLevelStandard, core.AuditLogLevelVerbose:
	default:
		return core.NewError(core.KindInvalidField, "load config", "audit.level",
			fmt.Errorf("unknown audit level %q", c.Audit.Level))
	}
	return nil
}

// EngineConfig maps scan settings onto the engine
func (c *Config) EngineConfig() core.EngineConfig {
	return core.EngineConfig{Workers: c.Scan.Workers, MaxContentSize: int(c.Scan.MaxContentSize)}
}

// ScanWhitelist compiles scan.whitelist. It is nil when the list is empty.
func (c *Config) ScanWhitelist() (*core.Whitelist, error) {
	if len(c.Scan.Whitelist) == 0 {
		return nil, nil
	}
	w, err := core.NewWhitelist(c.Scan.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("invalid scan.whitelist: %w", err)
	}
	return w, nil
}

// AuditLogConfig maps audit settings onto core.AuditConfig
func (c *Config) AuditLogConfig() core.AuditConfig {
	return core.AuditConfig{
		Path:          c.Audit.Path,
		Level:         core.AuditLogLevel(c.Audit.Level),
		RotationSize:  c.Audit.RotationSize,
		RetentionDays: c.Audit.RetentionDays,
		Console:       c.Audit.Console,
	}
}
