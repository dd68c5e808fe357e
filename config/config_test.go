package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelRCrider/leakguard/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leakguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFileEnvAndDefaults(t *testing.T) {
	path := writeConfig(t, `
scan:
  workers: 8
  rules_path: ./rules.yaml
audit:
  enabled: true
  level: verbose
database:
  path: /tmp/leakguard.db
`)
	t.Setenv("LEAKGUARD_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("LEAKGUARD_SCAN_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	// file
	assert.Equal(t, "./rules.yaml", cfg.Scan.RulesPath)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "/tmp/leakguard.db", cfg.Database.Path)

	// env beats file
	assert.Equal(t, 2, cfg.Scan.Workers)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)

	// defaults
	assert.Equal(t, int64(core.DefaultMaxContentSize), cfg.Scan.MaxContentSize)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "WAL", cfg.Database.JournalMode)
	assert.Equal(t, "html", cfg.Report.Format)
	assert.True(t, cfg.Scan.Recursive)

	assert.Equal(t, core.EngineConfig{Workers: 2, MaxContentSize: core.DefaultMaxContentSize}, cfg.EngineConfig())
	audit := cfg.AuditLogConfig()
	assert.Equal(t, core.AuditLogLevelVerbose, audit.Level)
	assert.Equal(t, 90, audit.RetentionDays)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, "warn", cfg.Log.Level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestLoadWhitelist(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
scan:
  recursive: false
  whitelist:
    - type: target
      value: file:///srv/fixtures/keys.txt
    - type: pattern
      value: 'sk-test-\w+'
`))
	require.NoError(t, err)
	assert.False(t, cfg.Scan.Recursive)
	require.Len(t, cfg.Scan.Whitelist, 2)
	assert.Equal(t, core.WhitelistTarget, cfg.Scan.Whitelist[0].Type)

	w, err := cfg.ScanWhitelist()
	require.NoError(t, err)
	assert.Equal(t, 2, w.Len())
	assert.True(t, w.Allows(&core.Content{Target: "file:///srv/fixtures/keys.txt"}, "anything"))
	assert.True(t, w.Allows(&core.Content{Target: "file:///other"}, "sk-test-abc"))

	_, err = Load(writeConfig(t, "scan:\n  whitelist:\n    - type: pattern\n      value: '('\n"))
	assert.ErrorIs(t, err, core.ErrInvalidPattern)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"workers":     "scan:\n  workers: 0\n",
		"audit level": "audit:\n  level: loud\n",
		"max size":    "scan:\n  max_content_size: -1\n",
		"whitelist":   "scan:\n  whitelist:\n    - type: domain\n      value: x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, core.ErrInvalidField)
		})
	}
}
