package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditLogLevel defines the verbosity of audit logging
type AuditLogLevel string

const (
	// AuditLogLevelMinimal logs only warnings and errors, without matched text
	AuditLogLevelMinimal AuditLogLevel = "minimal"

	// AuditLogLevelStandard logs every event with truncated detail
	AuditLogLevelStandard AuditLogLevel = "standard"

	// AuditLogLevelVerbose logs all details
	AuditLogLevelVerbose AuditLogLevel = "verbose"
)

// AuditLogSeverity defines the severity of audit log events
type AuditLogSeverity string

const (
	SeverityInfo     AuditLogSeverity = "info"
	SeverityWarning  AuditLogSeverity = "warning"
	SeverityError    AuditLogSeverity = "error"
	SeverityCritical AuditLogSeverity = "critical"
)

// AuditEvent is one line of the JSONL audit trail
type AuditEvent struct {
	EventID     string           `json:"event_id"`
	Timestamp   string           `json:"timestamp"`
	EventType   string           `json:"event_type"`
	Severity    AuditLogSeverity `json:"severity"`
	DetectionID string           `json:"detection_id,omitempty"`
	ProjectID   string           `json:"project_id,omitempty"`
	Target      string           `json:"target,omitempty"`

	// Detail carries free text such as an error message or a matched sample
	Detail   string            `json:"detail,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AuditConfig configures a file-backed audit logger
type AuditConfig struct {
	Path          string
	Level         AuditLogLevel
	RotationSize  int64 // bytes; rotate once the file reaches this size
	RetentionDays int
	Console       bool
}

// AuditLogger appends audit events as JSON lines. A nil *AuditLogger
// discards every event, so components can hold one unconditionally.
type AuditLogger struct {
	mu           sync.Mutex
	logPath      string
	level        AuditLogLevel
	writer       io.Writer
	file         *os.File
	rotationSize int64
	currentSize  int64
	logRetention int
	console      bool

	// logger receives write failures from Record
	logger *zap.SugaredLogger
}

// NewAuditLogger opens (or creates) the audit file described by cfg
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	if cfg.Path == "" {
		cfg.Path = "audit.log"
	}
	if cfg.Level == "" {
		cfg.Level = AuditLogLevelStandard
	}
	if cfg.RotationSize <= 0 {
		cfg.RotationSize = 100 * 1024 * 1024
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}

	l := &AuditLogger{
		logPath:      cfg.Path,
		level:        cfg.Level,
		rotationSize: cfg.RotationSize,
		logRetention: cfg.RetentionDays,
		console:      cfg.Console,
	}
	if err := l.initialize(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewAuditWriter logs to w without rotation. Useful for tests and stderr.
func NewAuditWriter(w io.Writer, level AuditLogLevel) *AuditLogger {
	if level == "" {
		level = AuditLogLevelStandard
	}
	return &AuditLogger{writer: w, level: level}
}

// WithLogger routes audit write failures to logger. Without one they go
// to zap's global logger.
func (l *AuditLogger) WithLogger(logger *zap.SugaredLogger) *AuditLogger {
	if l != nil {
		l.logger = logger
	}
	return l
}

func (l *AuditLogger) errorLogger() *zap.SugaredLogger {
	if l.logger != nil {
		return l.logger
	}
	return zap.S()
}

func (l *AuditLogger) initialize() error {
	dir := filepath.Dir(l.logPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat audit log: %w", err)
	}

	l.file = f
	l.currentSize = info.Size()
	if l.console {
		l.writer = io.MultiWriter(f, os.Stdout)
	} else {
		l.writer = f
	}
	return nil
}

func (l *AuditLogger) maybeRotate() error {
	if l.file == nil || l.currentSize < l.rotationSize {
		return nil
	}

	l.file.Close()

	rotatedPath := fmt.Sprintf("%s.%s", l.logPath, time.Now().Format("20060102-150405"))
	if err := os.Rename(l.logPath, rotatedPath); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	l.cleanupOldLogs()
	return l.initialize()
}

// cleanupOldLogs removes rotated files older than the retention period
func (l *AuditLogger) cleanupOldLogs() {
	dir := filepath.Dir(l.logPath)
	base := filepath.Base(l.logPath)
	cutoff := time.Now().AddDate(0, 0, -l.logRetention)

	files, err := filepath.Glob(filepath.Join(dir, base+".*"))
	if err != nil {
		return
	}
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				ReportError(l.errorLogger(), "Failed to remove expired audit log", err, "file", file)
			}
		}
	}
}

// Log writes one event, applying level filtering and truncation.
func (l *AuditLogger) Log(event AuditEvent) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.maybeRotate(); err != nil {
		return err
	}

	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	switch l.level {
	case AuditLogLevelMinimal:
		if event.Severity == SeverityInfo {
			return nil
		}
		if event.Detail != "" {
			event.Detail = "[redacted]"
		}
	case AuditLogLevelStandard:
		if r := []rune(event.Detail); len(r) > 100 {
			event.Detail = string(r[:100]) + "... [truncated]"
		}
	}

	entry, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	n, err := fmt.Fprintln(l.writer, string(entry))
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	l.currentSize += int64(n)
	return nil
}

// Record is Log for callers with nowhere to return a write failure; the
// failure is logged instead.
func (l *AuditLogger) Record(event AuditEvent) {
	if err := l.Log(event); err != nil {
		ReportError(l.errorLogger(), "Failed to write audit event", err, "event", event.EventType)
	}
}

// Close releases the underlying file, if any
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
