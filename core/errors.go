package core

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrorKind classifies every failure the scanning core can report
type ErrorKind string

const (
	KindInvalidPattern       ErrorKind = "invalid_pattern"
	KindMissingRequiredField ErrorKind = "missing_required_field"
	KindInvalidField         ErrorKind = "invalid_field"
	KindUnsupportedRuleType  ErrorKind = "unsupported_rule_type"
	KindUnsupportedFormat    ErrorKind = "unsupported_format"
	KindTargetFailed         ErrorKind = "target_failed"
	KindContentTooLarge      ErrorKind = "content_too_large"
	KindRuleNotFound         ErrorKind = "rule_not_found"
	KindRuleImmutable        ErrorKind = "rule_immutable"
	KindResultNotFound       ErrorKind = "result_not_found"
	KindCanceled             ErrorKind = "canceled"
)

// Sentinels for errors.Is comparisons against a *Error of the same kind.
var (
	ErrInvalidPattern       = &Error{Kind: KindInvalidPattern}
	ErrMissingRequiredField = &Error{Kind: KindMissingRequiredField}
	ErrInvalidField         = &Error{Kind: KindInvalidField}
	ErrUnsupportedRuleType  = &Error{Kind: KindUnsupportedRuleType}
	ErrUnsupportedFormat    = &Error{Kind: KindUnsupportedFormat}
	ErrTargetFailed         = &Error{Kind: KindTargetFailed}
	ErrContentTooLarge      = &Error{Kind: KindContentTooLarge}
	ErrRuleNotFound         = &Error{Kind: KindRuleNotFound}
	ErrRuleImmutable        = &Error{Kind: KindRuleImmutable}
	ErrResultNotFound       = &Error{Kind: KindResultNotFound}
	ErrCanceled             = &Error{Kind: KindCanceled}
)

// Error wraps a failure with the kind the caller needs to decide on
// user-visible messaging.
type Error struct {
	Kind ErrorKind
	// Op names the operation that failed, e.g. "validate rule"
	Op string
	// Subject is the rule name, target URI or format involved
	Subject string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Subject != "" {
		b.WriteString(fmt.Sprintf(" %q", e.Subject))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so callers can write errors.Is(err, core.ErrInvalidPattern).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a typed error. err may be nil.
func NewError(kind ErrorKind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReportError logs an error with its kind as a structured field
func ReportError(logger *zap.SugaredLogger, msg string, err error, keysAndValues ...interface{}) {
	if logger == nil || err == nil {
		return
	}
	fields := append([]interface{}{"error", err.Error()}, keysAndValues...)
	if kind := KindOf(err); kind != "" {
		fields = append(fields, "kind", string(kind))
	}
	logger.Errorw(msg, fields...)
}
