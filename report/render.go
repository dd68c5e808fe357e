// Package report renders detection results into downloadable formats.
// Every renderer consumes the same view: filtered, sorted findings and
// statistics computed once by buildView.
package report

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/SamuelRCrider/leakguard/core"
)

// Format selects a renderer
type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
)

// SortBy names the finding field reports are ordered by
type SortBy string

const (
	SortInsertion SortBy = ""
	SortRiskLevel SortBy = "riskLevel"
	SortCategory  SortBy = "category"
	SortTarget    SortBy = "target"
	SortCreatedAt SortBy = "createdAt"
)

// SortOrder is asc or desc. For riskLevel, desc means high first.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Options control a single render. The zero value renders everything in
// detection order.
type Options struct {
	OmitSummary bool
	OmitDetails bool

	SortBy    SortBy
	SortOrder SortOrder

	// Only findings matching one of these are listed; summary counts are
	// always over the full result.
	FilterRiskLevel []core.RiskLevel
	FilterCategory  []string

	// GeneratedAt is the only time-dependent value in a report. Zero means now.
	GeneratedAt time.Time
}

// Report is a rendered document ready for download
type Report struct {
	Format      Format
	Content     []byte
	Filename    string
	ContentType string
	Size        int
	GeneratedAt time.Time
}

type renderer struct {
	ext         string
	contentType string
	render      func(v *view) ([]byte, error)
}

var renderers = map[Format]renderer{
	FormatHTML: {ext: "html", contentType: "text/html", render: renderHTML},
	FormatJSON: {ext: "json", contentType: "application/json", render: renderJSON},
	FormatCSV:  {ext: "csv", contentType: "text/csv", render: renderCSV},
	FormatTXT:  {ext: "txt", contentType: "text/plain", render: renderTXT},
}

// Formats lists the supported formats in a stable order
func Formats() []Format {
	return []Format{FormatHTML, FormatJSON, FormatCSV, FormatTXT}
}

// ParseFormat normalizes a user-supplied format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := renderers[f]; !ok {
		return "", core.NewError(core.KindUnsupportedFormat, "parse format", s, nil)
	}
	return f, nil
}

// Render projects result into format. It never mutates result and
// returns no partial output on error.
func Render(result *core.DetectionResult, format Format, opts Options) (*Report, error) {
	r, ok := renderers[format]
	if !ok {
		return nil, core.NewError(core.KindUnsupportedFormat, "render", string(format), nil)
	}
	if result == nil {
		return nil, core.NewError(core.KindMissingRequiredField, "render", string(format), fmt.Errorf("nil detection result"))
	}

	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}

	content, err := r.render(buildView(result, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to render %s report: %w", format, err)
	}

	return &Report{
		Format:      format,
		Content:     content,
		Filename:    Filename(result.Name, r.ext, opts.GeneratedAt),
		ContentType: r.contentType,
		Size:        len(content),
		GeneratedAt: opts.GeneratedAt,
	}, nil
}

var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// Filename builds sensitive_report_<name>_<yyyymmdd_hhmmss>.<ext>
func Filename(name, ext string, at time.Time) string {
	name = strings.Trim(unsafeFilename.ReplaceAllString(name, "_"), "_")
	if name == "" {
		name = "detection"
	}
	return fmt.Sprintf("sensitive_report_%s_%s.%s", name, at.Format("20060102_150405"), ext)
}
