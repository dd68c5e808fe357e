// Package provider fetches target content for the scan engine.
package provider

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/SamuelRCrider/leakguard/core"
)

// DefaultMaxBytes caps a single fetch when no limit is configured
const DefaultMaxBytes = core.DefaultMaxContentSize

// File reads file:// targets (or bare paths) from local disk with a line map
type File struct {
	// MaxBytes rejects larger files before reading them. Zero means DefaultMaxBytes.
	MaxBytes int64

	// Recursive makes directory targets include their subdirectories
	Recursive bool
}

// PathOf converts a file:// URI or bare path to a filesystem path. The
// path is taken verbatim after the host, so glob characters such as '?'
// survive.
func PathOf(target string) (string, error) {
	scheme, rest, ok := strings.Cut(target, "://")
	if !ok {
		return target, nil
	}
	if !strings.EqualFold(scheme, "file") {
		return "", fmt.Errorf("not a file target: %s", target)
	}

	host, path := rest, ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		host, path = rest[:i], rest[i:]
	}
	if host != "" && host != "localhost" {
		return "", fmt.Errorf("remote file hosts are not supported: %s", host)
	}
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("invalid file target: %w", err)
	}
	return filepath.FromSlash(unescaped), nil
}

// TargetOf converts a filesystem path to an absolute file:// target
func TargetOf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + filepath.ToSlash(path)
}

// textExtensions lists the file types a directory or glob scan reads.
// Files without an extension are read too.
var textExtensions = map[string]bool{
	"": true, ".txt": true, ".log": true, ".json": true, ".xml": true,
	".html": true, ".htm": true, ".css": true, ".js": true, ".ts": true,
	".java": true, ".py": true, ".go": true, ".c": true, ".cpp": true,
	".h": true, ".hpp": true, ".php": true, ".rb": true, ".sh": true,
	".bat": true, ".ps1": true, ".yml": true, ".yaml": true, ".ini": true,
	".conf": true, ".config": true, ".properties": true, ".env": true,
	".sql": true, ".md": true, ".markdown": true, ".rst": true, ".csv": true,
	".tsv": true, ".dockerfile": true, ".gitignore": true, ".gitattributes": true,
}

// IsTextFile reports whether path has an extension directory scans read
func IsTextFile(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

func isGlob(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

// Expand lists the text files behind a directory or glob target, in
// lexical order. Any other target is returned unchanged. Explicitly named
// files are never filtered by extension.
func (f File) Expand(ctx context.Context, target string) ([]string, error) {
	path, err := PathOf(target)
	if err != nil {
		return nil, err
	}

	if isGlob(path) {
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", path, err)
		}
		var out []string
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || !info.Mode().IsRegular() || !IsTextFile(m) {
				continue
			}
			out = append(out, TargetOf(m))
		}
		return out, nil
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return []string{target}, nil
	}

	var out []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && !f.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsTextFile(p) {
			out = append(out, TargetOf(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	return out, nil
}

func (f File) Fetch(ctx context.Context, target string) (*core.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := PathOf(target)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if info.Size() > limit {
		return nil, core.NewError(core.KindContentTooLarge, "read file", target,
			fmt.Errorf("file is %d bytes, limit is %d", info.Size(), limit))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return &core.Content{
		Target:     target,
		Data:       string(data),
		HasLineMap: true,
		FilePath:   path,
		FileSize:   info.Size(),
	}, nil
}

// HTTP fetches http(s) targets. Remote content has no stable line map.
type HTTP struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewHTTP builds a fetcher with an optional custom client
func NewHTTP(client *http.Client, maxBytes int64, userAgent string) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if userAgent == "" {
		userAgent = "leakguard/1.0"
	}
	return &HTTP{client: client, maxBytes: maxBytes, userAgent: userAgent}
}

func (h *HTTP) Fetch(ctx context.Context, target string) (*core.Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	// Read one byte past the limit so oversize bodies are detected, not cut
	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.maxBytes {
		return nil, core.NewError(core.KindContentTooLarge, "fetch url", target,
			fmt.Errorf("response exceeds %d bytes", h.maxBytes))
	}

	return &core.Content{Target: target, Data: string(body)}, nil
}

// Mux dispatches targets to a provider by URI scheme. Bare paths use "file".
type Mux struct {
	providers map[string]core.ContentProvider
}

func NewMux() *Mux {
	return &Mux{providers: make(map[string]core.ContentProvider)}
}

// Handle registers p for scheme and returns the mux for chaining
func (m *Mux) Handle(scheme string, p core.ContentProvider) *Mux {
	m.providers[strings.ToLower(scheme)] = p
	return m
}

func (m *Mux) Fetch(ctx context.Context, target string) (*core.Content, error) {
	scheme := "file"
	if s, _, ok := strings.Cut(target, "://"); ok {
		scheme = strings.ToLower(s)
	}
	p, ok := m.providers[scheme]
	if !ok {
		return nil, fmt.Errorf("no provider for scheme %q", scheme)
	}
	return p.Fetch(ctx, target)
}

// Expand delegates to the scheme's provider when it can expand targets
func (m *Mux) Expand(ctx context.Context, target string) ([]string, error) {
	scheme := "file"
	if s, _, ok := strings.Cut(target, "://"); ok {
		scheme = strings.ToLower(s)
	}
	if x, ok := m.providers[scheme].(core.TargetExpander); ok {
		return x.Expand(ctx, target)
	}
	return []string{target}, nil
}

// Default returns a mux serving file, http and https targets
func Default(maxBytes int64) *Mux {
	web := NewHTTP(nil, maxBytes, "")
	return NewMux().
		Handle("file", File{MaxBytes: maxBytes, Recursive: true}).
		Handle("http", web).
		Handle("https", web)
}

// Static serves in-memory content, keyed by target
type Static struct {
	mu      sync.RWMutex
	content map[string]string
}

func NewStatic() *Static {
	return &Static{content: make(map[string]string)}
}

// Set stores data for target
func (s *Static) Set(target, data string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[target] = data
	return s
}

// Fetch returns the stored data; file targets get a line map
func (s *Static) Fetch(ctx context.Context, target string) (*core.Content, error) {
	s.mu.RLock()
	data, ok := s.content[target]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no content for %s", target)
	}

	c := &core.Content{Target: target, Data: data}
	if core.TargetTypeOf(target) == core.TargetTypeFile {
		c.HasLineMap = true
		c.FileSize = int64(len(data))
		if path, err := PathOf(target); err == nil {
			c.FilePath = path
		}
	}
	return c, nil
}
