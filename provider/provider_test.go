package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamuelRCrider/leakguard/core"
)

func TestFileFetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	require.NoError(t, os.WriteFile(path, []byte("a\npassword=x\n"), 0644))

	content, err := File{}.Fetch(context.Background(), "file://"+filepath.ToSlash(path))
	require.NoError(t, err)
	assert.True(t, content.HasLineMap)
	assert.Equal(t, path, content.FilePath)
	assert.Equal(t, int64(13), content.FileSize)
	assert.Equal(t, "a\npassword=x\n", content.Data)

	// Bare paths are accepted too
	content, err = File{}.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, content.Target)

	_, err = File{}.Fetch(context.Background(), filepath.Join(dir, "missing"))
	assert.Error(t, err)

	_, err = File{MaxBytes: 4}.Fetch(context.Background(), path)
	assert.ErrorIs(t, err, core.ErrContentTooLarge)

	_, err = File{}.Fetch(context.Background(), dir)
	assert.Error(t, err)
}

func TestPathOf(t *testing.T) {
	p, err := PathOf("file:///tmp/test_config.conf")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/tmp/test_config.conf"), p)

	_, err = PathOf("https://example.com/x")
	assert.Error(t, err)

	_, err = PathOf("file://server/share/x")
	assert.Error(t, err)

	// Glob characters are part of the path, not a query
	p, err = PathOf("file:///srv/conf/?.env")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/srv/conf/?.env"), p)

	p, err = PathOf("file://localhost/tmp/a%20b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/tmp/a b.txt"), p)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	}
	return dir
}

func TestFileExpand(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.conf":     "api_key = 'sk-1234567890abcdef1234567890abcdef'",
		"b.txt":      "nothing here",
		"logo.png":   "\x89PNG",
		"Makefile":   "all:",
		"sub/c.env":  "password=hunter2hunter2",
		"sub/d.yaml": "k: v",
	})
	ctx := context.Background()
	target := func(name string) string { return TargetOf(filepath.Join(dir, filepath.FromSlash(name))) }

	got, err := File{}.Expand(ctx, TargetOf(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{target("Makefile"), target("a.conf"), target("b.txt")}, got)

	got, err = File{Recursive: true}.Expand(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		target("Makefile"), target("a.conf"), target("b.txt"), target("sub/c.env"), target("sub/d.yaml"),
	}, got)

	got, err = File{}.Expand(ctx, TargetOf(filepath.Join(dir, "*.conf")))
	require.NoError(t, err)
	assert.Equal(t, []string{target("a.conf")}, got)

	got, err = File{}.Expand(ctx, TargetOf(filepath.Join(dir, "?.txt")))
	require.NoError(t, err)
	assert.Equal(t, []string{target("b.txt")}, got)

	// Globs skip directories and non-text files
	got, err = File{}.Expand(ctx, filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{target("Makefile"), target("a.conf"), target("b.txt")}, got)

	// Named files and missing paths pass through untouched
	named := TargetOf(filepath.Join(dir, "logo.png"))
	got, err = File{}.Expand(ctx, named)
	require.NoError(t, err)
	assert.Equal(t, []string{named}, got)

	missing := TargetOf(filepath.Join(dir, "missing.conf"))
	got, err = File{}.Expand(ctx, missing)
	require.NoError(t, err)
	assert.Equal(t, []string{missing}, got)

	_, err = File{}.Expand(ctx, filepath.Join(dir, "[.conf"))
	assert.Error(t, err)
}

func TestIsTextFile(t *testing.T) {
	assert.True(t, IsTextFile("config.YAML"))
	assert.True(t, IsTextFile(".env"))
	assert.True(t, IsTextFile("Dockerfile"))
	assert.False(t, IsTextFile("app.exe"))
}

func TestMuxExpand(t *testing.T) {
	dir := writeTree(t, map[string]string{"x.env": "a", "y.env": "b"})
	mux := NewMux().Handle("file", File{}).Handle("https", NewStatic())

	got, err := mux.Expand(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = mux.Expand(context.Background(), "https://example.com/app.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/app.js"}, got)
}

// TestEngineScansDirectory reports each file of a directory as its own target
func TestEngineScansDirectory(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"app.conf":      "# config\napi_key = 'sk-1234567890abcdef1234567890abcdef'\n",
		"nested/db.env": "password=hunter2hunter2\n",
		"notes.txt":     "nothing\n",
	})
	engine := core.NewEngine(Default(0), core.EngineConfig{Workers: 2})

	result, err := engine.Run(context.Background(), core.ScanRequest{
		Name:    "tree",
		Targets: []string{TargetOf(dir)},
		Rules:   core.DefaultRuleSet().Rules,
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 3, result.FinishCount)
	require.Len(t, result.Findings, 2)
	assert.Equal(t, TargetOf(filepath.Join(dir, "app.conf")), result.Findings[0].Target)
	assert.Equal(t, 2, result.Findings[0].LineNumber)
	assert.Equal(t, filepath.Join(dir, "nested", "db.env"), result.Findings[1].FilePath)
}

func TestHTTPFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/config":
			assert.Equal(t, "leakguard/1.0", r.Header.Get("User-Agent"))
			fmt.Fprint(w, `{"jwt_secret": "abc"}`)
		case "/big":
			fmt.Fprint(w, strings.Repeat("x", 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := NewHTTP(srv.Client(), 32, "")

	content, err := fetcher.Fetch(context.Background(), srv.URL+"/config")
	require.NoError(t, err)
	assert.False(t, content.HasLineMap)
	assert.Empty(t, content.FilePath)
	assert.Contains(t, content.Data, "jwt_secret")

	_, err = fetcher.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")

	_, err = fetcher.Fetch(context.Background(), srv.URL+"/big")
	assert.ErrorIs(t, err, core.ErrContentTooLarge)
}

func TestMuxDispatch(t *testing.T) {
	files := NewStatic().Set("file:///a", "one")
	web := NewStatic().Set("https://example.com", "two")
	mux := NewMux().Handle("file", files).Handle("HTTPS", web)

	c, err := mux.Fetch(context.Background(), "file:///a")
	require.NoError(t, err)
	assert.Equal(t, "one", c.Data)

	c, err = mux.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "two", c.Data)
	assert.False(t, c.HasLineMap)

	_, err = mux.Fetch(context.Background(), "ftp://example.com")
	assert.ErrorContains(t, err, "ftp")
}

// TestEngineWithStatic runs the engine end to end with one unreachable target
func TestEngineWithStatic(t *testing.T) {
	static := NewStatic().Set("file:///tmp/test_config.conf", "# config\napi_key = 'sk-1234567890abcdef1234567890abcdef'\n")
	engine := core.NewEngine(static, core.EngineConfig{Workers: 2})

	result, err := engine.Run(context.Background(), core.ScanRequest{
		Name:    "partial",
		Targets: []string{"file:///tmp/test_config.conf", "https://unreachable.example"},
		Rules:   core.DefaultRuleSet().Rules,
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusFailed, result.Status)
	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 2, result.FinishCount)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "api_key", result.Findings[0].Category)
	assert.Equal(t, 2, result.Findings[0].LineNumber)
	assert.Equal(t, "/tmp/test_config.conf", result.Findings[0].FilePath)
}
