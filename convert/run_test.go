package convert

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"cssapply/config"
	"cssapply/state"
)

// setupTestEnv creates a test environment with proper context and logger
func setupTestEnv(t *testing.T) (context.Context, *state.LocalEnv) {
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)
	env.Log = logger
	env.Cfg = cfg
	return ctx, env
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}
}

func readResult(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Unable to read result: %v", err)
	}
	return string(data)
}

func makeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}
	defer out.Close()
	w := zip.NewWriter(out)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create file %s in zip: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write content for %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
}

// TestProcess_NonExistentPath tests process with non-existent path
func TestProcess_NonExistentPath(t *testing.T) {
	ctx, env := setupTestEnv(t)

	err := process(ctx, "/nonexistent/path/page.html", t.TempDir(), env.Log)
	if err == nil {
		t.Fatal("Expected error for non-existent path, got nil")
	}
	if !strings.Contains(err.Error(), "input source was not found") {
		t.Errorf("Unexpected error: %v", err)
	}
}

// TestProcess_CancelledContext tests process with cancelled context
func TestProcess_CancelledContext(t *testing.T) {
	ctx, env := setupTestEnv(t)
	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	tmpDir := t.TempDir()
	if err := process(cancelCtx, tmpDir, tmpDir, env.Log); err != context.Canceled {
		t.Errorf("Expected context.Canceled error, got %v", err)
	}
}

// TestProcess_DirectoryWithTail tests process with directory path that has a tail
func TestProcess_DirectoryWithTail(t *testing.T) {
	ctx, env := setupTestEnv(t)

	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "subdir"), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := process(ctx, filepath.Join(tmpDir, "subdir", "none.html"), tmpDir, env.Log); err == nil {
		t.Fatal("Expected error for directory with tail, got nil")
	}
}

func TestProcess_NotDocument(t *testing.T) {
	ctx, env := setupTestEnv(t)

	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, map[string]string{"style.css": "p{}"})
	err := process(ctx, filepath.Join(tmpDir, "style.css"), t.TempDir(), env.Log)
	if err == nil || !strings.Contains(err.Error(), "not recognized") {
		t.Errorf("Expected recognition error, got %v", err)
	}
}

func TestProcess_SingleFile(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	writeFiles(t, srcDir, map[string]string{
		"page.html": `<style>p { color: red }</style><p class="a">x</p>`,
	})

	if err := process(ctx, filepath.Join(srcDir, "page.html"), dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readResult(t, filepath.Join(dstDir, "page.inlined.html")); got != `<p style="color:red">x</p>` {
		t.Errorf("result = %q", got)
	}
}

func TestProcess_Directory(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	writeFiles(t, srcDir, map[string]string{
		"site/page.html":           `<link rel="stylesheet" href="css/main.css"><p>x</p>`,
		"site/css/main.css":        `@import "css/base.css"; p { color: red }`,
		"site/css/base.css":        `p { margin: 0 }`,
		"site/notes.txt":           "not a document",
		"other/page2.htm":          `<p class="c">y</p>`,
		"other/page2.inlined.html": "previous output",
	})
	env.Cfg.Document.PreserveClass = true

	if err := process(ctx, srcDir, dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readResult(t, filepath.Join(dstDir, "site", "page.inlined.html")); got != `<p style="margin:0;color:red">x</p>` {
		t.Errorf("site/page = %q", got)
	}
	if got := readResult(t, filepath.Join(dstDir, "other", "page2.inlined.html")); got != `<p class="c">y</p>` {
		t.Errorf("other/page2 = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "other", "page2.inlined.inlined.html")); !os.IsNotExist(err) {
		t.Error("previous output must not be processed again")
	}
}

func TestProcess_StylesheetsRoot(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir, styles := t.TempDir(), t.TempDir(), t.TempDir()
	writeFiles(t, srcDir, map[string]string{"page.html": `<link rel="stylesheet" href="shared.css"><p>x</p>`})
	writeFiles(t, styles, map[string]string{"shared.css": "p { color: blue }"})
	env.StylesRoot = styles
	env.NoDirs = true

	if err := process(ctx, srcDir, dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readResult(t, filepath.Join(dstDir, "page.inlined.html")); got != `<p style="color:blue">x</p>` {
		t.Errorf("result = %q", got)
	}
}

func TestProcess_DefaultStyleAndCharset(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	// "При" in windows-1251
	writeFiles(t, srcDir, map[string]string{"page.html": "<style>p{margin:0}</style><p>\xcf\xf0\xe8</p>"})
	env.DefaultStyle = []byte("p { color: green; margin: 1px }")
	env.Charset = "windows-1251"

	if err := process(ctx, filepath.Join(srcDir, "page.html"), dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readResult(t, filepath.Join(dstDir, "page.inlined.html")); got != `<p style="color:green;margin:0">При</p>` {
		t.Errorf("result = %q", got)
	}
}

func TestProcess_Overwrite(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "page.html")
	out := filepath.Join(dstDir, "page.inlined.html")
	writeFiles(t, srcDir, map[string]string{"page.html": "<p>first</p>"})

	if err := process(ctx, src, dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	writeFiles(t, srcDir, map[string]string{"page.html": "<p>second</p>"})

	// existing result is kept, error is only logged
	if err := process(ctx, src, dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readResult(t, out); got != "<p>first</p>" {
		t.Errorf("result was overwritten: %q", got)
	}

	env.Overwrite = true
	if err := process(ctx, src, dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readResult(t, out); got != "<p>second</p>" {
		t.Errorf("result was not overwritten: %q", got)
	}
}

func TestProcess_OutputNameTemplate(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	writeFiles(t, srcDir, map[string]string{
		"docs/page.html": `<!DOCTYPE html><html lang="en"><head><title>My  Page</title></head><body><p>x</p></body></html>`,
	})
	env.Cfg.Document.OutputNameTemplate = "{{ .Lang }}/{{ .Title | lower }}"

	if err := process(ctx, srcDir, dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	got := readResult(t, filepath.Join(dstDir, "docs", "en", "my page.inlined.html"))
	if !strings.Contains(got, "<title>My  Page</title>") || !strings.Contains(got, "<p>x</p>") {
		t.Errorf("result = %q", got)
	}
}

func TestProcess_Archive(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	arc := filepath.Join(srcDir, "site.zip")
	makeArchive(t, arc, map[string]string{
		"doc/index.html":    `<link rel="stylesheet" href="css/style.css"><p class="x">x</p>`,
		"doc/css/style.css": `.x { color: red }`,
		"doc/other.html":    `<p>y</p>`,
		"readme.txt":        "readme",
	})

	if err := process(ctx, arc, dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readResult(t, filepath.Join(dstDir, "doc", "index.inlined.html")); got != `<p style="color:red">x</p>` {
		t.Errorf("doc/index = %q", got)
	}
	if got := readResult(t, filepath.Join(dstDir, "doc", "other.inlined.html")); got != `<p>y</p>` {
		t.Errorf("doc/other = %q", got)
	}
}

func TestProcess_PathInsideArchive(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	arc := filepath.Join(srcDir, "site.zip")
	makeArchive(t, arc, map[string]string{
		"doc/index.html": `<p>x</p>`,
		"doc/other.html": `<p>y</p>`,
	})

	if err := process(ctx, filepath.Join(arc, "doc", "other.html"), dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "doc", "other.inlined.html")); err != nil {
		t.Errorf("expected result for selected document: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "doc", "index.inlined.html")); !os.IsNotExist(err) {
		t.Error("only selected document must be processed")
	}
}

func TestProcess_ArchiveInDirectory(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcDir, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	makeArchive(t, filepath.Join(srcDir, "nested", "site.zip"), map[string]string{"index.html": `<p>x</p>`})

	if err := process(ctx, srcDir, dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readResult(t, filepath.Join(dstDir, "nested", "index.inlined.html")); got != `<p>x</p>` {
		t.Errorf("result = %q", got)
	}
}

func TestProcess_Report(t *testing.T) {
	ctx, env := setupTestEnv(t)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	writeFiles(t, srcDir, map[string]string{"a/page.html": "<p>x</p>", "b/page.html": "<p>y</p>"})

	rpt, err := (&config.ReporterConfig{Destination: filepath.Join(t.TempDir(), "report.zip")}).Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	env.Rpt = rpt

	// same base names in different directories must not collide in report
	if err := process(ctx, srcDir, dstDir, env.Log); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if err := rpt.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := zip.OpenReader(rpt.Name())
	if err != nil {
		t.Fatalf("unable to open report: %v", err)
	}
	defer r.Close()
	found := 0
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "result/") {
			found++
		}
	}
	if found != 2 {
		t.Errorf("expected 2 results in report, got %d", found)
	}
}

func TestPrepareStyles_Report(t *testing.T) {
	_, env := setupTestEnv(t)

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"base.css":         "p { color: red }",
		"styles/a.css":     "a { color: blue }",
		"styles/sub/b.css": "b { color: green }",
	})
	rpt, err := (&config.ReporterConfig{Destination: filepath.Join(t.TempDir(), "report.zip")}).Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	env.Rpt = rpt

	if err := prepareStyles(env, filepath.Join(dir, "base.css"), filepath.Join(dir, "styles"), env.Log); err != nil {
		t.Fatalf("prepareStyles() error = %v", err)
	}
	if string(env.DefaultStyle) != "p { color: red }" {
		t.Errorf("DefaultStyle = %q", env.DefaultStyle)
	}
	if env.StylesRoot != filepath.Join(dir, "styles") {
		t.Errorf("StylesRoot = %q", env.StylesRoot)
	}

	// report keeps stylesheets as they were when processing started
	writeFiles(t, dir, map[string]string{"base.css": "p { color: black }"})
	if err := rpt.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r, err := zip.OpenReader(rpt.Name())
	if err != nil {
		t.Fatalf("unable to open report: %v", err)
	}
	defer r.Close()
	got := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s) error = %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s) error = %v", f.Name, err)
		}
		got[f.Name] = string(data)
	}
	want := map[string]string{
		"stylesheet/base.css":   "p { color: red }",
		"stylesheets/a.css":     "a { color: blue }",
		"stylesheets/sub/b.css": "b { color: green }",
	}
	for name, content := range want {
		if got[name] != content {
			t.Errorf("report entry %s = %q, want %q", name, got[name], content)
		}
	}
}

func TestPrepareStyles_Errors(t *testing.T) {
	_, env := setupTestEnv(t)

	env.DefaultStyle, env.StylesRoot = []byte("stale"), "stale"
	if err := prepareStyles(env, "", "", env.Log); err != nil {
		t.Fatalf("prepareStyles() error = %v", err)
	}
	if env.DefaultStyle != nil || env.StylesRoot != "" {
		t.Errorf("previous run values must be reset, got %q, %q", env.DefaultStyle, env.StylesRoot)
	}

	if err := prepareStyles(env, filepath.Join(t.TempDir(), "missing.css"), "", env.Log); err == nil {
		t.Error("expected error for missing stylesheet")
	}
}
