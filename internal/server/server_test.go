package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuild/internal/build"
	"git.home.luguber.info/inful/sitebuild/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDevServer(t *testing.T) *DevServer {
	t.Helper()
	opts := config.Default()
	opts.Source = t.TempDir()
	opts.Output = filepath.Join(t.TempDir(), "out")
	session, err := build.NewSession(opts, nil, nil, discardLogger())
	require.NoError(t, err)
	return New(build.NewBuilder(session), nil, discardLogger())
}

func writeOutput(t *testing.T, d *DevServer, rel, content string) {
	t.Helper()
	full := filepath.Join(d.builder.Session().OutputRoot, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func get(t *testing.T, d *DevServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	d.serveFile(rec, req)
	return rec
}

func TestServeFile_HTMLGetsReloadScript(t *testing.T) {
	d := newDevServer(t)
	writeOutput(t, d, "index.html", `<html><body><p>home</p></body></html>`)

	rec := get(t, d, "/index.html")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "__livereload")
	// Script slots in before the closing body tag.
	require.Less(t,
		strings.Index(rec.Body.String(), "__livereload"),
		strings.Index(rec.Body.String(), "</body>"))
}

func TestServeFile_DirectoryIndex(t *testing.T) {
	d := newDevServer(t)
	writeOutput(t, d, "docs/index.html", `<html><body>docs home</body></html>`)

	rec := get(t, d, "/docs")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "docs home")
}

func TestServeFile_HTMLExtensionFallback(t *testing.T) {
	d := newDevServer(t)
	writeOutput(t, d, "about.html", `<html><body>about</body></html>`)

	rec := get(t, d, "/about")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "about")
}

func TestServeFile_NotFound(t *testing.T) {
	d := newDevServer(t)
	rec := get(t, d, "/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeFile_TraversalConfined(t *testing.T) {
	d := newDevServer(t)
	writeOutput(t, d, "index.html", `<html><body>home</body></html>`)

	rec := get(t, d, "/../../etc/passwd")
	require.NotEqual(t, http.StatusOK, rec.Code)
}

func TestInjectReloadScript(t *testing.T) {
	out := injectReloadScript([]byte(`<html><body><p>x</p></body></html>`))
	require.Contains(t, string(out), "__livereload")
	require.True(t, strings.HasSuffix(string(out), "</body></html>"))

	// No closing tag: appended instead.
	out = injectReloadScript([]byte(`<p>bare</p>`))
	require.Contains(t, string(out), "__livereload")
}

func TestWatcher_DebouncedBatch(t *testing.T) {
	root := t.TempDir()
	w, err := newWatcher(root, nil, 50*time.Millisecond, discardLogger())
	require.NoError(t, err)
	defer w.close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.md"), []byte("b"), 0644))

	select {
	case changed := <-w.changes:
		require.NotEmpty(t, changed)
		for _, rel := range changed {
			require.False(t, filepath.IsAbs(rel))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change batch within deadline")
	}
}

func TestWatcher_OutputDirWrites_NotReported(t *testing.T) {
	root := t.TempDir()
	outDir := filepath.Join(root, "build")
	require.NoError(t, os.MkdirAll(outDir, 0750))

	w, err := newWatcher(root, []string{outDir}, 50*time.Millisecond, discardLogger())
	require.NoError(t, err)
	defer w.close()

	// A builder writing into its own output directory under the watched
	// source root must not come back as a change.
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "index.html"), []byte("<p>built</p>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "page.md"), []byte("source"), 0644))

	select {
	case changed := <-w.changes:
		require.Equal(t, []string{"page.md"}, changed)
	case <-time.After(3 * time.Second):
		t.Fatal("no change batch within deadline")
	}
}
