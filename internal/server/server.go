// Package server runs the development server: static serving of the output
// tree, file watching with incremental rebuilds, and live reload over
// websocket.
package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuild/internal/build"
	"git.home.luguber.info/inful/sitebuild/internal/metrics"
)

// reloadScript is injected into served HTML pages so the browser reconnects
// and reloads after each rebuild.
const reloadScript = `<script>
(function () {
  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/__livereload");
    ws.onmessage = function (ev) { if (ev.data === "reload") location.reload(); };
    ws.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

// DevServer serves the built site and rebuilds on source changes.
type DevServer struct {
	builder *build.Builder
	hub     *reloadHub
	watcher *watcher
	logger  *slog.Logger

	addr     string
	registry *prom.Registry // nil disables /metrics
}

// New creates a DevServer around a builder whose session has completed an
// initial Run.
func New(builder *build.Builder, registry *prom.Registry, logger *slog.Logger) *DevServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := builder.Session()
	return &DevServer{
		builder:  builder,
		hub:      newReloadHub(logger),
		logger:   logger,
		addr:     s.Opts.Serve.Addr,
		registry: registry,
	}
}

// ListenAndServe starts the watcher and blocks serving HTTP until ctx is
// canceled.
func (d *DevServer) ListenAndServe(ctx context.Context) error {
	session := d.builder.Session()

	exclude := []string{session.OutputRoot, session.CacheDir}
	w, err := newWatcher(session.SourceRoot, exclude, time.Duration(session.Opts.Serve.DebounceMS)*time.Millisecond, d.logger)
	if err != nil {
		return err
	}
	d.watcher = w
	go d.rebuildLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/__livereload", d.hub.handle)
	if d.registry != nil {
		mux.Handle("/metrics", metrics.HTTPHandler(d.registry))
	}
	mux.HandleFunc("/", d.serveFile)

	srv := &http.Server{
		Addr:              d.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		d.watcher.close()
	}()

	d.logger.Info("dev server listening", "addr", d.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// rebuildLoop consumes debounced change batches, triggers incremental
// rebuilds, and broadcasts a reload on success.
func (d *DevServer) rebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case changed, ok := <-d.watcher.changes:
			if !ok {
				return
			}
			report, err := d.builder.Rebuild(ctx, changed)
			if err != nil {
				d.logger.Error("incremental rebuild failed", "error", err)
				// Still reload: error markers in the output are more useful
				// than a stale page.
			}
			d.logger.Info("incremental rebuild",
				"changed", len(changed),
				"processed", report.Processed,
				"copied", report.Copied)
			d.hub.broadcast("reload")
		}
	}
}

// serveFile serves the output tree with directory index resolution and
// live-reload script injection on HTML responses.
func (d *DevServer) serveFile(w http.ResponseWriter, r *http.Request) {
	session := d.builder.Session()
	rel := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
	abs := filepath.Join(session.OutputRoot, filepath.FromSlash(rel))

	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		abs = filepath.Join(abs, "index.html")
	}
	if _, err := os.Stat(abs); err != nil {
		// Pretty-URL fallback: /about may live at about/index.html or
		// about.html.
		if alt := abs + ".html"; fileExists(alt) {
			abs = alt
		} else {
			http.NotFound(w, r)
			return
		}
	}

	if strings.HasSuffix(abs, ".html") || strings.HasSuffix(abs, ".htm") {
		data, err := os.ReadFile(filepath.Clean(abs))
		if err != nil {
			http.Error(w, "read error", http.StatusInternalServerError)
			return
		}
		data = injectReloadScript(data)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
		return
	}
	http.ServeFile(w, r, abs)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// injectReloadScript inserts the live-reload snippet before </body>, or
// appends it when no closing tag exists.
func injectReloadScript(page []byte) []byte {
	if i := bytes.LastIndex(page, []byte("</body>")); i >= 0 {
		var b bytes.Buffer
		b.Grow(len(page) + len(reloadScript))
		b.Write(page[:i])
		b.WriteString(reloadScript)
		b.Write(page[i:])
		return b.Bytes()
	}
	return append(page, []byte(reloadScript)...)
}
