package build

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuild/internal/cache"
	"git.home.luguber.info/inful/sitebuild/internal/config"
	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
)

func newTestSession(t *testing.T, store cache.Store, mutate func(*config.Options)) *Session {
	t.Helper()
	opts := config.Default()
	opts.Source = t.TempDir()
	opts.Output = filepath.Join(t.TempDir(), "out")
	if mutate != nil {
		mutate(opts)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewSession(opts, store, nil, logger)
	require.NoError(t, err)
	return s
}

func writeSource(t *testing.T, s *Session, rel, content string) {
	t.Helper()
	full := filepath.Join(s.SourceRoot, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func readOutput(t *testing.T, s *Session, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.OutputRoot, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func outputExists(s *Session, rel string) bool {
	_, err := os.Stat(filepath.Join(s.OutputRoot, filepath.FromSlash(rel)))
	return err == nil
}

func TestRun_FullBuild(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "_layout.html", `<title>Site</title><main><slot></slot></main>`)
	writeSource(t, s, "index.html", `<body><div data-import="_layout.html"><h1>Home</h1></div></body>`)
	writeSource(t, s, "about.md", "---\nlayout: _layout.html\ntitle: About\n---\nAbout text.\n")

	report, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed)
	require.Empty(t, report.Errors)

	index := readOutput(t, s, "index.html")
	require.Contains(t, index, "<main><h1>Home</h1></main>")
	require.Contains(t, index, "<title>Site</title>")

	about := readOutput(t, s, "about.html")
	require.Contains(t, about, "About text.")
	// Page frontmatter title overrides the layout's.
	require.Contains(t, about, "<title>About</title>")
	require.NotContains(t, about, "<title>Site</title>")

	// The layout file itself is never emitted.
	require.False(t, outputExists(s, "_layout.html"))
}

func TestRun_IncludesDirFragmentNotEmitted(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "includes/nav.html", `<p>nav</p>`)
	writeSource(t, s, "index.html", `<body><div data-import="/includes/nav.html"></div></body>`)

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, readOutput(t, s, "index.html"), "nav")
	require.False(t, outputExists(s, "includes/nav.html"))
}

func TestRun_FrontmatterLayoutRegisteredBeforeClassification(t *testing.T) {
	s := newTestSession(t, nil, nil)
	// Layout lives outside includes/ and has no underscore prefix; only the
	// pre-scan frontmatter pass can catch it.
	writeSource(t, s, "base.html", `<main><slot></slot></main>`)
	writeSource(t, s, "page.md", "---\nlayout: base\n---\ncontent\n")

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.True(t, outputExists(s, "page.html"))
	require.False(t, outputExists(s, "base.html"))
}

func TestRun_AssetsDirCopiedUnconditionally(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "assets/logo.png", "PNG")
	writeSource(t, s, "index.html", `<body><p>no references</p></body>`)

	report, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.True(t, outputExists(s, "assets/logo.png"))
	require.Equal(t, 1, report.Copied)
}

func TestRun_UnreferencedFileSkipped(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "data.json", `{}`)
	writeSource(t, s, "index.html", `<body><p>nothing referenced</p></body>`)

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.False(t, outputExists(s, "data.json"))
}

func TestRun_ReferencedFileOutsideAssets_Copied(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "img/photo.png", "PNG")
	writeSource(t, s, "img/orphan.png", "PNG")
	writeSource(t, s, "index.html", `<body><img src="/img/photo.png"></body>`)

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.True(t, outputExists(s, "img/photo.png"))
	require.False(t, outputExists(s, "img/orphan.png"))
}

func TestRun_ExplicitCopyPattern_Unconditional(t *testing.T) {
	s := newTestSession(t, nil, func(o *config.Options) {
		o.Copy = []string{"**/*.pdf"}
	})
	writeSource(t, s, "docs/used.pdf", "used")
	writeSource(t, s, "docs/unused.pdf", "unused")
	writeSource(t, s, "index.html", `<body><a href="/docs/used.pdf">download</a></body>`)

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	// Explicit copy patterns copy unconditionally.
	require.True(t, outputExists(s, "docs/used.pdf"))
	require.True(t, outputExists(s, "docs/unused.pdf"))
}

func TestRun_CSSURLChain_CopiesToFixpoint(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "assets/site.css", `body { background: url("bg.png"); }`)
	writeSource(t, s, "assets/bg.png", "PNG")
	writeSource(t, s, "fonts/mono.woff2", "FONT")
	writeSource(t, s, "css/extra.css", `@font-face { src: url(/fonts/mono.woff2); }`)
	writeSource(t, s, "index.html", `<body><link rel="stylesheet" href="/css/extra.css"><p>x</p></body>`)

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	// extra.css is referenced by the page; the font it names becomes
	// referenced only while copying it.
	require.True(t, outputExists(s, "css/extra.css"))
	require.True(t, outputExists(s, "fonts/mono.woff2"))
	require.True(t, outputExists(s, "assets/site.css"))
	require.True(t, outputExists(s, "assets/bg.png"))
}

func TestRun_MissingFragment_ReportsErrorButFinishes(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "index.html", `<body><div data-import="_absent.html"></div></body>`)
	writeSource(t, s, "other.html", `<body><p>fine</p></body>`)

	report, err := NewBuilder(s).Run(context.Background())
	require.Error(t, err)
	require.NotEmpty(t, report.Errors)
	// The broken page still renders with a marker, and the healthy page
	// builds normally.
	require.Contains(t, readOutput(t, s, "index.html"), "sitebuild-error")
	require.True(t, outputExists(s, "other.html"))
}

func TestRun_FailFast_AbortsOnFirstError(t *testing.T) {
	s := newTestSession(t, nil, func(o *config.Options) {
		o.FailOn = config.FailError
	})
	writeSource(t, s, "aaa.html", `<body><div data-import="_absent.html"></div></body>`)

	report, err := NewBuilder(s).Run(context.Background())
	require.Error(t, err)
	require.NotEmpty(t, report.Errors)
	require.False(t, outputExists(s, "aaa.html"))
}

func TestRun_FailOnWarning_ProblemReportedOnce(t *testing.T) {
	s := newTestSession(t, nil, func(o *config.Options) {
		o.FailOn = config.FailWarning
		o.MaxImportDepth = 1
	})
	writeSource(t, s, "_a.html", `<div data-import="_b.html"></div>`)
	writeSource(t, s, "_b.html", `<p>deep</p>`)
	writeSource(t, s, "index.html", `<body><div data-import="_a.html"></div></body>`)

	report, err := NewBuilder(s).Run(context.Background())
	require.Error(t, err)
	// The depth warning aborts the page and lands in the report exactly
	// once, not once per bookkeeping site.
	require.Len(t, report.Errors, 1)
}

func TestRun_PrettyURLs(t *testing.T) {
	s := newTestSession(t, nil, func(o *config.Options) {
		o.PrettyURLs = true
	})
	writeSource(t, s, "about.html", `<body><p>about</p></body>`)
	writeSource(t, s, "index.html", `<body><p>home</p></body>`)

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.True(t, outputExists(s, "about/index.html"))
	require.True(t, outputExists(s, "index.html"))
	require.False(t, outputExists(s, "about.html"))
}

func TestRun_Sitemap(t *testing.T) {
	s := newTestSession(t, nil, func(o *config.Options) {
		o.Sitemap = true
		o.BaseURL = "https://example.com"
	})
	writeSource(t, s, "index.html", `<body><p>home</p></body>`)
	writeSource(t, s, "about.html", `<body><p>about</p></body>`)

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)

	sitemap := readOutput(t, s, "sitemap.xml")
	require.Contains(t, sitemap, "<loc>https://example.com/</loc>")
	require.Contains(t, sitemap, "<loc>https://example.com/about.html</loc>")
}

func TestRun_Minify(t *testing.T) {
	s := newTestSession(t, nil, func(o *config.Options) {
		o.Minify = true
	})
	writeSource(t, s, "index.html", "<body>\n  <div>\n    <p>text</p>\n  </div>\n</body>")

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, readOutput(t, s, "index.html"), "<div><p>text</p></div>")
}

func TestRun_Clean_RemovesStaleOutput(t *testing.T) {
	s := newTestSession(t, nil, func(o *config.Options) {
		o.Clean = true
	})
	stale := filepath.Join(s.OutputRoot, "stale.html")
	require.NoError(t, os.MkdirAll(s.OutputRoot, 0750))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))
	writeSource(t, s, "index.html", `<body><p>new</p></body>`)

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.False(t, outputExists(s, "stale.html"))
	require.True(t, outputExists(s, "index.html"))
}

func TestRun_SecondBuild_CacheHits(t *testing.T) {
	store, err := cache.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	s := newTestSession(t, store, nil)
	writeSource(t, s, "_layout.html", `<main><slot></slot></main>`)
	writeSource(t, s, "index.html", `<body><div data-import="_layout.html"><p>home</p></div></body>`)
	writeSource(t, s, "assets/logo.png", "PNG")

	first, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)
	require.Equal(t, 1, first.Copied)

	logoOut := filepath.Join(s.OutputRoot, "assets", "logo.png")
	info, err := os.Stat(logoOut)
	require.NoError(t, err)
	firstMtime := info.ModTime()

	// A fresh session against the same store sees the cached entries.
	opts := s.Opts
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s2, err := NewSession(opts, store, nil, logger)
	require.NoError(t, err)

	second, err := NewBuilder(s2).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.Processed)
	// An unchanged tree performs zero rewrites: the asset is not copied
	// again either.
	require.Equal(t, 0, second.Copied)
	// The ignored layout, the cache-hit page, and the up-to-date asset
	// all count as skips.
	require.Equal(t, 3, second.Skipped)

	info, err = os.Stat(logoOut)
	require.NoError(t, err)
	require.Equal(t, firstMtime, info.ModTime())
}

func TestRun_ChangedAsset_Recopied(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "assets/app.css", "body{color:red}")
	writeSource(t, s, "index.html", `<body><p>x</p></body>`)

	b := NewBuilder(s)
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	writeSource(t, s, "assets/app.css", "body{color:blue}")
	bumpMtime(t, filepath.Join(s.SourceRoot, "assets", "app.css"))

	report, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Copied)
	require.Contains(t, readOutput(t, s, "assets/app.css"), "blue")
}

func TestRun_UpToDateStylesheet_StillFeedsReferences(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "fonts/mono.woff2", "FONT")
	writeSource(t, s, "css/extra.css", `@font-face { src: url(/fonts/mono.woff2); }`)
	writeSource(t, s, "index.html", `<body><link rel="stylesheet" href="/css/extra.css"><p>x</p></body>`)

	_, err := NewBuilder(s).Run(context.Background())
	require.NoError(t, err)
	require.True(t, outputExists(s, "fonts/mono.woff2"))

	// Lose the copied font. A fresh session skips the up-to-date
	// stylesheet, but its url() references must still be scanned so the
	// font is restored.
	require.NoError(t, os.Remove(filepath.Join(s.OutputRoot, "fonts", "mono.woff2")))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s2, err := NewSession(s.Opts, nil, nil, logger)
	require.NoError(t, err)
	_, err = NewBuilder(s2).Run(context.Background())
	require.NoError(t, err)
	require.True(t, outputExists(s2, "fonts/mono.woff2"))
}

func TestRun_FragmentChange_InvalidatesCache(t *testing.T) {
	store, err := cache.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	s := newTestSession(t, store, nil)
	writeSource(t, s, "_layout.html", `<main><slot></slot></main>`)
	writeSource(t, s, "index.html", `<body><div data-import="_layout.html"><p>home</p></div></body>`)

	_, err = NewBuilder(s).Run(context.Background())
	require.NoError(t, err)

	writeSource(t, s, "_layout.html", `<main class="v2"><slot></slot></main>`)
	bumpMtime(t, filepath.Join(s.SourceRoot, "_layout.html"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s2, err := NewSession(s.Opts, store, nil, logger)
	require.NoError(t, err)

	second, err := NewBuilder(s2).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, second.Processed)
	require.Contains(t, readOutput(t, s2, "index.html"), `class="v2"`)
}

func TestRebuild_ChangedFragment_RebuildsDependents(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "_layout.html", `<main><slot></slot></main>`)
	writeSource(t, s, "index.html", `<body><div data-import="_layout.html"><p>home</p></div></body>`)
	writeSource(t, s, "plain.html", `<body><p>independent</p></body>`)

	b := NewBuilder(s)
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	writeSource(t, s, "_layout.html", `<main class="updated"><slot></slot></main>`)
	bumpMtime(t, filepath.Join(s.SourceRoot, "_layout.html"))

	report, err := b.Rebuild(context.Background(), []string{"_layout.html"})
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.Contains(t, readOutput(t, s, "index.html"), `class="updated"`)
}

func TestRebuild_ChangedPage_RebuildsItself(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "index.html", `<body><p>v1</p></body>`)

	b := NewBuilder(s)
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	writeSource(t, s, "index.html", `<body><p>v2</p></body>`)
	bumpMtime(t, filepath.Join(s.SourceRoot, "index.html"))

	report, err := b.Rebuild(context.Background(), []string{"index.html"})
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.Contains(t, readOutput(t, s, "index.html"), "v2")
}

func TestRebuild_NewPage_Built(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "index.html", `<body><p>home</p></body>`)

	b := NewBuilder(s)
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	writeSource(t, s, "fresh.html", `<body><p>brand new</p></body>`)
	report, err := b.Rebuild(context.Background(), []string{"fresh.html"})
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.True(t, outputExists(s, "fresh.html"))
}

func TestRebuild_DeletedFile_DroppedQuietly(t *testing.T) {
	s := newTestSession(t, nil, nil)
	writeSource(t, s, "index.html", `<body><p>home</p></body>`)
	writeSource(t, s, "gone.html", `<body><p>soon gone</p></body>`)

	b := NewBuilder(s)
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(s.SourceRoot, "gone.html")))
	report, err := b.Rebuild(context.Background(), []string{"gone.html"})
	require.NoError(t, err)
	require.Equal(t, 0, report.Processed)
}

func TestRebuild_OutputDirChange_Ignored(t *testing.T) {
	// Default layout nests output inside source; the builder's own writes
	// coming back as change events must not be re-ingested as pages, or
	// serve mode rebuilds forever, nesting output inside output.
	s := newTestSession(t, nil, func(o *config.Options) {
		o.Output = filepath.Join(o.Source, "build")
	})
	writeSource(t, s, "index.html", `<body><p>home</p></body>`)

	b := NewBuilder(s)
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	report, err := b.Rebuild(context.Background(), []string{"build/index.html"})
	require.NoError(t, err)
	require.Equal(t, 0, report.Processed)
	require.False(t, outputExists(s, "build/index.html"))
}

func TestRebuild_CacheDirChange_Ignored(t *testing.T) {
	s := newTestSession(t, nil, func(o *config.Options) {
		o.CacheDir = "cachedir"
	})
	writeSource(t, s, "index.html", `<body><p>home</p></body>`)
	writeSource(t, s, "cachedir/cache.db", "not a page")

	b := NewBuilder(s)
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	report, err := b.Rebuild(context.Background(), []string{"cachedir/cache.db"})
	require.NoError(t, err)
	require.Equal(t, 0, report.Processed)
	require.Equal(t, 0, report.Copied)
}

func TestOutputRel(t *testing.T) {
	s := newTestSession(t, nil, nil)

	require.Equal(t, "index.html", s.outputRel("index.html"))
	require.Equal(t, "docs/guide.html", s.outputRel("docs/guide.md"))

	s.Opts.PrettyURLs = true
	require.Equal(t, "about/index.html", s.outputRel("about.html"))
	require.Equal(t, "docs/guide/index.html", s.outputRel("docs/guide.md"))
	require.Equal(t, "index.html", s.outputRel("index.html"))
	require.Equal(t, "docs/index.html", s.outputRel("docs/index.html"))
}

func TestMinifyHTML(t *testing.T) {
	in := []byte("<div>\n  <p>keep  inner  spaces</p>\n</div>")
	out := minifyHTML(in)
	require.Equal(t, "<div><p>keep  inner  spaces</p></div>", string(out))
}

func TestMinifyHTML_PreservesSignificantWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "pre content untouched",
			in:   "<div>\n  <pre><code>a</code>\n  <code>b</code></pre>\n</div>",
			want: "<div><pre><code>a</code>\n  <code>b</code></pre></div>",
		},
		{
			name: "textarea content untouched",
			in:   "<form>\n  <textarea>line>\n  <not a tag</textarea>\n</form>",
			want: "<form><textarea>line>\n  <not a tag</textarea></form>",
		},
		{
			name: "script body untouched",
			in:   "<body>\n  <script>if (a > 1)\n  { b < 2; }</script>\n  <p>x</p>\n</body>",
			want: "<body><script>if (a > 1)\n  { b < 2; }</script><p>x</p></body>",
		},
		{
			name: "collapse resumes after protected region",
			in:   "<div>\n  <pre>x</pre>\n  <div>\n  <p>y</p>\n  </div>\n</div>",
			want: "<div><pre>x</pre><div><p>y</p></div></div>",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, string(minifyHTML([]byte(tc.in))))
		})
	}
}

func bumpMtime(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	future := info.ModTime().Add(2 * 1e9)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestReport_ErrAggregation(t *testing.T) {
	r := &Report{BuildID: "test"}
	require.NoError(t, r.Err())
	require.False(t, r.HasErrors())

	r.addError(sberrors.New(sberrors.CategoryImport, sberrors.SeverityWarning, "depth exceeded"))
	require.NoError(t, r.Err())

	r.addError(sberrors.New(sberrors.CategoryBuild, sberrors.SeverityError, "page failed"))
	err := r.Err()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "2 error(s)"))
}
