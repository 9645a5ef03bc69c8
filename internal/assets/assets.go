// Package assets records which asset URLs the rendered output references,
// so the copy pass only moves files something actually points at.
package assets

import (
	"path"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitebuild/internal/htmldoc"
	"git.home.luguber.info/inful/sitebuild/internal/util/sets"
)

// Attributes scanned for asset references, per element tag. href is scanned
// on every tag that carries it; non-asset targets (pages, anchors) are
// harmless because the copy pass only consults references for copy-classified
// files.
var assetAttrs = []string{"src", "href", "poster", "data-src"}

// cssURLPattern matches url(...) references inside stylesheets.
var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)

// Tracker owns the referenced-asset set for one build session. Writes
// serialize on an internal mutex.
type Tracker struct {
	mu   sync.RWMutex
	refs sets.Set[string]
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{refs: sets.New[string]()}
}

// RecordReferences walks a page's rendered document and records every
// asset-bearing attribute, normalized against the source root. pageRel is
// the page's source-relative path; relative URLs resolve against its
// directory.
func (t *Tracker) RecordReferences(pageRel string, doc *html.Node) {
	baseDir := path.Dir(pageRel)
	htmldoc.Walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for _, attr := range assetAttrs {
			if v, ok := htmldoc.Attr(n, attr); ok {
				t.record(baseDir, v)
			}
		}
		if srcset, ok := htmldoc.Attr(n, "srcset"); ok {
			for _, candidate := range strings.Split(srcset, ",") {
				fields := strings.Fields(strings.TrimSpace(candidate))
				if len(fields) > 0 {
					t.record(baseDir, fields[0])
				}
			}
		}
		return true
	})
}

// RecordCSSReferences scans stylesheet content for url(...) references and
// records them relative to the stylesheet's own directory.
func (t *Tracker) RecordCSSReferences(cssRel string, content []byte) {
	baseDir := path.Dir(cssRel)
	for _, m := range cssURLPattern.FindAllSubmatch(content, -1) {
		t.record(baseDir, string(m[1]))
	}
}

// IsReferenced reports whether the source-relative asset path was referenced
// by any processed content.
func (t *Tracker) IsReferenced(assetRel string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refs.Has(path.Clean(assetRel))
}

// References returns all recorded asset paths, sorted.
func (t *Tracker) References() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sets.SortedValues(t.refs)
}

// record normalizes one URL against the source root and stores it. External
// URLs, anchors, and data URIs are dropped; queries and fragments are
// stripped.
func (t *Tracker) record(baseDir, raw string) {
	normalized, ok := Normalize(baseDir, raw)
	if !ok {
		return
	}
	t.mu.Lock()
	t.refs.Add(normalized)
	t.mu.Unlock()
}

// Normalize resolves an in-page URL to a source-root-relative path. ok is
// false for URLs that cannot refer to a local asset.
func Normalize(baseDir, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	if strings.HasPrefix(raw, "//") || strings.Contains(raw, "://") ||
		strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "mailto:") ||
		strings.HasPrefix(raw, "tel:") || strings.HasPrefix(raw, "javascript:") {
		return "", false
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "", false
	}

	var resolved string
	if strings.HasPrefix(raw, "/") {
		resolved = path.Clean(strings.TrimPrefix(raw, "/"))
	} else {
		resolved = path.Clean(path.Join(baseDir, raw))
	}
	if resolved == "." || strings.HasPrefix(resolved, "../") {
		return "", false
	}
	return resolved, true
}
