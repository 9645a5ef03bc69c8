// Package headmerge composes the <head> contributions collected while
// resolving one page's imports into a single deduplicated head block.
//
// Elements with an identity key are deduplicated; the policy differs by
// element kind. Resource references (stylesheets, icons, external scripts)
// keep the first occurrence: a duplicate is the same resource, so order is
// irrelevant. Content-bearing singletons (title, named meta, canonical) let
// the later fragment win: page content should override a layout default.
// Elements without a key, including inline <style> and <script>, are
// appended verbatim in encounter order.
package headmerge

import (
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitebuild/internal/htmldoc"
)

// Fragment is one head contribution, tagged with the source path that
// produced it. Fragments arrive in resolution order: outermost layout first,
// the page's own content last.
type Fragment struct {
	Source   string
	HeadHTML string
}

// Merger merges head fragments for one page.
type Merger struct {
	logger *slog.Logger
}

// New creates a Merger.
func New(logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{logger: logger}
}

// Merge consumes the ordered fragment list and returns one head block.
func (m *Merger) Merge(fragments []Fragment) (string, error) {
	var ordered []*html.Node
	index := map[string]int{} // identity key -> position in ordered

	for _, frag := range fragments {
		nodes, err := htmldoc.ParseSnippet(frag.HeadHTML)
		if err != nil {
			return "", err
		}
		for _, n := range nodes {
			if n.Type != html.ElementNode {
				// Whitespace and comments between head elements carry no
				// identity; keep them.
				if n.Type == html.TextNode && strings.TrimSpace(n.Data) == "" {
					continue
				}
				ordered = append(ordered, n)
				continue
			}

			key, policy := identity(n)
			if key == "" {
				ordered = append(ordered, n)
				continue
			}

			pos, seen := index[key]
			if !seen {
				index[key] = len(ordered)
				ordered = append(ordered, n)
				continue
			}

			switch policy {
			case policyOverride:
				ordered[pos] = n
			case policyKeepFirst:
				if !sameAttrs(ordered[pos], n) {
					m.logger.Warn("head merge: duplicate resource with differing attributes, keeping first",
						"key", key, "source", frag.Source)
				}
			}
		}
	}

	var b strings.Builder
	for _, n := range ordered {
		if err := html.Render(&b, n); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

type mergePolicy int

const (
	policyOverride  mergePolicy = iota // later fragment replaces earlier
	policyKeepFirst                    // first occurrence kept
)

// identity returns the dedup key and collision policy for an element, or an
// empty key when the element merges verbatim.
func identity(n *html.Node) (string, mergePolicy) {
	switch n.Data {
	case "title":
		return "title", policyOverride
	case "meta":
		if name, ok := htmldoc.Attr(n, "name"); ok && name != "" {
			return "meta:name:" + name, policyOverride
		}
		if prop, ok := htmldoc.Attr(n, "property"); ok && prop != "" {
			return "meta:property:" + prop, policyOverride
		}
		if _, ok := htmldoc.Attr(n, "charset"); ok {
			return "meta:charset", policyOverride
		}
	case "link":
		rel := htmldoc.AttrOr(n, "rel", "")
		if rel == "canonical" {
			return "link:canonical", policyOverride
		}
		if href, ok := htmldoc.Attr(n, "href"); ok && rel != "" {
			return "link:" + rel + ":" + href, policyKeepFirst
		}
	case "script":
		if src, ok := htmldoc.Attr(n, "src"); ok && src != "" {
			// Inline scripts never reach here; only external references
			// carry an identity.
			return "script:" + src, policyKeepFirst
		}
	}
	return "", policyOverride
}

// sameAttrs reports whether two elements carry identical attribute sets.
func sameAttrs(a, b *html.Node) bool {
	if len(a.Attr) != len(b.Attr) {
		return false
	}
	fmtAttrs := func(n *html.Node) []string {
		out := make([]string, 0, len(n.Attr))
		for _, at := range n.Attr {
			out = append(out, at.Key+"="+at.Val)
		}
		sort.Strings(out)
		return out
	}
	aa, bb := fmtAttrs(a), fmtAttrs(b)
	for i := range aa {
		if aa[i] != bb[i] {
			return false
		}
	}
	return true
}
