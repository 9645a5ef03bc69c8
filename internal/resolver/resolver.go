// Package resolver expands cascading import directives in page and fragment
// markup.
//
// A directive is any element carrying a data-import attribute whose value is
// an explicit path (leading / resolves from the source root, otherwise
// relative to the importing file) or a short name looked up by directory
// search. The imported fragment may declare <slot> insertion points; the
// importer's inner markup fills them, with <template data-target="name">
// blocks claiming named slots and everything else forming the default block.
//
// Resolution is depth-first. Each import pushes its path onto the resolution
// chain; revisiting a path raises a circular-import error and exceeding the
// configured maximum depth stops that branch. A missing fragment is replaced
// with a visible error marker unless the build runs fail-fast.
package resolver

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitebuild/internal/deps"
	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
	"git.home.luguber.info/inful/sitebuild/internal/frontmatter"
	"git.home.luguber.info/inful/sitebuild/internal/headmerge"
	"git.home.luguber.info/inful/sitebuild/internal/htmldoc"
	"git.home.luguber.info/inful/sitebuild/internal/markdown"
)

// ImportAttr is the attribute marking an import directive.
const ImportAttr = "data-import"

// Resolver expands imports for one build session. Safe for concurrent use:
// per-page state lives on the stack and the trackers serialize their own
// writes.
type Resolver struct {
	sourceRoot  string
	includesDir string
	maxDepth    int
	failFast    bool

	md     *markdown.Renderer
	deps   *deps.Tracker
	logger *slog.Logger
}

// New creates a Resolver.
func New(sourceRoot, includesDir string, maxDepth int, failFast bool, md *markdown.Renderer, tracker *deps.Tracker, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		sourceRoot:  sourceRoot,
		includesDir: includesDir,
		maxDepth:    maxDepth,
		failFast:    failFast,
		md:          md,
		deps:        tracker,
		logger:      logger,
	}
}

// Result is the outcome of resolving one page.
type Result struct {
	// Doc is the fully expanded document tree.
	Doc *html.Node
	// Heads holds the collected head fragments in merge order: outermost
	// layout first, the page's own head last.
	Heads []headmerge.Fragment
	// Problems lists recoverable errors that were patched over with
	// markers (missing fragments, traversal attempts, depth limits).
	Problems []*sberrors.BuildError
}

// state carries the mutable accumulation for one page resolution.
type state struct {
	chain    []string // ResolutionChain: source-relative paths being expanded
	heads    []headmerge.Fragment
	problems []*sberrors.BuildError
}

// ResolvePage expands all directives in a page. pageRel is the page's
// source-relative path; content is its raw bytes. Markdown pages are
// rendered first, and a frontmatter layout key wraps the rendered body in an
// import of that layout.
func (r *Resolver) ResolvePage(pageRel string, content []byte) (*Result, error) {
	pageHead := ""
	if isMarkdown(pageRel) {
		rendered, meta, err := r.renderMarkdown(pageRel, content)
		if err != nil {
			return nil, err
		}
		if meta.Layout != "" {
			rendered = fmt.Sprintf("<div %s=%q>%s</div>", ImportAttr, meta.Layout, rendered)
		}
		content = []byte(rendered)
		pageHead = meta.HeadHTML()
	}

	doc, err := htmldoc.ParseDocument(content)
	if err != nil {
		return nil, sberrors.BuildFailed(pageRel, err)
	}

	st := &state{chain: []string{pageRel}}
	if err := r.expandIn(doc, pageRel, st); err != nil {
		return nil, err
	}

	// The page's own head goes last so its content wins override-style
	// merges against layout defaults.
	ownHead := ""
	if head := htmldoc.Head(doc); head != nil {
		inner, rerr := htmldoc.RenderChildren(head)
		if rerr != nil {
			return nil, sberrors.BuildFailed(pageRel, rerr)
		}
		ownHead = inner
		// Cleared here; the merged head is reinstated by the orchestrator.
		htmldoc.DetachChildren(head)
	}
	st.heads = append(st.heads, headmerge.Fragment{Source: pageRel, HeadHTML: ownHead + pageHead})

	return &Result{Doc: doc, Heads: st.heads, Problems: st.problems}, nil
}

// expandIn resolves every directive under root. importerRel is the file the
// markup came from; nested relative references resolve against it.
func (r *Resolver) expandIn(root *html.Node, importerRel string, st *state) error {
	if err := r.expandIncludes(root, importerRel, st); err != nil {
		return err
	}
	for {
		directive := firstDirective(root)
		if directive == nil {
			return nil
		}
		if err := r.expandDirective(directive, importerRel, st); err != nil {
			return err
		}
	}
}

// firstDirective returns the first unexpanded import element in document
// order, or nil. Directives are located one at a time because expansion
// rewrites the tree under the cursor.
func firstDirective(root *html.Node) *html.Node {
	var found *html.Node
	htmldoc.Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode {
			if _, ok := htmldoc.Attr(n, ImportAttr); ok {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// expandDirective resolves one import element, splicing the expanded
// fragment into the tree in its place.
func (r *Resolver) expandDirective(directive *html.Node, importerRel string, st *state) error {
	ref, _ := htmldoc.Attr(directive, ImportAttr)
	// Cleared up front so a failure marker never re-triggers expansion.
	htmldoc.RemoveAttr(directive, ImportAttr)

	// Resolve the importer's own inner markup first: slot content authored
	// here must resolve relative paths against the importing file, not the
	// fragment it ends up spliced into.
	if err := r.expandChildren(directive, importerRel, st); err != nil {
		return err
	}

	targetRel, rerr := r.resolveTarget(ref, importerRel)
	if rerr != nil {
		return r.recover(directive, importerRel, st, rerr)
	}

	// Cycle check: membership in the resolution chain.
	if slices.Contains(st.chain, targetRel) {
		cycle := append(append([]string{}, st.chain...), targetRel)
		return sberrors.CircularImport(cycle)
	}
	// Depth check: chain length against the configured maximum.
	if len(st.chain) > r.maxDepth {
		derr := sberrors.MaxDepthExceeded(r.maxDepth, targetRel).WithContext("page", st.chain[0])
		st.problems = append(st.problems, derr)
		r.logger.Warn("max import depth exceeded, branch left unexpanded",
			"page", st.chain[0], "target", targetRel, "max_depth", r.maxDepth)
		// The branch stops expanding: keep the importer's own content.
		htmldoc.ReplaceWithNodes(directive, htmldoc.DetachChildren(directive))
		return nil
	}

	r.deps.RecordEdge(importerRel, targetRel)

	fragDoc, fragHead, ferr := r.loadFragment(targetRel)
	if ferr != nil {
		return r.recover(directive, importerRel, st, ferr)
	}

	// Fill the fragment's slots from the importer's inner markup.
	defaultBlock, namedBlocks := splitSlotContent(directive)
	fillSlots(fragDoc, defaultBlock, namedBlocks)

	// Recurse into the filled fragment with the target on the chain, then
	// collect its head after its own imports so outer layouts come first.
	st.chain = append(st.chain, targetRel)
	err := r.expandIn(fragDoc, targetRel, st)
	st.chain = st.chain[:len(st.chain)-1]
	if err != nil {
		return err
	}
	st.heads = append(st.heads, headmerge.Fragment{Source: targetRel, HeadHTML: fragHead})

	body := htmldoc.Body(fragDoc)
	if body == nil {
		htmldoc.ReplaceWithNodes(directive, nil)
		return nil
	}
	htmldoc.ReplaceWithNodes(directive, htmldoc.DetachChildren(body))
	return nil
}

// expandChildren resolves directives among the children of n only.
func (r *Resolver) expandChildren(n *html.Node, importerRel string, st *state) error {
	for {
		var found *html.Node
		for c := n.FirstChild; c != nil && found == nil; c = c.NextSibling {
			found = firstDirective(c)
		}
		if found == nil {
			return nil
		}
		if err := r.expandDirective(found, importerRel, st); err != nil {
			return err
		}
	}
}

// recover handles a recoverable directive failure: in fail-fast mode it
// aborts the page, otherwise it records the problem and splices a visible
// error marker so the rest of the page still renders.
func (r *Resolver) recover(directive *html.Node, importerRel string, st *state, berr *sberrors.BuildError) error {
	if r.failFast {
		return berr
	}
	st.problems = append(st.problems, berr)
	if berr.Category == sberrors.CategorySecurity {
		r.logger.Warn("security: import path escapes source root",
			"importer", importerRel, "reference", berr.Context["reference"])
	} else {
		r.logger.Warn("import failed, inserting error marker",
			"importer", importerRel, "error", berr.Message)
	}
	marker := fmt.Sprintf(`<div class="sitebuild-error" style="border:2px solid #c00;padding:.5em">%s</div>`, berr.Message)
	nodes, perr := htmldoc.ParseSnippet(marker)
	if perr != nil {
		nodes = nil
	}
	htmldoc.ReplaceWithNodes(directive, nodes)
	return nil
}

// loadFragment reads and parses a fragment, returning its document (body
// holds the splice content) and its head contribution. Markdown fragments
// are rendered before slot extraction.
func (r *Resolver) loadFragment(targetRel string) (*html.Node, string, *sberrors.BuildError) {
	abs := filepath.Join(r.sourceRoot, filepath.FromSlash(targetRel))
	raw, err := os.ReadFile(filepath.Clean(abs))
	if err != nil {
		return nil, "", sberrors.FragmentNotFound(targetRel, "").WithContext("cause", err.Error())
	}

	metaHead := ""
	if isMarkdown(targetRel) {
		rendered, meta, merr := r.renderMarkdown(targetRel, raw)
		if merr != nil {
			return nil, "", merr
		}
		raw = []byte(rendered)
		metaHead = meta.HeadHTML()
	}

	doc, err := htmldoc.ParseDocument(raw)
	if err != nil {
		return nil, "", sberrors.BuildFailed(targetRel, err)
	}

	head := ""
	if h := htmldoc.Head(doc); h != nil {
		inner, rerr := htmldoc.RenderChildren(h)
		if rerr != nil {
			return nil, "", sberrors.BuildFailed(targetRel, rerr)
		}
		head = inner
	}
	return doc, head + metaHead, nil
}

// renderMarkdown splits frontmatter and renders the body to HTML.
func (r *Resolver) renderMarkdown(rel string, raw []byte) (string, frontmatter.PageMeta, *sberrors.BuildError) {
	fm, body, _, err := frontmatter.Split(raw)
	if err != nil {
		return "", frontmatter.PageMeta{}, sberrors.MarkdownError(rel, err)
	}
	fields, err := frontmatter.ParseYAML(fm)
	if err != nil {
		return "", frontmatter.PageMeta{}, sberrors.MarkdownError(rel, err).
			WithSuggestion("check the YAML frontmatter block")
	}
	rendered, err := r.md.Render(body)
	if err != nil {
		return "", frontmatter.PageMeta{}, sberrors.MarkdownError(rel, err)
	}
	return string(rendered), frontmatter.ParseMeta(fields), nil
}

// resolveTarget turns a directive reference into a source-relative path.
func (r *Resolver) resolveTarget(ref, importerRel string) (string, *sberrors.BuildError) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", sberrors.FragmentNotFound(ref, importerRel).
			WithSuggestion("the import attribute needs a path or short name")
	}
	if isExplicitPath(ref) {
		rel, err := r.resolvePath(ref, importerRel)
		if err != nil {
			return "", err
		}
		if _, serr := os.Stat(filepath.Join(r.sourceRoot, filepath.FromSlash(rel))); serr != nil {
			return "", sberrors.FragmentNotFound(ref, importerRel)
		}
		return rel, nil
	}
	return r.resolveShortName(ref, importerRel)
}

// LookupTarget resolves a reference the way a directive would, without
// recording anything. Used by the orchestrator's pre-scan pass to register
// layout files ahead of classification.
func (r *Resolver) LookupTarget(ref, importerRel string) (string, bool) {
	rel, err := r.resolveTarget(ref, importerRel)
	return rel, err == nil
}

// isExplicitPath reports whether ref is a path rather than a short name.
func isExplicitPath(ref string) bool {
	if strings.ContainsAny(ref, "/\\") {
		return true
	}
	switch strings.ToLower(path.Ext(ref)) {
	case ".html", ".htm", ".md":
		return true
	}
	return false
}

// resolvePath applies the uniform path rule: a leading / resolves from the
// source root, anything else against the importing file's directory. The
// result must stay inside the source root; escaping it is a path-traversal
// error, a security invariant rather than a convenience check.
func (r *Resolver) resolvePath(ref, importerRel string) (string, *sberrors.BuildError) {
	var joined string
	if strings.HasPrefix(ref, "/") {
		joined = path.Clean(strings.TrimPrefix(ref, "/"))
	} else {
		joined = path.Clean(path.Join(path.Dir(importerRel), ref))
	}
	if joined == ".." || strings.HasPrefix(joined, "../") || path.IsAbs(joined) {
		return "", sberrors.PathTraversal(ref, importerRel)
	}
	return joined, nil
}

func isMarkdown(rel string) bool {
	return strings.EqualFold(path.Ext(rel), ".md")
}
