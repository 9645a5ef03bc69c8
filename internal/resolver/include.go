package resolver

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"

	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
	"git.home.luguber.info/inful/sitebuild/internal/headmerge"
	"git.home.luguber.info/inful/sitebuild/internal/htmldoc"
)

// includePattern matches the legacy SSI-style include comment:
// <!--#include file="relative/path" --> or
// <!--#include virtual="/abs/from/source/root" -->.
var includePattern = regexp.MustCompile(`^#include\s+(file|virtual)="([^"]+)"$`)

// expandIncludes resolves legacy include comments under root. Includes
// support the same path rules as imports but no slot system: the target's
// body is spliced verbatim in place of the comment.
func (r *Resolver) expandIncludes(root *html.Node, importerRel string, st *state) error {
	for {
		comment, kind, ref := firstInclude(root)
		if comment == nil {
			return nil
		}
		if err := r.expandInclude(comment, kind, ref, importerRel, st); err != nil {
			return err
		}
	}
}

func firstInclude(root *html.Node) (node *html.Node, kind, ref string) {
	htmldoc.Walk(root, func(n *html.Node) bool {
		if node != nil {
			return false
		}
		if n.Type == html.CommentNode {
			if m := includePattern.FindStringSubmatch(strings.TrimSpace(n.Data)); m != nil {
				node, kind, ref = n, m[1], m[2]
				return false
			}
		}
		return true
	})
	return node, kind, ref
}

func (r *Resolver) expandInclude(comment *html.Node, kind, ref, importerRel string, st *state) error {
	// virtual paths resolve from the source root regardless of a leading /.
	if kind == "virtual" && !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	targetRel, perr := r.resolvePath(ref, importerRel)
	if perr != nil {
		return r.recoverInclude(comment, importerRel, st, perr)
	}

	if slices.Contains(st.chain, targetRel) {
		cycle := append(append([]string{}, st.chain...), targetRel)
		return sberrors.CircularImport(cycle)
	}
	if len(st.chain) > r.maxDepth {
		derr := sberrors.MaxDepthExceeded(r.maxDepth, targetRel).WithContext("page", st.chain[0])
		st.problems = append(st.problems, derr)
		htmldoc.ReplaceWithNodes(comment, nil)
		return nil
	}

	r.deps.RecordEdge(importerRel, targetRel)

	fragDoc, fragHead, ferr := r.loadFragment(targetRel)
	if ferr != nil {
		return r.recoverInclude(comment, importerRel, st, ferr)
	}

	st.chain = append(st.chain, targetRel)
	err := r.expandIn(fragDoc, targetRel, st)
	st.chain = st.chain[:len(st.chain)-1]
	if err != nil {
		return err
	}
	st.heads = append(st.heads, headmerge.Fragment{Source: targetRel, HeadHTML: fragHead})

	if body := htmldoc.Body(fragDoc); body != nil {
		htmldoc.ReplaceWithNodes(comment, htmldoc.DetachChildren(body))
	} else {
		htmldoc.ReplaceWithNodes(comment, nil)
	}
	return nil
}

func (r *Resolver) recoverInclude(comment *html.Node, importerRel string, st *state, berr *sberrors.BuildError) error {
	if r.failFast {
		return berr
	}
	st.problems = append(st.problems, berr)
	r.logger.Warn("include failed, inserting error marker", "importer", importerRel, "error", berr.Message)
	nodes, perr := htmldoc.ParseSnippet(`<div class="sitebuild-error">` + berr.Message + `</div>`)
	if perr != nil {
		nodes = nil
	}
	htmldoc.ReplaceWithNodes(comment, nodes)
	return nil
}
