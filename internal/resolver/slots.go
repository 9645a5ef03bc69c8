package resolver

import (
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitebuild/internal/htmldoc"
)

const (
	slotTag        = "slot"
	targetMarkTag  = "template"
	targetAttrName = "data-target"
)

// splitSlotContent partitions a directive's inner markup into the default
// block and named blocks. A <template data-target="name"> child claims the
// named slot; everything else belongs to the default block. All returned
// nodes are detached from the directive.
func splitSlotContent(directive *html.Node) ([]*html.Node, map[string][]*html.Node) {
	var defaultBlock []*html.Node
	named := map[string][]*html.Node{}

	for _, child := range htmldoc.DetachChildren(directive) {
		if child.Type == html.ElementNode && child.Data == targetMarkTag {
			if name, ok := htmldoc.Attr(child, targetAttrName); ok && name != "" {
				named[name] = append(named[name], htmldoc.DetachChildren(child)...)
				continue
			}
		}
		defaultBlock = append(defaultBlock, child)
	}
	return defaultBlock, named
}

// fillSlots replaces every <slot> in the fragment document with the matching
// block, or leaves the slot's own children as fallback content when the
// importer supplied nothing. Blocks are cloned on insertion so a slot name
// appearing twice receives identical content.
func fillSlots(fragDoc *html.Node, defaultBlock []*html.Node, named map[string][]*html.Node) {
	for _, slot := range htmldoc.FindAllByTag(fragDoc, slotTag) {
		name := htmldoc.AttrOr(slot, "name", "")
		var fill []*html.Node
		switch {
		case name != "":
			if block, ok := named[name]; ok {
				fill = cloneNodes(block)
			}
		case hasContent(defaultBlock):
			fill = cloneNodes(defaultBlock)
		}
		if fill == nil {
			fill = htmldoc.DetachChildren(slot)
		}
		htmldoc.ReplaceWithNodes(slot, fill)
	}
}

func cloneNodes(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, htmldoc.Clone(n))
	}
	return out
}

// hasContent reports whether the block holds anything beyond whitespace.
func hasContent(nodes []*html.Node) bool {
	for _, n := range nodes {
		switch n.Type {
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				return true
			}
		case html.ElementNode, html.CommentNode:
			return true
		}
	}
	return false
}
