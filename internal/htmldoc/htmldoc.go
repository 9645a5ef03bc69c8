// Package htmldoc wraps golang.org/x/net/html with the small set of tree
// operations the build pipeline needs: parse, locate elements by tag or
// attribute, splice replacement content, and render back to markup.
//
// Keeping the surface minimal means any HTML-capable parser could back it;
// nothing outside this package touches html.Node internals for mutation.
package htmldoc

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseDocument parses bytes as a full HTML document. The parser always
// produces an html/head/body skeleton, moving head-eligible elements into
// head, which the head-merge engine relies on.
func ParseDocument(data []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(data))
}

// ParseSnippet parses markup in body context and returns the top-level
// nodes, detached and ready for insertion into another tree.
func ParseSnippet(markup string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		n.Parent = nil
		n.PrevSibling = nil
		n.NextSibling = nil
	}
	return nodes, nil
}

// RenderDocument renders a parsed document back to markup.
func RenderDocument(root *html.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderChildren renders the concatenated markup of n's children.
func RenderChildren(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Walk visits every node under root in document order. The visitor returns
// false to stop descending into the current node's children.
func Walk(root *html.Node, visit func(*html.Node) bool) {
	if root == nil {
		return
	}
	if !visit(root) {
		return
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, visit)
	}
}

// FindByAttr returns all elements under root carrying the given attribute,
// in document order.
func FindByAttr(root *html.Node, attrKey string) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if _, ok := Attr(n, attrKey); ok {
				out = append(out, n)
			}
		}
		return true
	})
	return out
}

// FindFirstByTag returns the first element with the given tag name, or nil.
func FindFirstByTag(root *html.Node, tag string) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindAllByTag returns every element with the given tag name, in document
// order.
func FindAllByTag(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Head returns the document's head element, or nil.
func Head(doc *html.Node) *html.Node { return FindFirstByTag(doc, "head") }

// Body returns the document's body element, or nil.
func Body(doc *html.Node) *html.Node { return FindFirstByTag(doc, "body") }

// Attr returns the value of the named attribute on n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or a fallback.
func AttrOr(n *html.Node, key, fallback string) string {
	if v, ok := Attr(n, key); ok {
		return v
	}
	return fallback
}

// SetAttr sets or replaces an attribute on n.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute from n if present.
func RemoveAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Detach removes n from its parent, leaving it free for reinsertion.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// DetachChildren removes and returns all children of n in order.
func DetachChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for n.FirstChild != nil {
		c := n.FirstChild
		n.RemoveChild(c)
		out = append(out, c)
	}
	return out
}

// ReplaceWithNodes replaces n with the given nodes (which must be detached).
func ReplaceWithNodes(n *html.Node, replacements []*html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for _, r := range replacements {
		Detach(r)
		parent.InsertBefore(r, n)
	}
	parent.RemoveChild(n)
}

// AppendChildren appends the given nodes (detaching them first) to parent.
func AppendChildren(parent *html.Node, nodes []*html.Node) {
	for _, c := range nodes {
		Detach(c)
		parent.AppendChild(c)
	}
}

// Text returns the concatenated text content under n.
func Text(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// Clone returns a deep copy of n, detached from any tree.
func Clone(n *html.Node) *html.Node {
	cp := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cp.AppendChild(Clone(c))
	}
	return cp
}
