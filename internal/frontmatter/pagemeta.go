package frontmatter

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// PageMeta is the typed view of recognized frontmatter keys. Unrecognized
// keys are preserved in Extra so layouts can still consume them; they do not
// participate in head synthesis.
type PageMeta struct {
	Layout      string
	Title       string
	Description string
	Keywords    string
	Author      string
	OpenGraph   map[string]string // og.* keys, flattened
	Twitter     map[string]string // twitter.* keys, flattened
	Extra       map[string]any
}

// ParseMeta interprets a parsed frontmatter map into PageMeta.
// og/twitter accept either dotted keys (og.title) or nested maps.
func ParseMeta(fields map[string]any) PageMeta {
	meta := PageMeta{
		OpenGraph: map[string]string{},
		Twitter:   map[string]string{},
		Extra:     map[string]any{},
	}
	for key, val := range fields {
		switch key {
		case "layout":
			meta.Layout = toString(val)
		case "title":
			meta.Title = toString(val)
		case "description":
			meta.Description = toString(val)
		case "keywords":
			meta.Keywords = keywordString(val)
		case "author":
			meta.Author = toString(val)
		case "og":
			flattenInto(meta.OpenGraph, val)
		case "twitter":
			flattenInto(meta.Twitter, val)
		default:
			switch {
			case strings.HasPrefix(key, "og."):
				meta.OpenGraph[key[len("og."):]] = toString(val)
			case strings.HasPrefix(key, "twitter."):
				meta.Twitter[key[len("twitter."):]] = toString(val)
			default:
				meta.Extra[key] = val
			}
		}
	}
	return meta
}

// HeadHTML synthesizes the head elements this metadata contributes, in a
// stable order. Returns "" when nothing is set.
func (m PageMeta) HeadHTML() string {
	var b strings.Builder
	if m.Title != "" {
		fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(m.Title))
	}
	writeMeta := func(name, content string) {
		if content != "" {
			fmt.Fprintf(&b, `<meta name=%q content=%q>`, name, content)
		}
	}
	writeMeta("description", m.Description)
	writeMeta("keywords", m.Keywords)
	writeMeta("author", m.Author)
	for _, k := range sortedKeys(m.OpenGraph) {
		fmt.Fprintf(&b, `<meta property=%q content=%q>`, "og:"+k, m.OpenGraph[k])
	}
	for _, k := range sortedKeys(m.Twitter) {
		fmt.Fprintf(&b, `<meta name=%q content=%q>`, "twitter:"+k, m.Twitter[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flattenInto(dst map[string]string, val any) {
	nested, ok := val.(map[string]any)
	if !ok {
		return
	}
	for k, v := range nested {
		dst[k] = toString(v)
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// keywordString renders either a plain string or a YAML list as a
// comma-separated keyword list.
func keywordString(v any) string {
	if list, ok := v.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, toString(item))
		}
		return strings.Join(parts, ", ")
	}
	return toString(v)
}
