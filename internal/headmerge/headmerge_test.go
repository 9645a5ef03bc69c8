package headmerge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMerge_TitleOverride_PageWins(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<title>Site</title>`},
		{Source: "about.html", HeadHTML: `<title>About</title>`},
	})
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "<title>"))
	require.Contains(t, out, "<title>About</title>")
}

func TestMerge_TitlePosition_StaysAtFirstOccurrence(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<title>Site</title><link rel="stylesheet" href="/site.css">`},
		{Source: "about.html", HeadHTML: `<title>About</title>`},
	})
	require.NoError(t, err)
	// Override replaces in place: the title keeps the layout's slot before
	// the stylesheet.
	require.Less(t, strings.Index(out, "<title>About</title>"), strings.Index(out, "site.css"))
}

func TestMerge_StylesheetDedup_KeepsFirst(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<link rel="stylesheet" href="/site.css">`},
		{Source: "about.html", HeadHTML: `<link rel="stylesheet" href="/site.css">`},
	})
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "site.css"))
}

func TestMerge_DifferentStylesheets_BothKept(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<link rel="stylesheet" href="/site.css">`},
		{Source: "about.html", HeadHTML: `<link rel="stylesheet" href="/about.css">`},
	})
	require.NoError(t, err)
	require.Contains(t, out, "site.css")
	require.Contains(t, out, "about.css")
}

func TestMerge_MetaByName_LaterWins(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<meta name="description" content="default">`},
		{Source: "about.html", HeadHTML: `<meta name="description" content="about us">`},
	})
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, `name="description"`))
	require.Contains(t, out, "about us")
	require.NotContains(t, out, `content="default"`)
}

func TestMerge_MetaByProperty_LaterWins(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<meta property="og:title" content="Site">`},
		{Source: "about.html", HeadHTML: `<meta property="og:title" content="About">`},
	})
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "og:title"))
	require.Contains(t, out, `content="About"`)
}

func TestMerge_MetaCharset_Singleton(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<meta charset="utf-8">`},
		{Source: "about.html", HeadHTML: `<meta charset="utf-8">`},
	})
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "charset"))
}

func TestMerge_ExternalScript_Dedup(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<script src="/app.js"></script>`},
		{Source: "about.html", HeadHTML: `<script src="/app.js"></script>`},
	})
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "app.js"))
}

func TestMerge_InlineScriptsAndStyles_NeverDeduped(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<script>console.log(1)</script><style>body{margin:0}</style>`},
		{Source: "about.html", HeadHTML: `<script>console.log(1)</script><style>body{margin:0}</style>`},
	})
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(out, "console.log(1)"))
	require.Equal(t, 2, strings.Count(out, "margin:0"))
}

func TestMerge_KeylessElements_PreserveOrder(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "_layout.html", HeadHTML: `<style>a{}</style>`},
		{Source: "about.html", HeadHTML: `<style>b{}</style>`},
	})
	require.NoError(t, err)
	require.Less(t, strings.Index(out, "a{}"), strings.Index(out, "b{}"))
}

func TestMerge_EmptyFragments_EmptyResult(t *testing.T) {
	m := New(nil)

	out, err := m.Merge(nil)
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = m.Merge([]Fragment{{Source: "a", HeadHTML: "  \n  "}})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestMerge_LinkWithoutRel_Verbatim(t *testing.T) {
	m := New(nil)

	out, err := m.Merge([]Fragment{
		{Source: "a", HeadHTML: `<link href="/x.css">`},
		{Source: "b", HeadHTML: `<link href="/x.css">`},
	})
	require.NoError(t, err)
	// No rel means no identity, so both survive.
	require.Equal(t, 2, strings.Count(out, "x.css"))
}
