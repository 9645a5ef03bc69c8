package build

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
)

// outputRel maps a source-relative page path to its output-relative path.
// Markdown becomes .html, and pretty URLs turn about.html into
// about/index.html (index files stay where they are).
func (s *Session) outputRel(pageRel string) string {
	out := pageRel
	if strings.EqualFold(path.Ext(out), ".md") {
		out = strings.TrimSuffix(out, path.Ext(out)) + ".html"
	}
	if s.Opts.PrettyURLs {
		base := path.Base(out)
		if ext := path.Ext(base); (ext == ".html" || ext == ".htm") && strings.TrimSuffix(base, ext) != "index" {
			out = path.Join(path.Dir(out), strings.TrimSuffix(base, ext), "index.html")
		}
	}
	return out
}

// outputPath returns the absolute output path for a page.
func (s *Session) outputPath(pageRel string) string {
	return filepath.Join(s.OutputRoot, filepath.FromSlash(s.outputRel(pageRel)))
}

// writeOutput writes rendered bytes, creating parent directories.
func writeOutput(absPath string, data []byte) *sberrors.BuildError {
	if err := os.MkdirAll(filepath.Dir(absPath), 0750); err != nil {
		return sberrors.FileSystemError("mkdir", filepath.Dir(absPath), err)
	}
	if err := os.WriteFile(absPath, data, 0644); err != nil {
		return sberrors.FileSystemError("write", absPath, err)
	}
	return nil
}

// interTagWhitespace matches whitespace runs between two tags.
var interTagWhitespace = regexp.MustCompile(`>\s+<`)

// protectedRegions matches elements whose content must survive verbatim:
// whitespace is significant inside pre and textarea, and script/style
// bodies are code, not markup.
var protectedRegions = regexp.MustCompile(`(?is)<(pre|textarea|script|style)\b[^>]*>.*?</\s*(?:pre|textarea|script|style)\s*>`)

// A protected region starts with < and ends with >, so whitespace touching
// a chunk boundary is still inter-tag whitespace.
var (
	leadingBoundaryWS  = regexp.MustCompile(`^\s+<`)
	trailingBoundaryWS = regexp.MustCompile(`>\s+$`)
)

// minifyHTML collapses whitespace between tags outside protected regions.
// Text content and inline markup are left untouched, so the only risk is
// losing purely-presentational gaps between block elements.
func minifyHTML(data []byte) []byte {
	locs := protectedRegions.FindAllIndex(data, -1)
	if len(locs) == 0 {
		return interTagWhitespace.ReplaceAll(data, []byte("><"))
	}

	var out bytes.Buffer
	out.Grow(len(data))
	last := 0
	collapse := func(chunk []byte, afterRegion, beforeRegion bool) {
		chunk = interTagWhitespace.ReplaceAll(chunk, []byte("><"))
		if afterRegion {
			chunk = leadingBoundaryWS.ReplaceAll(chunk, []byte("<"))
		}
		if beforeRegion {
			chunk = trailingBoundaryWS.ReplaceAll(chunk, []byte(">"))
		}
		out.Write(chunk)
	}
	for i, loc := range locs {
		collapse(data[last:loc[0]], i > 0, true)
		out.Write(data[loc[0]:loc[1]])
		last = loc[1]
	}
	collapse(data[last:], true, false)
	return out.Bytes()
}

// writeSitemap emits sitemap.xml for the given emitted pages.
func (s *Session) writeSitemap(outputRels []string) *sberrors.BuildError {
	base := strings.TrimSuffix(s.Opts.BaseURL, "/")
	sort.Strings(outputRels)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, rel := range outputRels {
		loc := rel
		if path.Base(loc) == "index.html" {
			loc = path.Dir(loc)
			if loc == "." {
				loc = ""
			} else {
				loc += "/"
			}
		}
		fmt.Fprintf(&b, "  <url><loc>%s/%s</loc></url>\n", base, loc)
	}
	b.WriteString("</urlset>\n")

	return writeOutput(filepath.Join(s.OutputRoot, "sitemap.xml"), []byte(b.String()))
}

// copyFile copies one file preserving nothing but content.
func copyFile(src, dst string) *sberrors.BuildError {
	data, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		return sberrors.FileSystemError("read", src, err)
	}
	return writeOutput(dst, data)
}
