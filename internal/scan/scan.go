// Package scan discovers source files for one build.
package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
)

// SourceFile is one entry discovered under the source root. Path is relative
// to the source root and slash-separated. Immutable for the duration of one
// build.
type SourceFile struct {
	Path  string
	IsDir bool
}

// Directories never descended into, regardless of configuration.
var skipDirs = map[string]struct{}{
	".git":             {},
	".hg":              {},
	".svn":             {},
	"node_modules":     {},
	"vendor":           {},
	"bower_components": {},
}

// Scanner walks a source tree and returns the files eligible for
// classification.
type Scanner struct {
	root string
	// outputDir is the absolute output path, excluded in case it nests
	// inside the source tree.
	outputDir string
	// cacheDir is excluded the same way.
	cacheDir string
}

// New creates a Scanner rooted at root. outputDir and cacheDir may be empty.
func New(root, outputDir, cacheDir string) *Scanner {
	abs := func(p string) string {
		if p == "" {
			return ""
		}
		a, err := filepath.Abs(p)
		if err != nil {
			return p
		}
		return a
	}
	return &Scanner{root: abs(root), outputDir: abs(outputDir), cacheDir: abs(cacheDir)}
}

// Root returns the absolute source root.
func (s *Scanner) Root() string { return s.root }

// Scan walks the tree and returns all non-directory entries, sorted by path.
// Hidden entries, the output/cache directories, and dependency-manager
// directories are excluded.
func (s *Scanner) Scan() ([]SourceFile, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, sberrors.FileSystemError("scan", s.root, err).
			WithSuggestion("check that the source directory exists")
	}

	var files []SourceFile
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return sberrors.FileSystemError("scan", path, err)
		}
		if path == s.root {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if _, skip := skipDirs[name]; skip {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if abs, aerr := filepath.Abs(path); aerr == nil && (abs == s.outputDir || abs == s.cacheDir) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") && name != ".htaccess" {
			return nil
		}

		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil {
			return sberrors.FileSystemError("scan", path, rerr)
		}
		files = append(files, SourceFile{Path: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
