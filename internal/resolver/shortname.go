package resolver

import (
	"os"
	"path"
	"path/filepath"

	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
)

// layoutSuffix is the conventional suffix tried for underscore-prefixed
// layout files during short-name lookup.
const layoutSuffix = ".layout"

// resolveShortName finds the fragment file for an unqualified name. The
// search walks the importing file's directory, then each parent up to the
// source root, then the conventional includes directory. Within a directory
// the filename patterns are tried in precedence order, each with .html
// before .htm.
func (r *Resolver) resolveShortName(name, importerRel string) (string, *sberrors.BuildError) {
	var dirs []string
	dir := path.Dir(importerRel)
	for {
		dirs = append(dirs, dir)
		if dir == "." {
			break
		}
		dir = path.Dir(dir)
	}
	if r.includesDir != "" {
		dirs = append(dirs, r.includesDir)
	}

	for _, d := range dirs {
		for _, candidate := range shortNameCandidates(name) {
			rel := path.Join(d, candidate)
			abs := filepath.Join(r.sourceRoot, filepath.FromSlash(rel))
			if info, err := os.Stat(abs); err == nil && !info.IsDir() {
				return rel, nil
			}
		}
	}
	return "", sberrors.FragmentNotFound(name, importerRel)
}

// shortNameCandidates returns the filenames tried for a short name, in
// precedence order: exact, underscore-prefixed, underscore-prefixed with the
// layout suffix.
func shortNameCandidates(name string) []string {
	return []string{
		name + ".html",
		name + ".htm",
		"_" + name + ".html",
		"_" + name + ".htm",
		"_" + name + layoutSuffix + ".html",
		"_" + name + layoutSuffix + ".htm",
	}
}
