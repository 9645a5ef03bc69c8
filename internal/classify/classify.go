// Package classify decides each source file's fate for one build.
//
// Classification evaluates three precedence tiers: explicit overrides
// (render patterns), ignore rules, then default behavior. It is pure with
// respect to the filesystem; the orchestrator registers known fragment paths
// before classification starts (two-pass contract).
package classify

import (
	"path"
	"strings"

	"git.home.luguber.info/inful/sitebuild/internal/config"
	"git.home.luguber.info/inful/sitebuild/internal/util/sets"
)

// Action is what the build does with a file.
type Action string

const (
	ActionEmit    Action = "emit"    // render through the import pipeline
	ActionCopy    Action = "copy"    // copy verbatim (subject to reference tracking)
	ActionSkip    Action = "skip"    // leave out of the output
	ActionIgnored Action = "ignored" // explicitly suppressed by a rule
)

// Tier identifies which precedence level produced a classification.
type Tier int

const (
	TierOverride Tier = 1 // explicit render override
	TierIgnore   Tier = 2 // ignore rules and auto-ignore
	TierDefault  Tier = 3 // extension/pattern defaults
)

// Classification is the outcome for one path. Never persisted; recomputed
// every scan.
type Classification struct {
	Action Action
	Reason string
	Tier   Tier
}

// Classifier evaluates classification rules for one build session. It holds
// no filesystem handles; registered fragments are the only mutable state and
// must all be registered before Classify is first called.
type Classifier struct {
	opts      *config.Options
	fragments sets.Set[string]
}

// New creates a Classifier for the given options.
func New(opts *config.Options) *Classifier {
	return &Classifier{opts: opts, fragments: sets.New[string]()}
}

// RegisterFragment marks a source-relative path as a known layout/include
// file so auto-ignore suppresses its direct emission. The orchestrator calls
// this during the pre-scan pass, before any Classify call.
func (c *Classifier) RegisterFragment(relPath string) {
	c.fragments.Add(path.Clean(toSlash(relPath)))
}

// IsRegistered reports whether relPath was registered as a fragment.
func (c *Classifier) IsRegistered(relPath string) bool {
	return c.fragments.Has(path.Clean(toSlash(relPath)))
}

func toSlash(p string) string { return strings.ReplaceAll(p, "\\", "/") }

// Renderable reports whether relPath has a renderable extension.
func Renderable(relPath string) bool {
	switch strings.ToLower(path.Ext(relPath)) {
	case ".html", ".htm", ".md":
		return true
	}
	return false
}

// Classify returns the Classification for a source-relative path.
// Deterministic and pure: identical configuration and registrations yield an
// identical result. Classification never fails.
func (c *Classifier) Classify(relPath string) Classification {
	relPath = path.Clean(toSlash(relPath))
	renderable := Renderable(relPath)

	renderMatch := matchList(c.opts.Render, relPath)
	ignoreRenderMatch := matchList(c.opts.IgnoreRender, relPath)

	// Tier 1: explicit render override on a renderable file. A competing
	// ignore_render match is broken by pattern specificity; ties fall back
	// to tier order (the override wins).
	if renderable && renderMatch.matched {
		if ignoreRenderMatch.matched && len(ignoreRenderMatch.pattern) > len(renderMatch.pattern) {
			return Classification{
				Action: ActionIgnored,
				Reason: "ignore_render pattern " + ignoreRenderMatch.pattern + " is more specific than render pattern " + renderMatch.pattern,
				Tier:   TierIgnore,
			}
		}
		return Classification{
			Action: ActionEmit,
			Reason: "matched render pattern " + renderMatch.pattern,
			Tier:   TierOverride,
		}
	}

	// Tier 2: ignore rules.
	if m := matchList(c.opts.Ignore, relPath); m.matched {
		return Classification{Action: ActionIgnored, Reason: "matched ignore pattern " + m.pattern, Tier: TierIgnore}
	}
	if renderable && ignoreRenderMatch.matched {
		return Classification{Action: ActionIgnored, Reason: "matched ignore_render pattern " + ignoreRenderMatch.pattern, Tier: TierIgnore}
	}
	if !renderable {
		if m := matchList(c.opts.IgnoreCopy, relPath); m.matched {
			return Classification{Action: ActionIgnored, Reason: "matched ignore_copy pattern " + m.pattern, Tier: TierIgnore}
		}
	}
	if c.opts.AutoIgnoreEnabled() {
		if c.fragments.Has(relPath) {
			return Classification{Action: ActionIgnored, Reason: "registered layout/include file", Tier: TierIgnore}
		}
		if underscorePrefixed(relPath) {
			return Classification{Action: ActionIgnored, Reason: "underscore-prefixed path", Tier: TierIgnore}
		}
	}

	// Tier 3: defaults.
	if renderable {
		return Classification{Action: ActionEmit, Reason: "renderable extension", Tier: TierDefault}
	}
	if m := matchList(c.opts.Copy, relPath); m.matched {
		return Classification{Action: ActionCopy, Reason: "matched copy pattern " + m.pattern, Tier: TierDefault}
	}
	if inDir(relPath, c.opts.AssetsDir) {
		return Classification{Action: ActionCopy, Reason: "file under assets directory", Tier: TierDefault}
	}
	return Classification{Action: ActionSkip, Reason: "no matching rule", Tier: TierDefault}
}

// ExplicitCopy reports whether relPath matched a user-provided copy pattern
// (as opposed to the implicit assets-directory rule). Explicitly matched
// files copy unconditionally; the reference tracker does not gate them.
func (c *Classifier) ExplicitCopy(relPath string) bool {
	return matchList(c.opts.Copy, path.Clean(toSlash(relPath))).matched
}

// InAssetsDir reports whether relPath sits under the always-copy assets
// directory.
func (c *Classifier) InAssetsDir(relPath string) bool {
	return inDir(path.Clean(toSlash(relPath)), c.opts.AssetsDir)
}

func underscorePrefixed(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if strings.HasPrefix(seg, "_") {
			return true
		}
	}
	return false
}

func inDir(relPath, dir string) bool {
	if dir == "" {
		return false
	}
	return relPath == dir || strings.HasPrefix(relPath, dir+"/")
}
