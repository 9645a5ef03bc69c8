// Package cache skips unchanged pages between builds using content hashes.
//
// A page is up to date only if its own content hash is unchanged and every
// recorded dependency's fingerprint is unchanged. The backing store is read
// once at build start and written once at build end; a missing or corrupt
// store degrades to an empty cache and never fails the build.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Entry is the persisted record for one processed page.
type Entry struct {
	Path         string    `json:"path"`
	ContentHash  string    `json:"content_hash"`
	Dependencies []string  `json:"dependencies"`
	OutputPath   string    `json:"output_path"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fingerprint is the persisted identity of one source file, used to validate
// dependency lists without re-reading every fragment.
type Fingerprint struct {
	Path    string
	Hash    string
	ModTime time.Time
	Size    int64
}

// BuildCache holds the cache state for one build session.
type BuildCache struct {
	mu         sync.Mutex
	store      Store // nil when caching is disabled
	sourceRoot string
	logger     *slog.Logger

	entries      map[string]Entry       // previous build, by source path
	fingerprints map[string]Fingerprint // previous build, by source path
	currentFP    map[string]Fingerprint // this run's computed fingerprints
	nextEntries  map[string]Entry       // entries to persist at build end
}

// New creates a BuildCache. store may be nil to disable persistence.
func New(store Store, sourceRoot string, logger *slog.Logger) *BuildCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &BuildCache{
		store:        store,
		sourceRoot:   sourceRoot,
		logger:       logger,
		entries:      map[string]Entry{},
		fingerprints: map[string]Fingerprint{},
		currentFP:    map[string]Fingerprint{},
		nextEntries:  map[string]Entry{},
	}
}

// Load reads the persisted cache. Any failure is logged and treated as an
// empty cache, so every file simply counts as changed.
func (c *BuildCache) Load(ctx context.Context) {
	if c.store == nil {
		return
	}
	entries, fingerprints, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("build cache unreadable, rebuilding everything", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.entries[e.Path] = e
	}
	for _, fp := range fingerprints {
		c.fingerprints[fp.Path] = fp
	}
	c.logger.Debug("build cache loaded", "pages", len(entries), "fingerprints", len(fingerprints))
}

// Save persists this run's entries and fingerprints.
func (c *BuildCache) Save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	entries := make([]Entry, 0, len(c.nextEntries))
	for _, e := range c.nextEntries {
		entries = append(entries, e)
	}
	fingerprints := make([]Fingerprint, 0, len(c.currentFP))
	for _, fp := range c.currentFP {
		fingerprints = append(fingerprints, fp)
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	sort.Slice(fingerprints, func(i, j int) bool { return fingerprints[i].Path < fingerprints[j].Path })
	return c.store.Save(ctx, entries, fingerprints)
}

// IsUpToDate reports whether the page's cached output is still valid:
// the entry exists, points at the same output path, the output file exists,
// and neither the page nor any recorded dependency changed.
func (c *BuildCache) IsUpToDate(sourceRel, outputPath string) bool {
	c.mu.Lock()
	entry, ok := c.entries[sourceRel]
	c.mu.Unlock()
	if !ok || entry.OutputPath != outputPath {
		return false
	}
	if _, err := os.Stat(outputPath); err != nil {
		return false
	}

	fp, err := c.fingerprint(sourceRel)
	if err != nil || fp.Hash != entry.ContentHash {
		return false
	}
	for _, dep := range entry.Dependencies {
		if c.changed(dep) {
			return false
		}
	}
	return true
}

// changed reports whether a dependency differs from its persisted
// fingerprint. Unknown dependencies count as changed.
func (c *BuildCache) changed(rel string) bool {
	c.mu.Lock()
	prev, ok := c.fingerprints[rel]
	c.mu.Unlock()
	if !ok {
		return true
	}
	fp, err := c.fingerprint(rel)
	if err != nil {
		return true
	}
	return fp.Hash != prev.Hash
}

// UpdateHash records the current content hash of a source file for
// persistence at build end.
func (c *BuildCache) UpdateHash(sourceRel string) error {
	_, err := c.fingerprint(sourceRel)
	return err
}

// SetDependencies records a processed page's entry for persistence.
func (c *BuildCache) SetDependencies(sourceRel string, depPaths []string, outputPath string) error {
	fp, err := c.fingerprint(sourceRel)
	if err != nil {
		return err
	}
	for _, dep := range depPaths {
		// Dependency fingerprints must be captured too, or the next run
		// would treat them all as changed.
		if _, err := c.fingerprint(dep); err != nil {
			c.logger.Debug("fingerprint dependency failed", "path", dep, "error", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextEntries[sourceRel] = Entry{
		Path:         sourceRel,
		ContentHash:  fp.Hash,
		Dependencies: depPaths,
		OutputPath:   outputPath,
		UpdatedAt:    time.Now(),
	}
	return nil
}

// Retain carries a previous entry forward unchanged (a cache hit still needs
// its entry persisted for the following build).
func (c *BuildCache) Retain(sourceRel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[sourceRel]; ok {
		c.nextEntries[sourceRel] = entry
		if fp, ok := c.fingerprints[entry.Path]; ok {
			if _, present := c.currentFP[entry.Path]; !present {
				c.currentFP[entry.Path] = fp
			}
		}
		for _, dep := range entry.Dependencies {
			if fp, ok := c.fingerprints[dep]; ok {
				if _, present := c.currentFP[dep]; !present {
					c.currentFP[dep] = fp
				}
			}
		}
	}
}

// Remove drops a deleted file from the cache tables. Deletion is not treated
// as a change to any dependent page.
func (c *BuildCache) Remove(sourceRel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sourceRel)
	delete(c.nextEntries, sourceRel)
	delete(c.fingerprints, sourceRel)
	delete(c.currentFP, sourceRel)
}

// Known reports whether the cache has seen this path before (as a page entry
// or a fingerprinted dependency). A path nobody has seen is a new file.
func (c *BuildCache) Known(sourceRel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[sourceRel]; ok {
		return true
	}
	if _, ok := c.fingerprints[sourceRel]; ok {
		return true
	}
	_, ok := c.currentFP[sourceRel]
	return ok
}

// Dependencies returns the cached dependency list for a page, if any.
func (c *BuildCache) Dependencies(sourceRel string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[sourceRel]
	if !ok {
		return nil, false
	}
	return entry.Dependencies, true
}

// fingerprint computes (memoized per run) the fingerprint of a source file.
// A matching mtime+size against the previous run reuses the stored hash to
// avoid re-reading unchanged files.
func (c *BuildCache) fingerprint(sourceRel string) (Fingerprint, error) {
	c.mu.Lock()
	if fp, ok := c.currentFP[sourceRel]; ok {
		c.mu.Unlock()
		return fp, nil
	}
	prev, hasPrev := c.fingerprints[sourceRel]
	c.mu.Unlock()

	abs := filepath.Join(c.sourceRoot, filepath.FromSlash(sourceRel))
	info, err := os.Stat(abs)
	if err != nil {
		return Fingerprint{}, err
	}

	fp := Fingerprint{Path: sourceRel, ModTime: info.ModTime(), Size: info.Size()}
	if hasPrev && prev.ModTime.Equal(info.ModTime()) && prev.Size == info.Size() {
		fp.Hash = prev.Hash
	} else {
		hash, err := hashFile(abs)
		if err != nil {
			return Fingerprint{}, err
		}
		fp.Hash = hash
	}

	c.mu.Lock()
	c.currentFP[sourceRel] = fp
	c.mu.Unlock()
	return fp, nil
}

func hashFile(absPath string) (string, error) {
	f, err := os.Open(filepath.Clean(absPath))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Close releases the backing store.
func (c *BuildCache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
