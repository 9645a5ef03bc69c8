// Package deps records page→fragment dependency edges and answers the
// reverse question: which pages must rebuild when a fragment changes.
package deps

import (
	"sync"

	"git.home.luguber.info/inful/sitebuild/internal/util/sets"
)

// Tracker owns the dependency graph for one build session. Edges run from an
// importer (page or fragment) to the fragment it pulled in; queries follow
// the reverse direction. Writes serialize on an internal mutex so concurrent
// page resolutions can record edges freely.
type Tracker struct {
	mu      sync.RWMutex
	forward map[string]sets.Set[string] // importer -> targets
	reverse map[string]sets.Set[string] // target -> importers
	pages   sets.Set[string]            // known root pages
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		forward: map[string]sets.Set[string]{},
		reverse: map[string]sets.Set[string]{},
		pages:   sets.New[string](),
	}
}

// RegisterPage marks a source path as a root page. Only registered pages are
// returned from AffectedPages.
func (t *Tracker) RegisterPage(page string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages.Add(page)
}

// ClearImporter drops all outgoing edges of an importer prior to
// re-resolution, so stale edges from a previous pass cannot linger.
func (t *Tracker) ClearImporter(importer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for target := range t.forward[importer] {
		if rev, ok := t.reverse[target]; ok {
			rev.Delete(importer)
		}
	}
	delete(t.forward, importer)
}

// RecordEdge records importer → target.
func (t *Tracker) RecordEdge(importer, target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.forward[importer] == nil {
		t.forward[importer] = sets.New[string]()
	}
	t.forward[importer].Add(target)
	if t.reverse[target] == nil {
		t.reverse[target] = sets.New[string]()
	}
	t.reverse[target].Add(importer)
}

// Dependencies returns the direct targets of an importer, sorted.
func (t *Tracker) Dependencies(importer string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sets.SortedValues(t.forward[importer])
}

// TransitiveDependencies returns every fragment reachable from the importer,
// sorted. Used to populate cache entries.
func (t *Tracker) TransitiveDependencies(importer string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := sets.New[string]()
	queue := sets.SortedValues(t.forward[importer])
	for len(queue) > 0 {
		target := queue[0]
		queue = queue[1:]
		if seen.Has(target) {
			continue
		}
		seen.Add(target)
		queue = append(queue, sets.SortedValues(t.forward[target])...)
	}
	return sets.SortedValues(seen)
}

// AffectedPages computes all registered pages transitively depending on the
// given path, following reverse edges. The result is sorted for
// deterministic rebuild order.
func (t *Tracker) AffectedPages(path string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	affected := sets.New[string]()
	visited := sets.New[string]()
	queue := []string{path}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited.Has(current) {
			continue
		}
		visited.Add(current)
		if t.pages.Has(current) && current != path {
			affected.Add(current)
		}
		queue = append(queue, sets.SortedValues(t.reverse[current])...)
	}
	return sets.SortedValues(affected)
}

// IsPage reports whether path was registered as a root page.
func (t *Tracker) IsPage(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pages.Has(path)
}

// Pages returns all registered pages, sorted.
func (t *Tracker) Pages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sets.SortedValues(t.pages)
}
