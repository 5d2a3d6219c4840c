// Package resource holds the local catalog of owned files and, on super
// peers, the aggregated catalog of files held by assigned ordinary peers.
package resource

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// OwnedResource is a file this node can serve. Name is the catalog key.
type OwnedResource struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// Index is the owned-resource catalog.
type Index struct {
	mu    sync.RWMutex
	owned map[string]OwnedResource
}

// NewIndex returns an empty catalog.
func NewIndex() *Index {
	return &Index{owned: make(map[string]OwnedResource)}
}

// Add indexes r, replacing any entry with the same name.
func (x *Index) Add(r OwnedResource) {
	x.mu.Lock()
	x.owned[r.Name] = r
	x.mu.Unlock()
}

// Remove drops the entry for name.
func (x *Index) Remove(name string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.owned[name]; !ok {
		return false
	}
	delete(x.owned, name)
	return true
}

// Get returns the entry for name.
func (x *Index) Get(name string) (OwnedResource, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	r, ok := x.owned[name]
	return r, ok
}

// All returns a name-ordered copy of the catalog.
func (x *Index) All() []OwnedResource {
	x.mu.RLock()
	out := make([]OwnedResource, 0, len(x.owned))
	for _, r := range x.owned {
		out = append(out, r)
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the catalogued names in order.
func (x *Index) Names() []string {
	all := x.All()
	names := make([]string, len(all))
	for i, r := range all {
		names[i] = r.Name
	}
	return names
}

// Len returns the number of owned resources.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.owned)
}

// Find returns the resources whose names contain query as a whole word
// sequence.
func (x *Index) Find(query string) []OwnedResource {
	m := NewMatcher(query)
	if m == nil {
		return nil
	}

	var out []OwnedResource
	for _, r := range x.All() {
		if m.Match(r.Name) {
			out = append(out, r)
		}
	}
	return out
}

// Clear empties the catalog.
func (x *Index) Clear() {
	x.mu.Lock()
	x.owned = make(map[string]OwnedResource)
	x.mu.Unlock()
}

// ─── Matching ───────────────────────────────────────────────────────────────

// Matcher tests resource names against a query. Matching is
// case-insensitive and anchored on whitespace boundaries, so "Iron Man"
// matches "Iron Man 2" but "Iron" does not match "Ironclad".
type Matcher struct {
	re *regexp.Regexp
}

// NewMatcher compiles query. It returns nil for a blank query.
func NewMatcher(query string) *Matcher {
	words := strings.Fields(query)
	if len(words) == 0 {
		return nil
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	pattern := `(?i)(^|\s)` + strings.Join(words, `\s+`) + `(\s|$)`
	return &Matcher{re: regexp.MustCompile(pattern)}
}

// Match reports whether name satisfies the query.
func (m *Matcher) Match(name string) bool {
	return m.re.MatchString(name)
}
