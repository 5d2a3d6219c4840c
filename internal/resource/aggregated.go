package resource

import (
	"sort"
	"sync"

	"github.com/tutu-network/sharer/internal/domain"
)

// AggregatedResource records which peers hold a named resource.
type AggregatedResource struct {
	Name   string           `json:"name"`
	Owners []domain.Address `json:"owners"`
}

// Aggregated is a super peer's view of the resources of its assigned
// ordinary peers. An entry exists only while it has at least one owner.
type Aggregated struct {
	mu      sync.RWMutex
	entries map[string]map[domain.Address]struct{}
}

// NewAggregated returns an empty aggregated index.
func NewAggregated() *Aggregated {
	return &Aggregated{entries: make(map[string]map[domain.Address]struct{})}
}

// AddNode records owner as holding name.
func (a *Aggregated) AddNode(name string, owner domain.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	owners, ok := a.entries[name]
	if !ok {
		owners = make(map[domain.Address]struct{})
		a.entries[name] = owners
	}
	owners[owner] = struct{}{}
}

// AddAll records owner as holding every name in names.
func (a *Aggregated) AddAll(names []string, owner domain.Address) {
	for _, n := range names {
		a.AddNode(n, owner)
	}
}

// RemoveNode drops owner from name. The entry goes away with its last owner.
func (a *Aggregated) RemoveNode(name string, owner domain.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	owners, ok := a.entries[name]
	if !ok {
		return false
	}
	if _, ok := owners[owner]; !ok {
		return false
	}
	delete(owners, owner)
	if len(owners) == 0 {
		delete(a.entries, name)
	}
	return true
}

// RemoveNodeFromAll drops owner from every entry and returns how many
// entries referenced it.
func (a *Aggregated) RemoveNodeFromAll(owner domain.Address) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for name, owners := range a.entries {
		if _, ok := owners[owner]; !ok {
			continue
		}
		n++
		delete(owners, owner)
		if len(owners) == 0 {
			delete(a.entries, name)
		}
	}
	return n
}

// Find returns the entries matching query.
func (a *Aggregated) Find(query string) []AggregatedResource {
	m := NewMatcher(query)
	if m == nil {
		return nil
	}
	var out []AggregatedResource
	for _, r := range a.All() {
		if m.Match(r.Name) {
			out = append(out, r)
		}
	}
	return out
}

// Owners returns the distinct owners of every entry matching query.
func (a *Aggregated) Owners(query string) []domain.Address {
	seen := make(map[domain.Address]struct{})
	var out []domain.Address
	for _, r := range a.Find(query) {
		for _, o := range r.Owners {
			if _, ok := seen[o]; ok {
				continue
			}
			seen[o] = struct{}{}
			out = append(out, o)
		}
	}
	domain.SortAddresses(out)
	return out
}

// All returns a name-ordered snapshot.
func (a *Aggregated) All() []AggregatedResource {
	a.mu.RLock()
	out := make([]AggregatedResource, 0, len(a.entries))
	for name, owners := range a.entries {
		r := AggregatedResource{Name: name, Owners: make([]domain.Address, 0, len(owners))}
		for o := range owners {
			r.Owners = append(r.Owners, o)
		}
		domain.SortAddresses(r.Owners)
		out = append(out, r)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of aggregated names.
func (a *Aggregated) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Clear drops every entry.
func (a *Aggregated) Clear() {
	a.mu.Lock()
	a.entries = make(map[string]map[domain.Address]struct{})
	a.mu.Unlock()
}
