package schema

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[ImportKind]*TemplateDescriptor)
	registryMu sync.RWMutex
)

// Register adds a template descriptor to the registry.
// Panics if a descriptor with the same kind is already registered, or if the
// header and column counts disagree.
func Register(td *TemplateDescriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[td.Kind]; exists {
		panic(fmt.Sprintf("template already registered: %s", td.Kind))
	}
	if len(td.Header) != len(td.Columns) {
		panic(fmt.Sprintf("template %s: %d header cells but %d columns", td.Kind, len(td.Header), len(td.Columns)))
	}

	registry[td.Kind] = td
}

// Get returns a template descriptor by kind.
// Returns false if not found.
func Get(kind ImportKind) (*TemplateDescriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	td, ok := registry[kind]
	return td, ok
}

// All returns all registered descriptors, sorted by kind for consistent
// ordering.
func All() []*TemplateDescriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]*TemplateDescriptor, 0, len(registry))
	for _, td := range registry {
		result = append(result, td)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Kind < result[j].Kind
	})

	return result
}

// Kinds returns all registered import kinds, sorted.
func Kinds() []ImportKind {
	all := All()
	kinds := make([]ImportKind, len(all))
	for i, td := range all {
		kinds[i] = td.Kind
	}
	return kinds
}
