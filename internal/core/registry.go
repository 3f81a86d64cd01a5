package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]AdapterDefinition)
	registryMu sync.RWMutex
)

// AdapterInfo contains display information about an instrument adapter.
type AdapterInfo struct {
	Key   string // Unique identifier used by triggers: "vicell"
	Group string // Instrument family: "Cell Culture", "Analytical"
	Label string // Display name: "Vi-Cell BLU"
	Table string // Destination table: "vicell_counts"
}

// AdapterDefinition contains everything needed to ingest one instrument's exports.
type AdapterDefinition struct {
	Info            AdapterInfo
	Extensions      []string // Accepted file extensions, e.g. ".csv" (case-insensitive)
	ExcludePatterns []string // Substrings that disqualify a file name (case-insensitive)
	FieldSpecs      []FieldSpec
	KeyColumns      []string // Field names forming the natural key
	Adapter         FormatAdapter
}

// Register adds an adapter definition to the registry.
// Panics if an adapter with the same key is already registered.
func Register(def AdapterDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if def.Info.Key == "" {
		panic("adapter key is required")
	}
	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("adapter already registered: %s", def.Info.Key))
	}
	if def.Adapter == nil {
		panic(fmt.Sprintf("adapter %s has no FormatAdapter", def.Info.Key))
	}

	registry[def.Info.Key] = def
}

// Get returns an adapter definition by key.
func Get(key string) (AdapterDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered adapters sorted by group then key.
func All() []AdapterDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Group != result[j].Info.Group {
			return result[i].Info.Group < result[j].Info.Group
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// ByGroup returns the adapters of one instrument family, sorted by key.
func ByGroup(group string) []AdapterDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []AdapterDefinition
	for _, def := range registry {
		if def.Info.Group == group {
			result = append(result, def)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Groups returns all unique group names, sorted.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range registry {
		seen[def.Info.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}

	sort.Strings(groups)
	return groups
}

// AdapterCount returns the number of registered adapters.
func AdapterCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered adapters.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]AdapterDefinition)
}
