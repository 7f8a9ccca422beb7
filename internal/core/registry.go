package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registry   = make(map[string]Endpoint)
	registryMu sync.RWMutex
)

func registryKey(section, name string) string {
	return strings.ToLower(section) + "/" + strings.ToLower(name)
}

// Register adds an endpoint to the registry.
// Panics if the endpoint is invalid or already registered.
func Register(ep Endpoint) {
	if err := ep.Validate(); err != nil {
		panic(err.Error())
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	key := registryKey(ep.Section, ep.Name)
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("endpoint already registered: %s", ep.Key()))
	}
	registry[key] = ep
}

// Get returns an endpoint by section and name, case-insensitively.
func Get(section, name string) (Endpoint, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ep, ok := registry[registryKey(section, name)]
	return ep, ok
}

// All returns all registered endpoints.
// Sorted by section then by name for consistent ordering.
func All() []Endpoint {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Endpoint, 0, len(registry))
	for _, ep := range registry {
		result = append(result, ep)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Section != result[j].Section {
			return result[i].Section < result[j].Section
		}
		return result[i].Name < result[j].Name
	})

	return result
}

// BySection returns the endpoints of one section sorted by name.
func BySection(section string) []Endpoint {
	var result []Endpoint
	for _, ep := range All() {
		if strings.EqualFold(ep.Section, section) {
			result = append(result, ep)
		}
	}
	return result
}

// ByScope returns the endpoints polled with the given scope.
func ByScope(scope Scope) []Endpoint {
	var result []Endpoint
	for _, ep := range All() {
		if ep.Scope == scope {
			result = append(result, ep)
		}
	}
	return result
}

// EndpointCount returns the number of registered endpoints.
func EndpointCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered endpoints.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Endpoint)
}
