// Package datamodel hosts the datamodel backend registry. Backends register
// themselves by datamodel name in an init function; sessions resolve a
// loader from the document's datamodel attribute.
package datamodel

import (
	"fmt"
	"sort"
	"sync"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
)

var (
	mu       sync.RWMutex
	registry = make(map[string]rsm.DataModelLoader)
)

// Register installs a loader under a datamodel name. Later registrations
// replace earlier ones.
func Register(name string, loader rsm.DataModelLoader) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = loader
}

// Lookup resolves the loader for a datamodel name. The empty name resolves
// to "null" per W3C SCXML 5.2.
func Lookup(name string) (rsm.DataModelLoader, error) {
	if name == "" {
		name = "null"
	}
	mu.RLock()
	defer mu.RUnlock()
	loader, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("datamodel: unsupported datamodel %q (registered: %v)", name, names())
	}
	return loader, nil
}

// names is called with the lock held.
func names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
