// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/cluster/resource"
)

// Factory opens a backend. The returned release function may be nil.
type Factory func(opts Options) (b resource.Backend, release func(), err error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for Default (first registered wins).
	backendPriority = []string{Native, Recording}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens the backend registered as name.
func Open(name string, opts Options) (*Opened, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}

	opts.GPUCount = max(opts.GPUCount, 1)
	b, release, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("backend: open %s: %w", name, err)
	}
	return &Opened{Backend: b, Name: name, release: release}, nil
}

// Default opens the best registered backend by priority, falling back to
// the first registered name in sorted order.
func Default(opts Options) (*Opened, error) {
	names := Available()
	for _, name := range backendPriority {
		if slices.Contains(names, name) {
			return Open(name, opts)
		}
	}
	if len(names) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return Open(names[0], opts)
}
