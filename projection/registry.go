// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package projection

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrUnknownPolicy is returned by New for an unregistered type.
var ErrUnknownPolicy = errors.New("projection: unknown policy type")

// Factory creates a policy for viewport id from its parameters.
type Factory func(id string, params map[string]string) (Policy, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register registers a policy factory under typ.
// This is typically called from init() functions in policy packages.
// Registering an existing type replaces it.
func Register(typ string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[typ] = factory
}

// Unregister removes a policy type. This is useful for testing.
func Unregister(typ string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, typ)
}

// IsRegistered reports whether typ has a factory.
func IsRegistered(typ string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[typ]
	return ok
}

// Available returns the registered type names in sorted order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(factories))
}

// New creates a policy of type typ for viewport id.
// The parameters map is copied.
func New(typ, id string, params map[string]string) (Policy, error) {
	registryMu.RLock()
	factory, ok := factories[typ]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, typ)
	}
	p, err := factory(id, maps.Clone(params))
	if err != nil {
		return nil, fmt.Errorf("projection: create %s for %s: %w", typ, id, err)
	}
	return p, nil
}
