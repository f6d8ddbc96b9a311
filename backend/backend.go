// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"

	"github.com/gogpu/cluster/resource"
)

// Registered backend names.
const (
	Native    = "native"
	Recording = "recording"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Options are passed to backend factories.
type Options struct {
	// GPUCount is the number of GPUs to open. Values below 1 mean 1.
	GPUCount int
}

// Opened is a backend together with the function that releases it.
type Opened struct {
	resource.Backend

	// Name is the registry name the backend was opened under.
	Name string

	release func()
}

// Close releases the backend and its devices. Pooled textures must be
// released first.
func (o *Opened) Close() {
	if o.release != nil {
		o.release()
		o.release = nil
	}
}
