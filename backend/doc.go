// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend selects the GPU backend the viewport pipeline issues its
// work on.
//
// Backend implementations live in subpackages and register a factory from
// init, so importing a subpackage for its side effect makes it available:
//
//	import (
//		_ "github.com/gogpu/cluster/backend/native"
//		_ "github.com/gogpu/cluster/backend/recording"
//	)
//
// Open a backend by name, or take the best registered one with Default:
//
//	b, err := backend.Open("native", backend.Options{GPUCount: 2})
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//
// # Available Backends
//
//   - native: hal devices through gogpu/wgpu, headless on the noop HAL
//   - recording: records every command in memory, used by tests and dry runs
//
// When several are registered, Default prefers native over recording.
package backend
