// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cluster renders one logical scene to many display outputs.
//
// # Overview
//
// Each cluster node owns a set of viewports: rectangular render surfaces
// that are sized, parented and backed by pooled GPU resources every frame.
// On top of the configured viewports an in-camera VFX (ICVFX) stack adds
// auxiliary capture viewports for tracked cameras, chromakey fills and
// light-cards. The packages in this module build that viewport graph per
// frame, assemble it into render-target batches, allocate resources for it,
// and hand an immutable snapshot of the result to a GPU-submission context
// that runs a fixed compositing pass order.
//
// # Architecture
//
// Control context (one goroutine):
//
//	manager.Manager
//	  ├── viewport.Set     arena of viewports, stable handles
//	  ├── icvfx.Builder    mark-and-sweep of auxiliary viewports
//	  ├── frame.Build      render-target batches, stereo view indices
//	  └── rendertarget     drives resource.Pool reallocation cycles
//
// GPU-submission context (one goroutine):
//
//	proxy.Queue → proxy.ManagerProxy
//	  transfer → deferred effects → pre post-process →
//	  warp/blend → resolve/remap → post post-process
//
// The two contexts share no mutable state. All communication is one
// [proxy.FrameWork] per frame carrying snapshots and delete instructions.
//
// # Backends
//
// GPU work is issued through [resource.Backend]. backend/native implements it
// on gogpu/wgpu/hal; backend/recording records commands for tests and dry runs.
// Both register with the backend package and are opened by name.
//
// # Configuration
//
// The config package loads a declarative cluster description (YAML, JSON or
// TOML) and converts it to the stage, viewport settings and frame options
// the manager consumes. cmd/clusterdemo drives frames from such a file.
//
// # Logging
//
// All packages log through [Logger]. Logging is disabled until [SetLogger] is
// called.
package cluster

// Version information
const (
	// Version is the current version of the module
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
