// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package proxy is the GPU-submission side of the viewport pipeline.
//
// The control context sends one [FrameWork] per frame through a [Queue].
// A FrameWork carries immutable [Snapshot] values of the viewports in the
// frame plan, deferred delete instructions and post-process registrations,
// in program order. The [ManagerProxy] drains the queue on its own
// goroutine, applies every command to its [ViewportProxy] set and then runs
// the compositing passes in a fixed order:
//
//  1. cross-device transfer of render targets and input fill
//  2. deferred effects (blur, mip generation) in overlap order
//  3. post-process before warp/blend
//  4. warp/blend Begin, Apply per context, End, in overlap order
//  5. resolve into the frame outputs, then the optional remap
//  6. post-process after warp/blend
//
// Resolve reads the additional buffer of a context that warp/blend wrote
// and the input buffer otherwise.
//
// The two contexts share no mutable state: snapshots own their slices,
// textures are immutable backend objects, and results come back on a
// separate channel.
package proxy
