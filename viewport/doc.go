// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package viewport holds the control-side description of rectangular render
// surfaces.
//
// A [Viewport] is reset to its configured defaults at the start of every
// frame, has its per-eye [Context] values computed from the frame's
// [cluster.FrameRenderOptions], and records the pooled resources the render
// target manager borrowed for it. Viewports live in a [Set], an arena that
// hands out generation-checked [Handle] values so that deleting a viewport
// never leaves a dangling reference behind.
//
// Per-frame lifecycle:
//
//	Idle → SettingsReset → ContextsComputed → Eligible | Ineligible
//	     → ResourcesRequested → ProxySnapshotted
//
// An ineligible viewport skips the last two steps for that frame only.
package viewport
