// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource pools the GPU textures a frame's viewport graph needs.
//
// A [Pool] keeps two independent kinds of resources: render-target-capable
// textures written by the scene renderer and general 2D textures used for
// input, resolve, mip chains and frame outputs. Each kind is reallocated in
// a two-phase cycle:
//
//	pool.BeginReallocate(resource.KindTexture)
//	res := pool.Allocate(resource.KindTexture, desc) // 0..N calls
//	pool.FinishReallocate(resource.KindTexture)
//
// Every cycle is a new generation. Allocate reuses an entry of the previous
// generation whose descriptor matches; everything not touched by the end of
// the cycle leaves the pool. Departing textures are not released
// immediately: the GPU-submission context may still reference them from an
// earlier frame, so they are collected with [Pool.TakeRetired] and released
// on that context after its passes.
//
// A nil *Resource means "skip": allocation failures, budget exhaustion and
// protocol misuse all produce nil and a warning, never a panic.
//
// GPU work itself goes through the [Backend] capability, implemented by
// backend/native and backend/recording.
package resource
