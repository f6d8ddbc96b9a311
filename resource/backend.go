// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import "image"

// Texture is an opaque backend texture. The pipeline never looks inside it.
type Texture interface {
	// Desc returns the normalized descriptor the texture was created with.
	Desc() Desc
}

// Backend is the GPU capability the pipeline issues work through.
//
// Texture creation and release are called from the control context (pool
// reallocation) and the GPU-submission context (deferred release), so
// implementations must be safe for concurrent use. The remaining operations
// are only called from the GPU-submission context.
type Backend interface {
	// CreateTexture2D creates a texture described by desc.
	CreateTexture2D(desc Desc) (Texture, error)

	// ReleaseTexture frees tex. Releasing nil or an already released
	// texture is a no-op.
	ReleaseTexture(tex Texture)

	// CopyOrResample copies srcRect of src into dstRect of dst, resampling
	// when the rectangles differ in size.
	CopyOrResample(src Texture, srcRect image.Rectangle, dst Texture, dstRect image.Rectangle) error

	// GenerateMips fills mip levels 1..n-1 of tex from level 0.
	GenerateMips(tex Texture) error

	// TransferAcrossDevice makes rect of tex, rendered on device from,
	// available on device to.
	TransferAcrossDevice(tex Texture, rect image.Rectangle, from, to int) error
}

// PassMarker is implemented by backends that annotate their command stream
// with pass boundaries. The GPU-submission context calls MarkPass before each
// stage of a frame when the backend supports it.
type PassMarker interface {
	MarkPass(name string)
}
