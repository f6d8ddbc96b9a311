// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cluster

import (
	"image"
	"slices"
)

// StereoMode selects how many eyes are rendered and how their frame outputs
// are laid out in the backbuffer.
type StereoMode int

const (
	// StereoModeMono renders one context per viewport.
	StereoModeMono StereoMode = iota

	// StereoModeSideBySide renders two contexts; the right eye's frame
	// output sits to the right of the left eye's in the backbuffer.
	StereoModeSideBySide

	// StereoModeTopBottom renders two contexts; the right eye's frame
	// output sits below the left eye's in the backbuffer.
	StereoModeTopBottom
)

// String returns the mode name.
func (m StereoMode) String() string {
	switch m {
	case StereoModeMono:
		return "mono"
	case StereoModeSideBySide:
		return "side_by_side"
	case StereoModeTopBottom:
		return "top_bottom"
	default:
		return "unknown"
	}
}

// ParseStereoMode maps a configuration string to a StereoMode.
// Unknown strings map to StereoModeMono.
func ParseStereoMode(s string) StereoMode {
	switch s {
	case "side_by_side", "sbs":
		return StereoModeSideBySide
	case "top_bottom", "tb":
		return StereoModeTopBottom
	default:
		return StereoModeMono
	}
}

// EyeCount returns the number of eye contexts the mode renders.
func (m StereoMode) EyeCount() int {
	if m == StereoModeSideBySide || m == StereoModeTopBottom {
		return 2
	}
	return 1
}

// Texture size limits shared by every rectangle clamp.
const (
	// MinTextureSize is the smallest side a viewport rectangle may have.
	MinTextureSize = 16

	// DefaultMaxTextureSize is the platform texture ceiling used when the
	// configuration does not provide one.
	DefaultMaxTextureSize = 16384
)

// RemapRegion copies Src of a frame output into Dst of the remapped output.
type RemapRegion struct {
	Src image.Rectangle
	Dst image.Rectangle
}

// OutputRemap describes the optional remap/letterbox pass after resolve.
type OutputRemap struct {
	Enable  bool
	Regions []RemapRegion
}

// FrameRenderOptions collects every feature switch of the per-frame pipeline.
// It is constructed once per frame from configuration and passed down the
// call chain; nothing in the pipeline reads global toggles.
type FrameRenderOptions struct {
	// StereoMode selects mono or one of the stereo layouts.
	StereoMode StereoMode

	// OutputSize is the full size of the node's output (backbuffer per eye).
	OutputSize image.Point

	// UseFullSizeFrame sizes frame targets to OutputSize instead of the
	// union of visible viewport rectangles.
	UseFullSizeFrame bool

	// WarpBlend enables the warp/blend stage.
	WarpBlend bool

	// CrossGPUTransfer enables copying render targets rendered on a
	// secondary GPU back to the output GPU.
	CrossGPUTransfer bool

	// GPUCount is the number of GPUs available. Indices outside
	// [0, GPUCount) are mapped to 0.
	GPUCount int

	// ClusterRenderTargetRatio scales every viewport's render target.
	ClusterRenderTargetRatio float32

	// ICVFXOuterRatio additionally scales outer ICVFX viewports
	// (targets and light-card captures).
	ICVFXOuterRatio float32

	// ICVFXInnerRatio additionally scales inner ICVFX viewports
	// (camera and chromakey captures).
	ICVFXInnerRatio float32

	// MaxTextureSize is the platform texture ceiling.
	MaxTextureSize int

	// Remap is the optional output remapping pass.
	Remap OutputRemap
}

// DefaultFrameRenderOptions returns options with every multiplier at 1,
// warp/blend enabled and mono output.
func DefaultFrameRenderOptions() FrameRenderOptions {
	return FrameRenderOptions{
		StereoMode:               StereoModeMono,
		WarpBlend:                true,
		CrossGPUTransfer:         true,
		GPUCount:                 1,
		ClusterRenderTargetRatio: 1,
		ICVFXOuterRatio:          1,
		ICVFXInnerRatio:          1,
		MaxTextureSize:           DefaultMaxTextureSize,
	}
}

// TextureCeiling returns MaxTextureSize, or DefaultMaxTextureSize when unset.
func (o *FrameRenderOptions) TextureCeiling() int {
	if o.MaxTextureSize < MinTextureSize {
		return DefaultMaxTextureSize
	}
	return o.MaxTextureSize
}

// ResolveGPU maps a requested GPU index onto an available device.
// Negative indices and indices beyond GPUCount resolve to GPU 0.
func (o *FrameRenderOptions) ResolveGPU(index int) int {
	if index < 0 || index >= o.GPUCount {
		return 0
	}
	return index
}

// Clone returns a copy that shares no slices with o.
func (o FrameRenderOptions) Clone() FrameRenderOptions {
	o.Remap.Regions = slices.Clone(o.Remap.Regions)
	return o
}
