// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package viewport

import (
	"image"
	"slices"

	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/stage"
)

// CaptureMode selects what a viewport renders and which pixel format its
// resources use.
type CaptureMode int

const (
	CaptureDefault       CaptureMode = iota // scene color
	CaptureChromakey                        // chromakey show-list
	CaptureLightcard                        // light-card layer
	CaptureLightcardOCIO                    // color-corrected light-card layer
)

var captureModeNames = [...]string{
	CaptureDefault:       "default",
	CaptureChromakey:     "chromakey",
	CaptureLightcard:     "lightcard",
	CaptureLightcardOCIO: "lightcard_ocio",
}

// String returns the mode name.
func (m CaptureMode) String() string {
	if m >= 0 && int(m) < len(captureModeNames) {
		return captureModeNames[m]
	}
	return "unknown"
}

// RenderSettings are the per-frame render parameters of a viewport.
// They are reset to configuration defaults at the start of every frame.
type RenderSettings struct {
	Enable  bool
	Visible bool
	Skip    bool

	// CameraID is the stage camera the viewport is assigned to, if any.
	CameraID string

	// Rect is the viewport rectangle in the node's frame output.
	Rect image.Rectangle

	GPUIndex int

	// StereoGPUIndex is the GPU of the second eye; negative means GPUIndex.
	StereoGPUIndex int

	// BufferRatio scales the render target for overscan.
	BufferRatio float32

	// RenderTargetRatio scales the render target resolution.
	RenderTargetRatio float32

	// OverlapOrder orders effects and warp/blend among overlapping viewports.
	OverlapOrder int

	CaptureMode CaptureMode

	// OverrideViewportID makes the viewport read another viewport's image
	// instead of rendering its own.
	OverrideViewportID string

	// ParentViewportID makes the viewport inherit rect and GPU from a parent.
	ParentViewportID string

	// ForceMono renders one context regardless of the stereo mode.
	ForceMono bool
}

// DefaultRenderSettings returns enabled, visible settings with unit ratios.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		Enable:            true,
		Visible:           true,
		StereoGPUIndex:    -1,
		BufferRatio:       1,
		RenderTargetRatio: 1,
	}
}

// ICVFXFlags are the configured ICVFX capabilities of a viewport.
type ICVFXFlags uint32

const (
	// ICVFXEnable lets the viewport act as an ICVFX target.
	ICVFXEnable ICVFXFlags = 1 << iota

	// ICVFXDisableCamera keeps cameras out of this target.
	ICVFXDisableCamera

	// ICVFXDisableChromakey keeps chromakey out of this target.
	ICVFXDisableChromakey

	// ICVFXDisableLightcard keeps light-cards out of this target.
	ICVFXDisableLightcard
)

// ICVFXDisableMask covers every disable flag.
const ICVFXDisableMask = ICVFXDisableCamera | ICVFXDisableChromakey | ICVFXDisableLightcard

// RuntimeFlags mark the ICVFX role of a viewport in the current frame.
type RuntimeFlags uint32

const (
	// RuntimeInternal marks viewports created by the ICVFX builder.
	RuntimeInternal RuntimeFlags = 1 << iota

	// RuntimeUnused marks internal viewports not yet requested this frame.
	RuntimeUnused

	// RuntimeTarget marks viewports compositing ICVFX this frame.
	RuntimeTarget

	// RuntimeInCamera marks camera capture viewports.
	RuntimeInCamera

	// RuntimeChromakey marks chromakey capture viewports.
	RuntimeChromakey

	// RuntimeLightcard marks light-card capture viewports.
	RuntimeLightcard
)

// Has reports whether every flag of m is set in f.
func (f RuntimeFlags) Has(m RuntimeFlags) bool { return f&m == m }

// CameraRecord is the compact compositing record a target keeps per
// visible camera.
type CameraRecord struct {
	CameraID string

	// ViewportID is the camera capture viewport.
	ViewportID string

	// ChromakeyViewportID is the chromakey capture viewport, empty for
	// frame-color chromakey.
	ChromakeyViewportID string

	SoftEdge    stage.SoftEdge
	RenderOrder int
	Transform   geom.Transform
}

// ICVFXSettings are the ICVFX state of a viewport.
type ICVFXSettings struct {
	Flags   ICVFXFlags
	Runtime RuntimeFlags

	// Cameras are the cameras composited into a target, sorted by render
	// order.
	Cameras []CameraRecord

	// LightcardViewportID and LightcardOCIOViewportID name the light-card
	// capture viewports of a target.
	LightcardViewportID     string
	LightcardOCIOViewportID string
}

// Clone returns a copy sharing no slices with s.
func (s ICVFXSettings) Clone() ICVFXSettings {
	s.Cameras = slices.Clone(s.Cameras)
	return s
}

// BlurMode selects the deferred blur kernel.
type BlurMode int

const (
	BlurNone BlurMode = iota
	BlurGaussian
	BlurDilate
)

// Replace substitutes an external texture for the rendered image.
type Replace struct {
	Enable  bool
	Texture resource.Texture

	// Rect is the source region; empty means the whole texture.
	Rect image.Rectangle
}

// Blur configures the deferred blur effect.
type Blur struct {
	Mode         BlurMode
	KernelRadius int
	KernelScale  float32
}

// GenerateMips configures mip chain generation for the viewport input.
type GenerateMips struct {
	Enable bool

	// MaxLevels caps the chain length; zero means a full chain.
	MaxLevels int
}

// PostRenderSettings are the deferred effects of a viewport.
type PostRenderSettings struct {
	Replace      Replace
	Blur         Blur
	GenerateMips GenerateMips
}

// Context is one eye of a viewport for the current frame.
type Context struct {
	Index int

	// StereoViewIndex identifies the view across the frame plan; 0 means
	// unassigned.
	StereoViewIndex int

	GPUIndex int

	// FrameRect is the area of the frame output the context resolves into.
	FrameRect image.Rectangle

	// RenderTargetRect is the area of the render target the scene renders
	// into. Its origin is the target's origin.
	RenderTargetRect image.Rectangle

	NumMips int

	// DisableRender keeps the view in the plan without rendering it.
	DisableRender bool

	View       projection.View
	Projection geom.Mat4
}

// State is the per-frame lifecycle position of a viewport.
type State int

const (
	StateIdle State = iota
	StateSettingsReset
	StateContextsComputed
	StateEligible
	StateIneligible
	StateResourcesRequested
	StateProxySnapshotted
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateSettingsReset:      "settings_reset",
	StateContextsComputed:   "contexts_computed",
	StateEligible:           "eligible",
	StateIneligible:         "ineligible",
	StateResourcesRequested: "resources_requested",
	StateProxySnapshotted:   "proxy_snapshotted",
}

// String returns the state name.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Resources are the pooled resources a viewport borrows for one frame.
// Entries are indexed by context; nil entries mean the pass is skipped.
type Resources struct {
	RenderTargets []*resource.Resource
	Inputs        []*resource.Resource
	Additional    []*resource.Resource
	Mips          []*resource.Resource
}

// Config is the declarative description a viewport resets to every frame.
type Config struct {
	Render     RenderSettings
	ICVFX      ICVFXFlags
	PostRender PostRenderSettings

	ProjectionType   string
	ProjectionParams map[string]string
}
