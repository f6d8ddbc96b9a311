// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package stage describes the root scene object of a cluster: the LED
// screens, the tracked ICVFX cameras, light-card settings and the viewer.
//
// A Stage is supplied by the host once per configuration update and treated
// as read-only by the pipeline.
package stage

import (
	"errors"
	"fmt"
	"image"
	"slices"

	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/resource"
)

// Validation errors for cameras.
var (
	// ErrCameraDisabled is returned for a camera with Enable unset.
	ErrCameraDisabled = errors.New("stage: camera disabled")

	// ErrMissingOverrideTexture is returned for a camera in override mode
	// without a source texture.
	ErrMissingOverrideTexture = errors.New("stage: override mode without texture")

	// ErrInvalidLens is returned for a camera with an unusable lens.
	ErrInvalidLens = errors.New("stage: invalid camera lens")
)

// Default clip planes in stage units.
const (
	DefaultNearClip = 10
	DefaultFarClip  = 100000
)

// Screen is a planar display surface. Its forward axis points away from
// the viewer into the screen; Width runs along its right axis and Height
// along its up axis.
type Screen struct {
	ID        string
	Transform geom.Transform
	Width     float32
	Height    float32
}

// Corners returns the four screen corners in world space: bottom-left,
// bottom-right, top-right, top-left.
func (s *Screen) Corners() [4]geom.Vec3 {
	hw, hh := s.Width/2, s.Height/2
	return [4]geom.Vec3{
		s.Transform.TransformPoint(geom.V3(0, -hw, -hh)),
		s.Transform.TransformPoint(geom.V3(0, hw, -hh)),
		s.Transform.TransformPoint(geom.V3(0, hw, hh)),
		s.Transform.TransformPoint(geom.V3(0, -hw, hh)),
	}
}

// ChromakeySource selects how a camera's chromakey is produced.
type ChromakeySource int

const (
	// ChromakeyFrameColor fills the camera frustum with a solid color.
	// No capture viewport is needed.
	ChromakeyFrameColor ChromakeySource = iota

	// ChromakeyRenderTexture renders the show-list into a dedicated
	// chromakey capture viewport.
	ChromakeyRenderTexture
)

// String returns the source name.
func (s ChromakeySource) String() string {
	if s == ChromakeyRenderTexture {
		return "render_texture"
	}
	return "frame_color"
}

// Chromakey configures the chromakey fill of a camera.
type Chromakey struct {
	Enable   bool
	Source   ChromakeySource
	Color    [4]float32
	ShowOnly []string
}

// RequiresCapture reports whether the chromakey renders into its own viewport.
func (c *Chromakey) RequiresCapture() bool {
	return c.Enable && c.Source == ChromakeyRenderTexture && len(c.ShowOnly) > 0
}

// TextureOverride replaces a rendered image with an external texture.
type TextureOverride struct {
	Enable  bool
	Texture resource.Texture
	Rect    image.Rectangle
}

// SoftEdge is the blend width of a camera frustum border, in [0, 1] of the
// frustum size per side.
type SoftEdge struct {
	Left, Right, Top, Bottom float32
}

// Camera is a tracked physical camera whose frustum is composited into
// ICVFX targets.
type Camera struct {
	ID        string
	Enable    bool
	Transform geom.Transform

	// FieldOfView is the horizontal field of view in degrees.
	FieldOfView float32

	// AspectRatio is width / height of the sensor.
	AspectRatio float32

	// Resolution is the capture size before ratios are applied.
	Resolution image.Point

	RenderOrder       int
	SoftEdge          SoftEdge
	BufferRatio       float32
	RenderTargetRatio float32
	GPUIndex          int
	StereoGPUIndex    int

	Override  TextureOverride
	Chromakey Chromakey
}

// Validate checks the preconditions for rendering the camera this frame.
func (c *Camera) Validate() error {
	if !c.Enable {
		return fmt.Errorf("%w: %s", ErrCameraDisabled, c.ID)
	}
	if c.Override.Enable && c.Override.Texture == nil {
		return fmt.Errorf("%w: %s", ErrMissingOverrideTexture, c.ID)
	}
	if c.FieldOfView <= 0 || c.FieldOfView >= 180 || c.AspectRatio <= 0 {
		return fmt.Errorf("%w: %s fov %v aspect %v", ErrInvalidLens, c.ID, c.FieldOfView, c.AspectRatio)
	}
	return nil
}

// LightCards configures the light-card overlay layer.
type LightCards struct {
	Enable   bool
	ShowOnly []string
	Override TextureOverride

	// OCIO adds a second, color-corrected light-card capture.
	OCIO bool
}

// Required reports whether a light-card capture viewport is needed.
func (l *LightCards) Required() bool {
	return l.Enable && (len(l.ShowOnly) > 0 || (l.Override.Enable && l.Override.Texture != nil))
}

// ICVFX holds stage-wide ICVFX switches.
type ICVFX struct {
	Enable            bool
	DisableCameras    bool
	DisableChromakey  bool
	DisableLightcards bool
}

// Stage is the root scene object.
type Stage struct {
	ID         string
	Screens    []Screen
	Cameras    []Camera
	ViewOrigin geom.Transform

	// InterocularDistance separates the stereo eyes in stage units.
	InterocularDistance float32

	NearClip, FarClip float32

	ICVFX      ICVFX
	LightCards LightCards
}

// Screen returns the screen with the given id.
func (s *Stage) Screen(id string) (*Screen, bool) {
	for i := range s.Screens {
		if s.Screens[i].ID == id {
			return &s.Screens[i], true
		}
	}
	return nil, false
}

// Camera returns the camera with the given id.
func (s *Stage) Camera(id string) (*Camera, bool) {
	for i := range s.Cameras {
		if s.Cameras[i].ID == id {
			return &s.Cameras[i], true
		}
	}
	return nil, false
}

// ClipPlanes returns the near and far clip distances with defaults applied.
func (s *Stage) ClipPlanes() (near, far float32) {
	near, far = s.NearClip, s.FarClip
	if near <= 0 {
		near = DefaultNearClip
	}
	if far <= near {
		far = max(DefaultFarClip, near*2)
	}
	return near, far
}

// EyeLocation returns the viewer location for stereo eye ctx of eyeCount.
// Mono returns the view origin; stereo shifts each eye half the
// interocular distance along the viewer's right axis.
func (s *Stage) EyeLocation(ctx, eyeCount int) geom.Vec3 {
	loc := s.ViewOrigin.Location
	if eyeCount < 2 {
		return loc
	}
	half := s.InterocularDistance / 2
	if ctx == 0 {
		half = -half
	}
	return loc.Add(s.ViewOrigin.Right().Scale(half))
}

// Clone returns a copy sharing no slices with s. Textures are shared.
func (s *Stage) Clone() *Stage {
	c := *s
	c.Screens = slices.Clone(s.Screens)
	c.Cameras = slices.Clone(s.Cameras)
	for i := range c.Cameras {
		c.Cameras[i].Chromakey.ShowOnly = slices.Clone(c.Cameras[i].Chromakey.ShowOnly)
	}
	c.LightCards.ShowOnly = slices.Clone(s.LightCards.ShowOnly)
	return &c
}
