// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package projection defines the capability surface of projection policies.
//
// Every viewport owns one [Policy] instance. The base interface covers scene
// binding and per-eye view and projection calculation. Optional
// capabilities are separate interfaces discovered with [SupportsWarpBlend]
// and [SupportsICVFX], so a policy opts in by implementing the methods and
// nothing defaults to false behind the caller's back.
//
// Policies are created by type name through the registry:
//
//	p, err := projection.New("simple", "wall_left", map[string]string{"screen": "left"})
//
// Built-in policies live in projection/simple, projection/camera and
// projection/mesh and register themselves on import.
//
// A policy is bound and queried on the control context. The GPU-submission
// context never touches a policy: it runs the hooks returned by
// [WarpBlender.WarpState], captured when the frame was snapshotted.
package projection

import (
	"image"

	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/stage"
)

// View is the per-eye view state a policy reads and refines.
type View struct {
	// Location is the eye position. Policies may replace it.
	Location geom.Vec3

	// Rotation is the view orientation. Policies set it.
	Rotation geom.Rotator

	// Near and Far are the clip distances.
	Near, Far float32

	// Aspect is width / height of the context's render rectangle.
	Aspect float32
}

// Transform returns the view placement.
func (v View) Transform() geom.Transform {
	return geom.Transform{Location: v.Location, Rotation: v.Rotation}
}

// Matrix returns the world-to-view matrix.
func (v View) Matrix() geom.Mat4 {
	return geom.ViewMatrix(v.Transform())
}

// Policy is the required capability set of a projection policy.
type Policy interface {
	// Type returns the registered type name.
	Type() string

	// ViewportID returns the id of the viewport the policy serves.
	ViewportID() string

	// Parameters returns the configuration the policy was created with.
	Parameters() map[string]string

	// HandleStartScene binds the policy to s. It returns false when the
	// policy cannot serve this scene; the viewport then does not render
	// until the next successful bind.
	HandleStartScene(s *stage.Stage) bool

	// HandleEndScene releases everything bound by HandleStartScene.
	HandleEndScene()

	// CalculateView refines view for eye context ctx. It returns false when
	// no valid view exists this frame.
	CalculateView(ctx int, view *View) bool

	// ProjectionMatrix returns the projection of context ctx computed by
	// the last successful CalculateView.
	ProjectionMatrix(ctx int) (geom.Mat4, bool)
}

// WarpContext is one eye of a warp/blend pass.
type WarpContext struct {
	Context    int
	Input      resource.Texture
	InputRect  image.Rectangle
	Output     resource.Texture
	OutputRect image.Rectangle
}

// WarpPass is handed to the warp/blend hooks of one viewport.
type WarpPass struct {
	Backend    resource.Backend
	ViewportID string
	Contexts   []WarpContext
}

// WarpHooks are the warp/blend phases of one viewport. BeginWarpBlend runs
// once, ApplyWarpBlend once per context, EndWarpBlend once. A failing Begin
// skips Apply and End.
type WarpHooks interface {
	BeginWarpBlend(pass *WarpPass) error
	ApplyWarpBlend(pass *WarpPass, wc WarpContext) error
	EndWarpBlend(pass *WarpPass) error
}

// WarpBlender is implemented by policies that geometrically correct and
// edge-blend their viewport.
type WarpBlender interface {
	Policy
	WarpHooks

	// WarpState returns hooks over the state bound right now. Later binds
	// and unbinds of the policy do not change the returned value, so it
	// may run on the GPU-submission context while the control context
	// rebinds.
	WarpState() WarpHooks
}

// ICVFXCapable is implemented by policies whose viewports can act as ICVFX
// targets.
type ICVFXCapable interface {
	Policy

	// IsCameraProjectionVisible reports whether a camera with the given
	// view and projection can be seen through this policy's surface.
	IsCameraProjectionVisible(view View, proj geom.Mat4) bool
}

// SupportsWarpBlend returns p as a WarpBlender when it has the capability.
func SupportsWarpBlend(p Policy) (WarpBlender, bool) {
	if p == nil {
		return nil, false
	}
	w, ok := p.(WarpBlender)
	return w, ok
}

// SupportsICVFX returns p as ICVFXCapable when it has the capability.
func SupportsICVFX(p Policy) (ICVFXCapable, bool) {
	if p == nil {
		return nil, false
	}
	c, ok := p.(ICVFXCapable)
	return c, ok
}
