// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package viewport

import (
	"errors"
	"image"
	"maps"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/stage"
)

// ErrAlreadyReset is returned when ResetPerFrameSettings runs twice before
// the viewport's contexts are computed.
var ErrAlreadyReset = errors.New("viewport: per-frame settings already reset")

// Viewport is one rectangular render surface on a cluster node.
//
// Render, ICVFX and PostRender are the working copy for the current frame.
// They are overwritten from the configuration by ResetPerFrameSettings and
// may be adjusted afterwards by the frame builders.
type Viewport struct {
	id     string
	nodeID string
	handle Handle

	cfg Config

	Render     RenderSettings
	ICVFX      ICVFXSettings
	PostRender PostRenderSettings

	// Resources are the pool resources borrowed for the current frame.
	Resources Resources

	policy      projection.Policy
	policyBound bool

	contexts []Context
	state    State
}

// New returns a viewport in the Idle state. The policy may be nil; such a
// viewport never renders.
func New(id, nodeID string, cfg Config, policy projection.Policy) *Viewport {
	cfg.ProjectionParams = maps.Clone(cfg.ProjectionParams)
	return &Viewport{id: id, nodeID: nodeID, cfg: cfg, policy: policy}
}

// ID returns the viewport id.
func (v *Viewport) ID() string { return v.id }

// NodeID returns the id of the owning cluster node.
func (v *Viewport) NodeID() string { return v.nodeID }

// Handle returns the arena handle, or the zero Handle before insertion.
func (v *Viewport) Handle() Handle { return v.handle }

// Config returns the declarative defaults of the viewport.
func (v *Viewport) Config() Config { return v.cfg }

// SetConfig replaces the declarative defaults. It takes effect at the next
// ResetPerFrameSettings.
func (v *Viewport) SetConfig(cfg Config) {
	cfg.ProjectionParams = maps.Clone(cfg.ProjectionParams)
	v.cfg = cfg
}

// Policy returns the projection policy, which may be nil.
func (v *Viewport) Policy() projection.Policy { return v.policy }

// SetPolicy replaces the projection policy. A bound policy is unbound
// first; the new one is bound at the next HandleStartScene.
func (v *Viewport) SetPolicy(p projection.Policy) {
	v.HandleEndScene()
	v.policy = p
}

// PolicyBound reports whether the policy accepted the current scene.
func (v *Viewport) PolicyBound() bool { return v.policy != nil && v.policyBound }

// State returns the lifecycle state within the current frame.
func (v *Viewport) State() State { return v.state }

// IsInternal reports whether the ICVFX builder owns the viewport.
func (v *Viewport) IsInternal() bool { return v.ICVFX.Runtime.Has(RuntimeInternal) }

// HandleStartScene binds the projection policy to s. A viewport whose
// policy is missing or rejects the scene cannot render until it is bound
// again.
func (v *Viewport) HandleStartScene(s *stage.Stage) bool {
	log := cluster.Logger()
	if v.policy == nil {
		log.Warn("viewport: no projection policy", "viewport", v.id)
		v.policyBound = false
		return false
	}
	v.policyBound = v.policy.HandleStartScene(s)
	if !v.policyBound {
		log.Warn("viewport: projection policy rejected scene",
			"viewport", v.id, "policy", v.policy.Type())
	}
	return v.policyBound
}

// HandleEndScene unbinds the projection policy.
func (v *Viewport) HandleEndScene() {
	if v.policy != nil && v.policyBound {
		v.policy.HandleEndScene()
	}
	v.policyBound = false
}

// ResetPerFrameSettings restores the configured defaults and clears the
// contexts and resources of the previous frame. It must run once per frame
// before any other per-frame mutation.
func (v *Viewport) ResetPerFrameSettings() error {
	if v.state == StateSettingsReset {
		return ErrAlreadyReset
	}
	v.Render = v.cfg.Render
	v.PostRender = v.cfg.PostRender

	// Role flags of internal viewports are fixed at creation; the target
	// role is recomputed every frame.
	runtime := v.ICVFX.Runtime &^ (RuntimeTarget | RuntimeUnused)
	v.ICVFX = ICVFXSettings{Flags: v.cfg.ICVFX, Runtime: runtime}

	v.contexts = nil
	v.Resources = Resources{}
	v.state = StateSettingsReset
	return nil
}

// InheritFrom copies the rectangle and GPU affinity of parent.
func (v *Viewport) InheritFrom(parent *Viewport) {
	v.Render.Rect = parent.Render.Rect
	v.Render.GPUIndex = parent.Render.GPUIndex
	v.Render.StereoGPUIndex = parent.Render.StereoGPUIndex
}

// IsInner reports whether the viewport captures a camera or chromakey.
func (v *Viewport) IsInner() bool {
	return v.ICVFX.Runtime&(RuntimeInCamera|RuntimeChromakey) != 0
}

// IsOuter reports whether the viewport is an ICVFX target or a light-card
// capture.
func (v *Viewport) IsOuter() bool {
	return v.ICVFX.Runtime&(RuntimeTarget|RuntimeLightcard) != 0
}

// RenderTargetRatio returns the factor the frame rect is scaled by to size
// the render target: the cluster multiplier, times the ICVFX category
// multiplier, times the viewport's RenderTargetRatio, times its
// BufferRatio. BufferRatio is the overscan factor of camera viewports; it
// defaults to 1 and leaves other viewports unscaled.
func (v *Viewport) RenderTargetRatio(opts *cluster.FrameRenderOptions) float64 {
	ratio := float64(opts.ClusterRenderTargetRatio)
	switch {
	case v.IsInner():
		ratio *= float64(opts.ICVFXInnerRatio)
	case v.IsOuter():
		ratio *= float64(opts.ICVFXOuterRatio)
	}
	return ratio * float64(v.Render.RenderTargetRatio) * float64(v.Render.BufferRatio)
}

// GetValidRect clamps r to the texture limits of opts and logs when the
// rectangle had to change.
func (v *Viewport) GetValidRect(r image.Rectangle, opts *cluster.FrameRenderOptions) image.Rectangle {
	out, clamped := ValidRect(r, opts.TextureCeiling())
	if clamped {
		cluster.Logger().Warn("viewport: rect clamped to texture limits",
			"viewport", v.id, "requested", r, "clamped", out)
	}
	return out
}

// UpdateFrameContexts computes the per-eye contexts of the frame. Contexts
// get provisional stereo view indices starting at viewIndexBase; the frame
// plan assigns the final ones.
//
// It returns false, and the viewport is excluded from the frame, when the
// viewport is disabled or skipped, has no bound policy, or any context
// ends up with a zero-area render target.
func (v *Viewport) UpdateFrameContexts(viewIndexBase int, opts *cluster.FrameRenderOptions) bool {
	v.contexts = nil
	if !v.eligible(opts) {
		v.state = StateIneligible
		return false
	}
	v.state = StateContextsComputed

	frameRect := v.GetValidRect(v.Render.Rect, opts)
	rtSize := scaleSize(frameRect.Size(), v.RenderTargetRatio(opts))
	if rtSize.X <= 0 || rtSize.Y <= 0 {
		cluster.Logger().Warn("viewport: zero-area render target, excluded",
			"viewport", v.id, "size", rtSize)
		v.state = StateIneligible
		return false
	}
	rtRect := v.GetValidRect(image.Rectangle{Max: rtSize}, opts)

	mips := 1
	if gm := v.PostRender.GenerateMips; gm.Enable {
		mips = resource.MipCount(rtRect.Size())
		if gm.MaxLevels > 0 {
			mips = min(mips, gm.MaxLevels)
		}
	}

	eyes := opts.StereoMode.EyeCount()
	if v.Render.ForceMono {
		eyes = 1
	}
	gpu := opts.ResolveGPU(v.Render.GPUIndex)
	for i := range eyes {
		ctxGPU := gpu
		if i > 0 && v.Render.StereoGPUIndex >= 0 {
			ctxGPU = opts.ResolveGPU(v.Render.StereoGPUIndex)
		}
		v.contexts = append(v.contexts, Context{
			Index:            i,
			StereoViewIndex:  viewIndexBase + i,
			GPUIndex:         ctxGPU,
			FrameRect:        frameRect,
			RenderTargetRect: rtRect,
			NumMips:          mips,
		})
	}
	v.state = StateEligible
	return true
}

func (v *Viewport) eligible(opts *cluster.FrameRenderOptions) bool {
	log := cluster.Logger()
	switch {
	case !v.Render.Enable:
		return false
	case v.Render.Skip:
		log.Debug("viewport: skipped", "viewport", v.id)
		return false
	case !v.PolicyBound():
		log.Warn("viewport: no bound projection policy, excluded", "viewport", v.id)
		return false
	case v.Render.Rect.Empty():
		log.Warn("viewport: zero-area rect, excluded", "viewport", v.id, "rect", v.Render.Rect)
		return false
	case opts == nil:
		return false
	}
	return true
}

// CalculateViews asks the policy for the view and projection of every
// context. A context whose calculation fails stays in the plan with
// rendering disabled.
func (v *Viewport) CalculateViews(s *stage.Stage) {
	if !v.PolicyBound() {
		return
	}
	near, far := s.ClipPlanes()
	for i := range v.contexts {
		c := &v.contexts[i]
		size := c.RenderTargetRect.Size()
		c.View = projection.View{
			Location: s.EyeLocation(c.Index, len(v.contexts)),
			Rotation: s.ViewOrigin.Rotation,
			Near:     near,
			Far:      far,
			Aspect:   float32(size.X) / float32(size.Y),
		}
		ok := v.policy.CalculateView(c.Index, &c.View)
		if ok {
			c.Projection, ok = v.policy.ProjectionMatrix(c.Index)
		}
		c.DisableRender = !ok
		if !ok {
			cluster.Logger().Warn("viewport: view calculation failed, render disabled",
				"viewport", v.id, "context", c.Index)
		}
	}
}

// Contexts returns the contexts of the current frame. The slice is owned
// by the viewport.
func (v *Viewport) Contexts() []Context { return v.contexts }

// SetStereoViewIndex assigns the final stereo view index of context ctx.
func (v *Viewport) SetStereoViewIndex(ctx, index int) {
	if ctx >= 0 && ctx < len(v.contexts) {
		v.contexts[ctx].StereoViewIndex = index
	}
}

// MarkResourcesRequested records that the render target manager has
// served the viewport this frame.
func (v *Viewport) MarkResourcesRequested() {
	if v.state == StateEligible {
		v.state = StateResourcesRequested
	}
}

// MarkSnapshotted records that a proxy snapshot was taken this frame.
func (v *Viewport) MarkSnapshotted() {
	if v.state == StateResourcesRequested || v.state == StateEligible {
		v.state = StateProxySnapshotted
	}
}

// HoldsResources reports whether any pooled resource is attached.
func (v *Viewport) HoldsResources() bool {
	r := &v.Resources
	return len(r.RenderTargets)+len(r.Inputs)+len(r.Additional)+len(r.Mips) > 0
}
