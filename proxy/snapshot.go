// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package proxy

import (
	"fmt"
	"image"

	"github.com/jinzhu/copier"

	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/viewport"
)

// ContextSnapshot is one eye of a snapshot with the textures it uses.
// Nil textures skip the passes that need them.
type ContextSnapshot struct {
	Index           int
	StereoViewIndex int
	GPUIndex        int

	FrameRect        image.Rectangle
	RenderTargetRect image.Rectangle
	NumMips          int
	DisableRender    bool

	View       projection.View
	Projection geom.Mat4

	RenderTarget resource.Texture
	Input        resource.Texture
	Additional   resource.Texture
	Mips         resource.Texture
}

// Snapshot is the immutable state of one viewport for one frame.
type Snapshot struct {
	ViewportID string
	Handle     viewport.Handle

	Render     viewport.RenderSettings
	ICVFX      viewport.ICVFXSettings
	PostRender viewport.PostRenderSettings

	Contexts []ContextSnapshot

	// Warp holds the warp/blend hooks captured at snapshot time, or nil
	// when the policy has no warp/blend capability.
	Warp projection.WarpHooks
}

// NewSnapshot captures vp after its resources were allocated.
// The snapshot shares no slices with vp.
func NewSnapshot(vp *viewport.Viewport) (*Snapshot, error) {
	s := &Snapshot{
		ViewportID: vp.ID(),
		Handle:     vp.Handle(),
		PostRender: vp.PostRender,
	}
	if wb, ok := projection.SupportsWarpBlend(vp.Policy()); ok {
		s.Warp = wb.WarpState()
	}
	opt := copier.Option{DeepCopy: true}
	if err := copier.CopyWithOption(&s.Render, &vp.Render, opt); err != nil {
		return nil, fmt.Errorf("proxy: snapshot %s render settings: %w", vp.ID(), err)
	}
	if err := copier.CopyWithOption(&s.ICVFX, &vp.ICVFX, opt); err != nil {
		return nil, fmt.Errorf("proxy: snapshot %s icvfx settings: %w", vp.ID(), err)
	}

	res := &vp.Resources
	for i, c := range vp.Contexts() {
		s.Contexts = append(s.Contexts, ContextSnapshot{
			Index:            c.Index,
			StereoViewIndex:  c.StereoViewIndex,
			GPUIndex:         c.GPUIndex,
			FrameRect:        c.FrameRect,
			RenderTargetRect: c.RenderTargetRect,
			NumMips:          c.NumMips,
			DisableRender:    c.DisableRender,
			View:             c.View,
			Projection:       c.Projection,
			RenderTarget:     textureAt(res.RenderTargets, i),
			Input:            textureAt(res.Inputs, i),
			Additional:       textureAt(res.Additional, i),
			Mips:             textureAt(res.Mips, i),
		})
	}
	vp.MarkSnapshotted()
	return s, nil
}

func textureAt(rs []*resource.Resource, i int) resource.Texture {
	if i >= len(rs) {
		return nil
	}
	return rs[i].Texture()
}

// ViewportProxy mirrors one viewport on the GPU-submission side.
type ViewportProxy struct {
	snap  *Snapshot
	frame uint64
}

// ID returns the viewport id.
func (p *ViewportProxy) ID() string { return p.snap.ViewportID }

// Handle returns the identity of the viewport the proxy mirrors.
func (p *ViewportProxy) Handle() viewport.Handle { return p.snap.Handle }

// Snapshot returns the last applied snapshot.
func (p *ViewportProxy) Snapshot() *Snapshot { return p.snap }

// Frame returns the frame number of the last update.
func (p *ViewportProxy) Frame() uint64 { return p.frame }
