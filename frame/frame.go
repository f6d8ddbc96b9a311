// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frame assembles the per-frame render plan.
//
// The plan is a list of render targets, each holding view families, each
// holding views. Build uses the non-atlased strategy: one render target
// with one family per viewport context, so physical textures map 1:1 to
// eye contexts. Plans are rebuilt every frame and never persisted.
package frame

import (
	"image"
	"slices"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/viewport"
)

// View is one viewport context in the plan.
type View struct {
	Viewport *viewport.Viewport
	Context  int

	// StereoViewIndex is unique across the frame and starts at 1.
	StereoViewIndex int

	// ShouldRender is false for views kept in the plan whose scene render
	// is skipped: failed view calculation, override source or texture
	// replace.
	ShouldRender bool
}

// Family is a batch of views rendered together in one pass.
type Family struct {
	Views []View
}

// Target is one render-target batch.
type Target struct {
	Size        image.Point
	GPUIndex    int
	CaptureMode viewport.CaptureMode
	Families    []Family
}

// Frame is the render plan of one frame.
type Frame struct {
	Targets []Target

	// FrameRect is the union of the enabled, visible viewports' frame
	// rectangles, or the full output when the full-size policy is active.
	FrameRect image.Rectangle

	// ViewCount is the number of views in the plan.
	ViewCount int
}

// Views returns every view in plan order.
func (f *Frame) Views() []View {
	out := make([]View, 0, f.ViewCount)
	for _, t := range f.Targets {
		for _, fam := range t.Families {
			out = append(out, fam.Views...)
		}
	}
	return out
}

// Viewports returns the distinct viewports of the plan in plan order.
func (f *Frame) Viewports() []*viewport.Viewport {
	var out []*viewport.Viewport
	seen := make(map[*viewport.Viewport]bool)
	for _, v := range f.Views() {
		if !seen[v.Viewport] {
			seen[v.Viewport] = true
			out = append(out, v.Viewport)
		}
	}
	return out
}

// Build assembles the plan from the viewports that computed contexts this
// frame. Viewports without contexts are left out. Stereo view indices are
// assigned in plan order and written back to the viewport contexts.
//
// FrameRect is the union of the clamped rectangles of all enabled and
// visible viewports, including ones excluded from the plan, so excluding
// a viewport never moves the others within the frame.
func Build(viewports []*viewport.Viewport, opts *cluster.FrameRenderOptions) *Frame {
	f := &Frame{}
	ceiling := cluster.DefaultMaxTextureSize
	if opts != nil {
		ceiling = opts.TextureCeiling()
	}
	index := 1
	for _, vp := range RootsFirst(viewports) {
		if vp.Render.Enable && vp.Render.Visible && !vp.Render.Rect.Empty() {
			r, _ := viewport.ValidRect(vp.Render.Rect, ceiling)
			f.FrameRect = f.FrameRect.Union(r)
		}
		ctxs := vp.Contexts()
		if len(ctxs) == 0 {
			continue
		}
		for _, c := range ctxs {
			vp.SetStereoViewIndex(c.Index, index)
			f.Targets = append(f.Targets, Target{
				Size:        c.RenderTargetRect.Size(),
				GPUIndex:    c.GPUIndex,
				CaptureMode: vp.Render.CaptureMode,
				Families: []Family{{Views: []View{{
					Viewport:        vp,
					Context:         c.Index,
					StereoViewIndex: index,
					ShouldRender:    shouldRender(vp, c),
				}}}},
			})
			index++
		}
	}
	f.ViewCount = index - 1

	if opts != nil && opts.UseFullSizeFrame && opts.OutputSize.X > 0 && opts.OutputSize.Y > 0 {
		f.FrameRect = image.Rectangle{Max: opts.OutputSize}
	}

	cluster.Logger().Debug("frame: plan built",
		"targets", len(f.Targets), "views", f.ViewCount, "frame", f.FrameRect)
	return f
}

func shouldRender(vp *viewport.Viewport, c viewport.Context) bool {
	return !c.DisableRender && vp.Render.OverrideViewportID == "" && !vp.PostRender.Replace.Enable
}

// RootsFirst orders viewports so every viewport follows its parent.
// Viewports whose parent is absent count as roots. The order within one
// depth is the input order.
func RootsFirst(viewports []*viewport.Viewport) []*viewport.Viewport {
	byID := make(map[string]*viewport.Viewport, len(viewports))
	for _, vp := range viewports {
		byID[vp.ID()] = vp
	}
	depth := make(map[*viewport.Viewport]int, len(viewports))
	for _, vp := range viewports {
		d := 0
		for p := vp; ; d++ {
			parent, ok := byID[p.Render.ParentViewportID]
			if !ok || d >= len(viewports) {
				break
			}
			p = parent
		}
		depth[vp] = d
	}
	out := slices.Clone(viewports)
	slices.SortStableFunc(out, func(a, b *viewport.Viewport) int {
		return depth[a] - depth[b]
	})
	return out
}
