// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rendertarget allocates the pooled resources of a frame plan.
//
// Allocation runs two independent pool cycles per frame. The first serves
// one render-target texture per plan batch. The second serves the general
// textures: per viewport context an input/resolve texture, an optional
// additional texture for warp/blend and blur, and an optional mip chain;
// plus one frame-output texture per eye sized to the frame rectangle.
package rendertarget

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/frame"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/viewport"
)

// OutputFormat is the pixel format of frame-output textures.
const OutputFormat = gputypes.TextureFormatRGBA8Unorm

// FormatFor returns the pixel format of a viewport's render target and
// inputs for capture mode m.
func FormatFor(m viewport.CaptureMode) gputypes.TextureFormat {
	switch m {
	case viewport.CaptureChromakey:
		return gputypes.TextureFormatRGBA8Unorm
	case viewport.CaptureLightcard, viewport.CaptureLightcardOCIO:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatRGBA16Float
	}
}

// Output is the frame output of one eye.
type Output struct {
	Eye int

	// Rect is the frame rectangle the output texture covers.
	Rect image.Rectangle

	// BackbufferOffset places the eye in the node's backbuffer for the
	// side-by-side and top-bottom layouts.
	BackbufferOffset image.Point

	Target *resource.Resource

	// Remap is the target of the optional remap pass; nil without remap.
	Remap *resource.Resource
}

// Allocation is the result of serving one frame plan.
type Allocation struct {
	Frame *frame.Frame

	// RenderTargets is parallel to Frame.Targets. Batches without a view
	// to render get nil.
	RenderTargets []*resource.Resource

	Outputs []Output
}

// Manager drives a resource pool for frame plans.
type Manager struct {
	pool *resource.Pool
}

// New returns a manager allocating from pool.
func New(pool *resource.Pool) *Manager {
	return &Manager{pool: pool}
}

// Pool returns the resource pool.
func (m *Manager) Pool() *resource.Pool { return m.pool }

// Allocate serves every viewport of f and records the resources on the
// viewports. Failed allocations leave nil entries; the passes that need
// them are skipped. Errors are returned only for pool protocol misuse.
func (m *Manager) Allocate(f *frame.Frame, opts *cluster.FrameRenderOptions) (*Allocation, error) {
	a := &Allocation{Frame: f, RenderTargets: make([]*resource.Resource, len(f.Targets))}
	vps := f.Viewports()
	for _, vp := range vps {
		n := len(vp.Contexts())
		vp.Resources = viewport.Resources{
			RenderTargets: make([]*resource.Resource, n),
			Inputs:        make([]*resource.Resource, n),
			Additional:    make([]*resource.Resource, n),
			Mips:          make([]*resource.Resource, n),
		}
	}

	if err := m.allocateRenderTargets(a); err != nil {
		return nil, err
	}
	if err := m.allocateTextures(a, vps, opts); err != nil {
		return nil, err
	}
	for _, vp := range vps {
		vp.MarkResourcesRequested()
	}

	cluster.Logger().Debug("rendertarget: frame allocated",
		"viewports", len(vps), "outputs", len(a.Outputs), "pool", m.pool.Stats().String())
	return a, nil
}

func (m *Manager) allocateRenderTargets(a *Allocation) error {
	if err := m.pool.BeginReallocate(resource.KindRenderTarget); err != nil {
		return fmt.Errorf("rendertarget: %w", err)
	}
	for i, t := range a.Frame.Targets {
		lead, ok := firstRendered(t)
		if !ok {
			continue
		}
		r := m.pool.Allocate(resource.KindRenderTarget, resource.Desc{
			Size:   t.Size,
			Format: FormatFor(t.CaptureMode),
			GPU:    t.GPUIndex,
			Label:  fmt.Sprintf("%s/rt%d", lead.Viewport.ID(), lead.Context),
		})
		a.RenderTargets[i] = r
		for _, fam := range t.Families {
			for _, v := range fam.Views {
				v.Viewport.Resources.RenderTargets[v.Context] = r
			}
		}
	}
	if err := m.pool.FinishReallocate(resource.KindRenderTarget); err != nil {
		return fmt.Errorf("rendertarget: %w", err)
	}
	return nil
}

func firstRendered(t frame.Target) (frame.View, bool) {
	for _, fam := range t.Families {
		for _, v := range fam.Views {
			if v.ShouldRender {
				return v, true
			}
		}
	}
	return frame.View{}, false
}

func (m *Manager) allocateTextures(a *Allocation, vps []*viewport.Viewport, opts *cluster.FrameRenderOptions) error {
	if err := m.pool.BeginReallocate(resource.KindTexture); err != nil {
		return fmt.Errorf("rendertarget: %w", err)
	}
	for _, vp := range vps {
		// Override viewports read their source's textures.
		if vp.Render.OverrideViewportID != "" {
			continue
		}
		format := FormatFor(vp.Render.CaptureMode)
		additional := needsAdditional(vp, opts)
		for _, c := range vp.Contexts() {
			desc := resource.Desc{
				Size:   c.RenderTargetRect.Size(),
				Format: format,
				GPU:    c.GPUIndex,
			}
			desc.Label = fmt.Sprintf("%s/input%d", vp.ID(), c.Index)
			vp.Resources.Inputs[c.Index] = m.pool.Allocate(resource.KindTexture, desc)
			if additional {
				desc.Label = fmt.Sprintf("%s/additional%d", vp.ID(), c.Index)
				vp.Resources.Additional[c.Index] = m.pool.Allocate(resource.KindTexture, desc)
			}
			if c.NumMips > 1 {
				desc.Label = fmt.Sprintf("%s/mips%d", vp.ID(), c.Index)
				desc.Mips = c.NumMips
				vp.Resources.Mips[c.Index] = m.pool.Allocate(resource.KindTexture, desc)
			}
		}
	}
	a.Outputs = m.allocateOutputs(a.Frame.FrameRect, opts)
	if err := m.pool.FinishReallocate(resource.KindTexture); err != nil {
		return fmt.Errorf("rendertarget: %w", err)
	}
	return nil
}

// needsAdditional reports whether the viewport needs a second image
// buffer: warp/blend writes into it, and blur ping-pongs through it.
func needsAdditional(vp *viewport.Viewport, opts *cluster.FrameRenderOptions) bool {
	if vp.PostRender.Blur.Mode != viewport.BlurNone {
		return true
	}
	if opts == nil || !opts.WarpBlend {
		return false
	}
	_, ok := projection.SupportsWarpBlend(vp.Policy())
	return ok
}

func (m *Manager) allocateOutputs(rect image.Rectangle, opts *cluster.FrameRenderOptions) []Output {
	if rect.Empty() {
		return nil
	}
	mode := cluster.StereoModeMono
	if opts != nil {
		mode = opts.StereoMode
	}
	remapSize := image.Point{}
	if opts != nil && opts.Remap.Enable {
		remapSize = RemapSize(opts)
	}

	outputs := make([]Output, mode.EyeCount())
	for eye := range outputs {
		o := Output{Eye: eye, Rect: rect}
		if eye > 0 {
			switch mode {
			case cluster.StereoModeSideBySide:
				o.BackbufferOffset = image.Pt(rect.Dx()*eye, 0)
			case cluster.StereoModeTopBottom:
				o.BackbufferOffset = image.Pt(0, rect.Dy()*eye)
			}
		}
		o.Target = m.pool.Allocate(resource.KindTexture, resource.Desc{
			Size:   rect.Size(),
			Format: OutputFormat,
			Label:  fmt.Sprintf("frame/eye%d", eye),
		})
		if remapSize.X > 0 && remapSize.Y > 0 {
			o.Remap = m.pool.Allocate(resource.KindTexture, resource.Desc{
				Size:   remapSize,
				Format: OutputFormat,
				Label:  fmt.Sprintf("frame/remap%d", eye),
			})
		}
		outputs[eye] = o
	}
	return outputs
}

// RemapSize returns the size of the remap target: the output size when
// known, otherwise the bounds of every destination region.
func RemapSize(opts *cluster.FrameRenderOptions) image.Point {
	if opts.OutputSize.X > 0 && opts.OutputSize.Y > 0 {
		return opts.OutputSize
	}
	var bounds image.Rectangle
	for _, r := range opts.Remap.Regions {
		bounds = bounds.Union(r.Dst)
	}
	return bounds.Max
}
