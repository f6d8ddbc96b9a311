// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package proxy

import (
	"cmp"
	"context"
	"fmt"
	"image"
	"slices"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/viewport"
)

// Pass names reported to backends implementing resource.PassMarker.
const (
	PassTransfer          = "transfer"
	PassEffects           = "effects"
	PassPostProcessBefore = "postprocess_before"
	PassWarpBlend         = "warpblend"
	PassResolve           = "resolve"
	PassRemap             = "remap"
	PassPostProcessAfter  = "postprocess_after"
)

// ExecutionStats counts the work of one executed frame.
type ExecutionStats struct {
	Frame   uint64
	Proxies int

	Transfers         int
	Fills             int
	Blurs             int
	MipChains         int
	PostProcessBefore int
	Warped            int
	Resolved          int
	Remapped          int
	PostProcessAfter  int
	Released          int

	// Errors counts failed backend operations. Failures skip the
	// operation, never the frame.
	Errors int
}

// ManagerProxy owns the viewport proxies and runs the compositing passes.
// It must only be used from the GPU-submission goroutine.
type ManagerProxy struct {
	backend     resource.Backend
	proxies     map[string]*ViewportProxy
	postprocess []registrant
}

// NewManagerProxy returns a proxy manager issuing work to backend.
func NewManagerProxy(backend resource.Backend) *ManagerProxy {
	return &ManagerProxy{backend: backend, proxies: make(map[string]*ViewportProxy)}
}

// Run drains q until ctx is canceled or q is closed.
func (m *ManagerProxy) Run(ctx context.Context, q *Queue) error {
	return q.Run(ctx, m.Execute)
}

// Proxy returns the proxy of viewport id.
func (m *ManagerProxy) Proxy(id string) (*ViewportProxy, bool) {
	p, ok := m.proxies[id]
	return p, ok
}

// Len returns the number of proxies.
func (m *ManagerProxy) Len() int { return len(m.proxies) }

// PostProcesses returns the registered post-process names in order.
func (m *ManagerProxy) PostProcesses() []string {
	names := make([]string, len(m.postprocess))
	for i, r := range m.postprocess {
		names[i] = r.name
	}
	return names
}

// frameState is the per-frame bookkeeping of Execute.
type frameState struct {
	fw     *FrameWork
	stats  ExecutionStats
	views  []planEntry
	warped map[string][]bool
}

type planEntry struct {
	PlanView
	proxy *ViewportProxy
	ctx   *ContextSnapshot
}

// Execute applies the commands of fw and runs the passes of its plan.
func (m *ManagerProxy) Execute(fw *FrameWork) ExecutionStats {
	fs := &frameState{fw: fw, warped: make(map[string][]bool)}
	fs.stats.Frame = fw.Frame
	for _, c := range fw.Commands {
		m.apply(c, fw.Frame)
	}
	fs.stats.Proxies = len(m.proxies)
	fs.views = m.resolvePlan(fw)

	m.transfer(fs)
	m.effects(fs)
	m.postProcessBefore(fs)
	m.warpBlend(fs)
	m.resolve(fs)
	m.remap(fs)
	m.postProcessAfter(fs)

	for _, tex := range fw.Release {
		m.backend.ReleaseTexture(tex)
		fs.stats.Released++
	}
	cluster.Logger().Debug("proxy: frame executed", "frame", fw.Frame,
		"views", len(fs.views), "warped", fs.stats.Warped, "resolved", fs.stats.Resolved,
		"errors", fs.stats.Errors)
	return fs.stats
}

func (m *ManagerProxy) apply(c Command, frame uint64) {
	log := cluster.Logger()
	switch c := c.(type) {
	case UpdateViewport:
		if c.Snapshot == nil {
			return
		}
		m.proxies[c.Snapshot.ViewportID] = &ViewportProxy{snap: c.Snapshot, frame: frame}
	case DeleteViewport:
		p, ok := m.proxies[c.ViewportID]
		if !ok || p.Handle() != c.Handle {
			log.Debug("proxy: stale delete ignored", "viewport", c.ViewportID, "handle", c.Handle)
			return
		}
		delete(m.proxies, c.ViewportID)
		log.Debug("proxy: viewport proxy deleted", "viewport", c.ViewportID)
	case RegisterPostProcess:
		if c.PostProcess == nil {
			return
		}
		if i := m.postProcessIndex(c.Name); i >= 0 {
			m.postprocess[i].pp = c.PostProcess
			return
		}
		m.postprocess = append(m.postprocess, registrant{name: c.Name, pp: c.PostProcess})
	case UnregisterPostProcess:
		if i := m.postProcessIndex(c.Name); i >= 0 {
			m.postprocess = slices.Delete(m.postprocess, i, i+1)
		}
	default:
		log.Warn("proxy: unknown command", "type", fmt.Sprintf("%T", c))
	}
}

func (m *ManagerProxy) postProcessIndex(name string) int {
	return slices.IndexFunc(m.postprocess, func(r registrant) bool { return r.name == name })
}

// resolvePlan pairs every plan view with its proxy and context. Views of
// proxies missing or lagging behind this frame are dropped.
func (m *ManagerProxy) resolvePlan(fw *FrameWork) []planEntry {
	out := make([]planEntry, 0, len(fw.Plan))
	for _, v := range fw.Plan {
		p, ok := m.proxies[v.ViewportID]
		if !ok || p.frame != fw.Frame || v.Context < 0 || v.Context >= len(p.snap.Contexts) {
			cluster.Logger().Warn("proxy: plan view without proxy", "viewport", v.ViewportID, "context", v.Context)
			continue
		}
		out = append(out, planEntry{PlanView: v, proxy: p, ctx: &p.snap.Contexts[v.Context]})
	}
	return out
}

// byOverlap returns the distinct proxies of the plan sorted by overlap
// order, plan order breaking ties.
func (fs *frameState) byOverlap() []*ViewportProxy {
	var out []*ViewportProxy
	for _, e := range fs.views {
		if !slices.Contains(out, e.proxy) {
			out = append(out, e.proxy)
		}
	}
	slices.SortStableFunc(out, func(a, b *ViewportProxy) int {
		return cmp.Compare(a.snap.Render.OverlapOrder, b.snap.Render.OverlapOrder)
	})
	return out
}

func (m *ManagerProxy) mark(pass string) {
	if pm, ok := m.backend.(resource.PassMarker); ok {
		pm.MarkPass(pass)
	}
}

func (m *ManagerProxy) copy(fs *frameState, src resource.Texture, srcRect image.Rectangle, dst resource.Texture, dstRect image.Rectangle) bool {
	if src == nil || dst == nil {
		return false
	}
	if err := m.backend.CopyOrResample(src, srcRect, dst, dstRect); err != nil {
		cluster.Logger().Warn("proxy: copy failed", "err", err)
		fs.stats.Errors++
		return false
	}
	return true
}

// transfer brings rendered images onto the output GPU and fills every
// context input, either from its render target or from a replace texture.
func (m *ManagerProxy) transfer(fs *frameState) {
	m.mark(PassTransfer)
	opts := &fs.fw.Options
	for _, e := range fs.views {
		snap, c := e.proxy.snap, e.ctx
		if snap.Render.OverrideViewportID != "" {
			continue
		}
		inputRect := c.RenderTargetRect
		if r := snap.PostRender.Replace; r.Enable && r.Texture != nil {
			src := r.Rect
			if src.Empty() {
				src = r.Texture.Desc().Bounds()
			}
			if m.copy(fs, r.Texture, src, c.Input, inputRect) {
				fs.stats.Fills++
			}
			continue
		}
		if !e.ShouldRender || c.RenderTarget == nil {
			continue
		}
		if c.GPUIndex != 0 && opts.CrossGPUTransfer {
			if err := m.backend.TransferAcrossDevice(c.RenderTarget, c.RenderTargetRect, c.GPUIndex, 0); err != nil {
				cluster.Logger().Warn("proxy: cross-device transfer failed",
					"viewport", snap.ViewportID, "context", c.Index, "err", err)
				fs.stats.Errors++
				continue
			}
			fs.stats.Transfers++
		}
		if m.copy(fs, c.RenderTarget, c.RenderTargetRect, c.Input, inputRect) {
			fs.stats.Fills++
		}
	}
}

// effects runs blur and mip generation per viewport in overlap order.
func (m *ManagerProxy) effects(fs *frameState) {
	m.mark(PassEffects)
	for _, p := range fs.byOverlap() {
		snap := p.snap
		if snap.Render.OverrideViewportID != "" {
			continue
		}
		for i := range snap.Contexts {
			c := &snap.Contexts[i]
			if b := snap.PostRender.Blur; b.Mode != viewport.BlurNone && c.Input != nil && c.Additional != nil {
				down := blurRect(c.RenderTargetRect, b.KernelRadius)
				if m.copy(fs, c.Input, c.RenderTargetRect, c.Additional, down) &&
					m.copy(fs, c.Additional, down, c.Input, c.RenderTargetRect) {
					fs.stats.Blurs++
				}
			}
			if c.NumMips > 1 && c.Input != nil && c.Mips != nil {
				if !m.copy(fs, c.Input, c.RenderTargetRect, c.Mips, c.RenderTargetRect) {
					continue
				}
				if err := m.backend.GenerateMips(c.Mips); err != nil {
					cluster.Logger().Warn("proxy: mip generation failed", "viewport", snap.ViewportID, "err", err)
					fs.stats.Errors++
					continue
				}
				fs.stats.MipChains++
			}
		}
	}
}

// blurRect returns the downsampled area a blur of the given radius
// resamples through.
func blurRect(r image.Rectangle, radius int) image.Rectangle {
	div := max(2, radius)
	size := image.Pt(max(1, r.Dx()/div), max(1, r.Dy()/div))
	return image.Rectangle{Min: r.Min, Max: r.Min.Add(size)}
}

func (m *ManagerProxy) postProcessBefore(fs *frameState) {
	m.mark(PassPostProcessBefore)
	for _, r := range m.postprocess {
		if !r.pp.BeforeWarpBlend() {
			continue
		}
		for _, e := range fs.views {
			if e.ctx.Input == nil {
				continue
			}
			v := m.postProcessView(e, e.ctx.Input, e.ctx.RenderTargetRect)
			if err := r.pp.PerformBeforeWarpBlend(m.backend, v); err != nil {
				cluster.Logger().Warn("proxy: post-process failed", "postprocess", r.name, "err", err)
				fs.stats.Errors++
				continue
			}
			fs.stats.PostProcessBefore++
		}
	}
}

func (m *ManagerProxy) postProcessView(e planEntry, tex resource.Texture, rect image.Rectangle) PostProcessView {
	return PostProcessView{
		ViewportID:      e.ViewportID,
		Context:         e.Context,
		StereoViewIndex: e.StereoViewIndex,
		Texture:         tex,
		Rect:            rect,
	}
}

// warpBlend runs the warp/blend phases of every visible viewport whose
// policy supports them. Apply writes the input into the additional buffer.
func (m *ManagerProxy) warpBlend(fs *frameState) {
	m.mark(PassWarpBlend)
	if !fs.fw.Options.WarpBlend {
		return
	}
	log := cluster.Logger()
	for _, p := range fs.byOverlap() {
		snap := p.snap
		wb := snap.Warp
		if wb == nil || !snap.Render.Visible || snap.Render.OverrideViewportID != "" {
			continue
		}
		pass := &projection.WarpPass{Backend: m.backend, ViewportID: snap.ViewportID}
		for i := range snap.Contexts {
			c := &snap.Contexts[i]
			if c.Input == nil || c.Additional == nil {
				continue
			}
			pass.Contexts = append(pass.Contexts, projection.WarpContext{
				Context:    c.Index,
				Input:      c.Input,
				InputRect:  c.RenderTargetRect,
				Output:     c.Additional,
				OutputRect: c.RenderTargetRect,
			})
		}
		if len(pass.Contexts) == 0 {
			continue
		}
		if err := wb.BeginWarpBlend(pass); err != nil {
			log.Warn("proxy: warp/blend begin failed", "viewport", snap.ViewportID, "err", err)
			fs.stats.Errors++
			continue
		}
		warped := make([]bool, len(snap.Contexts))
		for _, wc := range pass.Contexts {
			if err := wb.ApplyWarpBlend(pass, wc); err != nil {
				log.Warn("proxy: warp/blend apply failed",
					"viewport", snap.ViewportID, "context", wc.Context, "err", err)
				fs.stats.Errors++
				continue
			}
			warped[wc.Context] = true
		}
		if err := wb.EndWarpBlend(pass); err != nil {
			log.Warn("proxy: warp/blend end failed", "viewport", snap.ViewportID, "err", err)
			fs.stats.Errors++
		}
		fs.warped[snap.ViewportID] = warped
		fs.stats.Warped++
	}
}

// resolveSource returns the buffer resolve reads for context ctx of p:
// the additional buffer if warp/blend wrote it, the input otherwise.
func (fs *frameState) resolveSource(p *ViewportProxy, ctx int) resource.Texture {
	c := &p.snap.Contexts[ctx]
	if w := fs.warped[p.snap.ViewportID]; ctx < len(w) && w[ctx] {
		return c.Additional
	}
	return c.Input
}

func (fs *frameState) output(eye int) *OutputSnapshot {
	if eye < 0 || eye >= len(fs.fw.Outputs) {
		return nil
	}
	return &fs.fw.Outputs[eye]
}

// resolve copies every visible view into its eye's frame output. Override
// viewports read the resolve source of the viewport they mirror, which must
// have been snapshotted this frame: an older snapshot references textures
// the pool has already retired.
func (m *ManagerProxy) resolve(fs *frameState) {
	m.mark(PassResolve)
	for _, e := range fs.views {
		snap := e.proxy.snap
		if !snap.Render.Visible {
			continue
		}
		out := fs.output(e.Context)
		if out == nil || out.Target == nil {
			continue
		}
		src, srcRect := fs.resolveSource(e.proxy, e.Context), e.ctx.RenderTargetRect
		if id := snap.Render.OverrideViewportID; id != "" {
			srcProxy, ok := m.proxies[id]
			if !ok || srcProxy.frame != fs.fw.Frame || e.Context >= len(srcProxy.snap.Contexts) {
				cluster.Logger().Warn("proxy: override source not rendered this frame",
					"viewport", snap.ViewportID, "source", id)
				continue
			}
			src, srcRect = fs.resolveSource(srcProxy, e.Context), srcProxy.snap.Contexts[e.Context].RenderTargetRect
		}
		dst := e.ctx.FrameRect.Sub(fs.fw.FrameRect.Min)
		if m.copy(fs, src, srcRect, out.Target, dst) {
			fs.stats.Resolved++
		}
	}
}

func (m *ManagerProxy) remap(fs *frameState) {
	remap := fs.fw.Options.Remap
	if !remap.Enable {
		return
	}
	m.mark(PassRemap)
	for i := range fs.fw.Outputs {
		out := &fs.fw.Outputs[i]
		for _, r := range remap.Regions {
			if m.copy(fs, out.Target, r.Src, out.Remap, r.Dst) {
				fs.stats.Remapped++
			}
		}
	}
}

func (m *ManagerProxy) postProcessAfter(fs *frameState) {
	m.mark(PassPostProcessAfter)
	for _, r := range m.postprocess {
		if !r.pp.AfterWarpBlend() {
			continue
		}
		for _, e := range fs.views {
			out := fs.output(e.Context)
			if out == nil || out.Target == nil || !e.proxy.snap.Render.Visible {
				continue
			}
			v := m.postProcessView(e, out.Target, e.ctx.FrameRect.Sub(fs.fw.FrameRect.Min))
			if err := r.pp.PerformAfterWarpBlend(m.backend, v); err != nil {
				cluster.Logger().Warn("proxy: post-process failed", "postprocess", r.name, "err", err)
				fs.stats.Errors++
				continue
			}
			fs.stats.PostProcessAfter++
		}
	}
}
