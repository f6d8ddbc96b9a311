// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package proxy

import (
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/backend/recording"
	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/stage"
	"github.com/gogpu/cluster/viewport"
)

type warpPolicy struct {
	beginErr error
}

func (p *warpPolicy) Type() string                                 { return "stub_warp" }
func (p *warpPolicy) ViewportID() string                           { return "" }
func (p *warpPolicy) Parameters() map[string]string                { return nil }
func (p *warpPolicy) HandleStartScene(*stage.Stage) bool           { return true }
func (p *warpPolicy) HandleEndScene()                              {}
func (p *warpPolicy) CalculateView(int, *projection.View) bool     { return true }
func (p *warpPolicy) ProjectionMatrix(int) (geom.Mat4, bool)       { return geom.Identity(), true }
func (p *warpPolicy) EndWarpBlend(pass *projection.WarpPass) error { return markPass(pass, "end") }
func (p *warpPolicy) WarpState() projection.WarpHooks              { return p }

func (p *warpPolicy) BeginWarpBlend(pass *projection.WarpPass) error {
	if p.beginErr != nil {
		return p.beginErr
	}
	return markPass(pass, "begin")
}

func (p *warpPolicy) ApplyWarpBlend(pass *projection.WarpPass, wc projection.WarpContext) error {
	return pass.Backend.CopyOrResample(wc.Input, wc.InputRect, wc.Output, wc.OutputRect)
}

func markPass(pass *projection.WarpPass, phase string) error {
	if pm, ok := pass.Backend.(resource.PassMarker); ok {
		pm.MarkPass(phase + ":" + pass.ViewportID)
	}
	return nil
}

var errBegin = errors.New("begin failed")

type recordingPostProcess struct {
	name          string
	before, after bool
	calls         *[]string
}

func (r *recordingPostProcess) BeforeWarpBlend() bool { return r.before }
func (r *recordingPostProcess) AfterWarpBlend() bool  { return r.after }

func (r *recordingPostProcess) PerformBeforeWarpBlend(_ resource.Backend, v PostProcessView) error {
	*r.calls = append(*r.calls, r.name+":before:"+v.ViewportID)
	return nil
}

func (r *recordingPostProcess) PerformAfterWarpBlend(_ resource.Backend, v PostProcessView) error {
	*r.calls = append(*r.calls, r.name+":after:"+v.ViewportID)
	return nil
}

type env struct {
	t       *testing.T
	backend *recording.Backend
	mp      *ManagerProxy
	output  resource.Texture
}

func newEnv(t *testing.T) *env {
	t.Helper()
	b := recording.New()
	e := &env{t: t, backend: b, mp: NewManagerProxy(b)}
	e.output = e.texture("frame/eye0", image.Pt(1920, 1080))
	return e
}

func (e *env) texture(label string, size image.Point) resource.Texture {
	e.t.Helper()
	tex, err := e.backend.CreateTexture2D(resource.Desc{Size: size, Label: label}.Normalized(resource.KindTexture))
	if err != nil {
		e.t.Fatalf("create %s: %v", label, err)
	}
	return tex
}

// snapshot returns a one-context visible snapshot whose frame rect is
// rect, with render target, input and additional textures.
func (e *env) snapshot(id string, h viewport.Handle, rect image.Rectangle, p projection.Policy) *Snapshot {
	e.t.Helper()
	size := rect.Size()
	r := viewport.DefaultRenderSettings()
	r.Rect = rect
	var warp projection.WarpHooks
	if wb, ok := projection.SupportsWarpBlend(p); ok {
		warp = wb.WarpState()
	}
	return &Snapshot{
		ViewportID: id,
		Handle:     h,
		Render:     r,
		Warp:       warp,
		Contexts: []ContextSnapshot{{
			StereoViewIndex:  1,
			FrameRect:        rect,
			RenderTargetRect: image.Rectangle{Max: size},
			NumMips:          1,
			RenderTarget:     e.texture(id+"/rt0", size),
			Input:            e.texture(id+"/input0", size),
			Additional:       e.texture(id+"/additional0", size),
		}},
	}
}

func (e *env) work(frame uint64, snaps ...*Snapshot) *FrameWork {
	fw := &FrameWork{
		Frame:     frame,
		Options:   cluster.DefaultFrameRenderOptions(),
		FrameRect: image.Rect(0, 0, 1920, 1080),
		Outputs:   []OutputSnapshot{{Rect: image.Rect(0, 0, 1920, 1080), Target: e.output}},
	}
	for _, s := range snaps {
		fw.Commands = append(fw.Commands, UpdateViewport{Snapshot: s})
		for _, c := range s.Contexts {
			fw.Plan = append(fw.Plan, PlanView{
				ViewportID:      s.ViewportID,
				Context:         c.Index,
				StereoViewIndex: c.StereoViewIndex,
				ShouldRender:    !c.DisableRender && s.Render.OverrideViewportID == "",
			})
		}
	}
	return fw
}

// log returns the recorded commands after the creates as strings.
func (e *env) log() []string {
	var out []string
	for _, c := range e.backend.Commands() {
		if c.Op != recording.OpCreate {
			out = append(out, c.String())
		}
	}
	return out
}

func indexOf(t *testing.T, log []string, prefix string) int {
	t.Helper()
	for i, s := range log {
		if strings.HasPrefix(s, prefix) {
			return i
		}
	}
	t.Fatalf("%q not in log:\n%s", prefix, strings.Join(log, "\n"))
	return -1
}

func resolveCopies(log []string) []string {
	var out []string
	for _, s := range log {
		if strings.HasPrefix(s, "Copy ") && strings.Contains(s, "-> frame/eye0") {
			out = append(out, s)
		}
	}
	return out
}
