// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mesh implements the warp/blend projection policy for curved or
// multi-panel surfaces.
//
// The surface is the union of one or more stage screens. The view looks at
// the surface center with a symmetric frustum; the warp/blend pass maps the
// rendered image onto the output through the warp shader, which is compiled
// from WGSL with naga when the policy binds to a scene. A camera is visible
// when its frustum intersects the surface bounds.
//
// Parameters:
//
//	screens  comma separated stage screen ids (required)
//	fov      horizontal field of view in degrees (default 90)
//	blend    edge-blend factor written by the warp shader (default 1)
package mesh

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/gogpu/naga"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/stage"
)

// Type is the registered policy type name.
const Type = "mesh"

//go:embed shaders/warp.wgsl
var warpShaderSource string

// Policy errors.
var (
	// ErrMissingScreens is returned when the screens parameter is empty.
	ErrMissingScreens = errors.New("mesh: missing screens parameter")

	// ErrNotBound is returned by the warp hooks before a successful bind.
	ErrNotBound = errors.New("mesh: policy not bound to a scene")
)

// shaders caches compiled SPIR-V by WGSL source. Policies rebind on every
// configuration update; the words are shared and must not be modified.
var shaders, _ = lru.New[string, []uint32](16)

func init() {
	projection.Register(Type, func(id string, params map[string]string) (projection.Policy, error) {
		return New(id, params)
	})
}

// Policy is a warp/blend projection over a set of screens.
type Policy struct {
	projection.Base

	screenIDs []string
	fov       float32
	blend     float32
	source    string

	bounds geom.AABB
	spirv  []uint32
	bound  bool
}

var (
	_ projection.WarpBlender  = (*Policy)(nil)
	_ projection.ICVFXCapable = (*Policy)(nil)
)

// New returns a policy for viewport id.
func New(id string, params map[string]string) (*Policy, error) {
	p := &Policy{Base: projection.NewBase(Type, id, params), source: warpShaderSource}
	for _, s := range strings.Split(p.Param("screens", ""), ",") {
		if s = strings.TrimSpace(s); s != "" {
			p.screenIDs = append(p.screenIDs, s)
		}
	}
	if len(p.screenIDs) == 0 {
		return nil, ErrMissingScreens
	}
	var err error
	if p.fov, err = p.FloatParam("fov", 90); err != nil {
		return nil, err
	}
	if p.fov <= 0 || p.fov >= 180 {
		return nil, fmt.Errorf("mesh: fov %v out of range", p.fov)
	}
	if p.blend, err = p.FloatParam("blend", 1); err != nil {
		return nil, err
	}
	return p, nil
}

// SetShaderSource replaces the WGSL warp shader used at the next bind.
func (p *Policy) SetShaderSource(wgsl string) { p.source = wgsl }

// SPIRV returns the compiled warp shader, or nil when unbound. The slice
// is shared and read-only.
func (p *Policy) SPIRV() []uint32 { return p.spirv }

// Bounds returns the world-space bounds of the bound surface.
func (p *Policy) Bounds() geom.AABB { return p.bounds }

// HandleStartScene collects the surface bounds and compiles the warp shader.
func (p *Policy) HandleStartScene(s *stage.Stage) bool {
	p.bound = false
	bounds := geom.BoundsOf()
	for _, id := range p.screenIDs {
		sc, ok := s.Screen(id)
		if !ok {
			cluster.Logger().Warn("mesh: screen not found", "viewport", p.ViewportID(), "screen", id)
			return false
		}
		for _, c := range sc.Corners() {
			if bounds.Empty() {
				bounds = geom.BoundsOf(c)
			} else {
				bounds = bounds.Extend(c)
			}
		}
	}

	spirv, err := compileShader(p.source)
	if err != nil {
		cluster.Logger().Warn("mesh: warp shader rejected", "viewport", p.ViewportID(), "err", err)
		return false
	}
	p.bounds = bounds
	p.spirv = spirv
	p.bound = true
	return true
}

// HandleEndScene drops the compiled shader and bounds.
func (p *Policy) HandleEndScene() {
	p.bound = false
	p.spirv = nil
	p.ResetProjections()
}

// CalculateView aims the view at the surface center.
func (p *Policy) CalculateView(ctx int, view *projection.View) bool {
	p.InvalidateProjection(ctx)
	if !p.bound {
		return false
	}
	center := p.bounds.Min.Add(p.bounds.Max).Scale(0.5)
	dir := center.Sub(view.Location)
	if dir.Len() == 0 {
		return false
	}
	view.Rotation = geom.Rotator{
		Yaw:   math32.Atan2(dir.Y, dir.X) * (180 / math32.Pi),
		Pitch: math32.Atan2(dir.Z, math32.Hypot(dir.X, dir.Y)) * (180 / math32.Pi),
	}
	aspect := view.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	proj, err := geom.Perspective(geom.VerticalFOV(p.fov, aspect), aspect, view.Near, view.Far)
	if err != nil {
		return false
	}
	p.SetProjection(ctx, proj)
	return true
}

// IsCameraProjectionVisible tests the camera frustum against the surface
// bounds.
func (p *Policy) IsCameraProjectionVisible(view projection.View, proj geom.Mat4) bool {
	if !p.bound {
		return false
	}
	return geom.FrustumFromMatrix(proj.Mul(view.Matrix())).IntersectsAABB(p.bounds)
}

// WarpState captures the bound shader and blend factor. The SPIR-V slice is
// shared and never written after compilation.
func (p *Policy) WarpState() projection.WarpHooks {
	w := warpState{viewportID: p.ViewportID(), blend: p.blend}
	if p.bound {
		w.spirv = p.spirv
	}
	return w
}

// BeginWarpBlend checks that the warp shader is ready.
func (p *Policy) BeginWarpBlend(pass *projection.WarpPass) error {
	return p.WarpState().BeginWarpBlend(pass)
}

// ApplyWarpBlend maps one context's input onto its warp output.
func (p *Policy) ApplyWarpBlend(pass *projection.WarpPass, wc projection.WarpContext) error {
	return p.WarpState().ApplyWarpBlend(pass, wc)
}

// EndWarpBlend finishes the pass.
func (p *Policy) EndWarpBlend(pass *projection.WarpPass) error {
	return p.WarpState().EndWarpBlend(pass)
}

// warpState is the warp/blend state of a policy at one point in time.
type warpState struct {
	viewportID string
	spirv      []uint32
	blend      float32
}

func (w warpState) BeginWarpBlend(*projection.WarpPass) error {
	if w.spirv == nil {
		return fmt.Errorf("%w: %s", ErrNotBound, w.viewportID)
	}
	return nil
}

func (w warpState) ApplyWarpBlend(pass *projection.WarpPass, wc projection.WarpContext) error {
	if wc.Input == nil || wc.Output == nil {
		return nil
	}
	return pass.Backend.CopyOrResample(wc.Input, wc.InputRect, wc.Output, wc.OutputRect)
}

func (w warpState) EndWarpBlend(pass *projection.WarpPass) error {
	cluster.Logger().Debug("mesh: warp done", "viewport", pass.ViewportID,
		"contexts", len(pass.Contexts), "blend", w.blend)
	return nil
}

// compileShader compiles WGSL source to SPIR-V words.
func compileShader(wgsl string) ([]uint32, error) {
	if words, ok := shaders.Get(wgsl); ok {
		return words, nil
	}
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("mesh: compile warp shader: %w", err)
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	shaders.Add(wgsl, words)
	return words, nil
}
