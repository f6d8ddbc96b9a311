// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package simple implements the planar screen projection policy.
//
// A simple policy projects the viewer's eye onto one flat stage screen with
// an off-axis frustum. It can host ICVFX, and since a plane shows every
// camera in front of it, camera visibility is always true.
//
// Parameters:
//
//	screen  id of the stage screen (required)
package simple

import (
	"errors"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/stage"
)

// Type is the registered policy type name.
const Type = "simple"

// ErrMissingScreen is returned when the screen parameter is empty.
var ErrMissingScreen = errors.New("simple: missing screen parameter")

func init() {
	projection.Register(Type, func(id string, params map[string]string) (projection.Policy, error) {
		return New(id, params)
	})
}

// Policy is a planar off-axis projection.
type Policy struct {
	projection.Base

	screenID string
	screen   stage.Screen
	bound    bool
}

var _ projection.ICVFXCapable = (*Policy)(nil)

// New returns a policy for viewport id.
func New(id string, params map[string]string) (*Policy, error) {
	p := &Policy{Base: projection.NewBase(Type, id, params)}
	p.screenID = p.Param("screen", "")
	if p.screenID == "" {
		return nil, ErrMissingScreen
	}
	return p, nil
}

// HandleStartScene binds the configured screen of s.
func (p *Policy) HandleStartScene(s *stage.Stage) bool {
	sc, ok := s.Screen(p.screenID)
	if !ok || sc.Width <= 0 || sc.Height <= 0 {
		cluster.Logger().Warn("simple: screen not usable",
			"viewport", p.ViewportID(), "screen", p.screenID)
		p.bound = false
		return false
	}
	p.screen = *sc
	p.bound = true
	return true
}

// HandleEndScene unbinds the screen.
func (p *Policy) HandleEndScene() {
	p.bound = false
	p.ResetProjections()
}

// CalculateView orients the view to the screen and builds the off-axis
// frustum through its edges. The eye must be in front of the screen.
func (p *Policy) CalculateView(ctx int, view *projection.View) bool {
	p.InvalidateProjection(ctx)
	if !p.bound {
		return false
	}
	f, r, u := p.screen.Transform.Rotation.Axes()
	toEye := view.Location.Sub(p.screen.Transform.Location)
	dist := -toEye.Dot(f)
	if dist <= 0 {
		return false
	}

	scale := view.Near / dist
	ex, ey := toEye.Dot(r), toEye.Dot(u)
	hw, hh := p.screen.Width/2, p.screen.Height/2
	proj, err := geom.OffAxis(
		(-hw-ex)*scale, (hw-ex)*scale,
		(-hh-ey)*scale, (hh-ey)*scale,
		view.Near, view.Far)
	if err != nil {
		return false
	}
	view.Rotation = p.screen.Transform.Rotation
	p.SetProjection(ctx, proj)
	return true
}

// IsCameraProjectionVisible always returns true for a plane.
func (p *Policy) IsCameraProjectionVisible(projection.View, geom.Mat4) bool {
	return true
}
