// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package camera implements the camera-mirroring projection policy used by
// ICVFX camera and chromakey capture viewports. The view follows a tracked
// stage camera and the projection matches its lens.
//
// Parameters:
//
//	camera  id of the stage camera (required)
package camera

import (
	"errors"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/stage"
)

// Type is the registered policy type name.
const Type = "camera"

// ErrMissingCamera is returned when the camera parameter is empty.
var ErrMissingCamera = errors.New("camera: missing camera parameter")

func init() {
	projection.Register(Type, func(id string, params map[string]string) (projection.Policy, error) {
		return New(id, params)
	})
}

// Policy mirrors one stage camera.
type Policy struct {
	projection.Base

	cameraID string
	cam      stage.Camera
	bound    bool
}

// New returns a policy for viewport id.
func New(id string, params map[string]string) (*Policy, error) {
	p := &Policy{Base: projection.NewBase(Type, id, params)}
	p.cameraID = p.Param("camera", "")
	if p.cameraID == "" {
		return nil, ErrMissingCamera
	}
	return p, nil
}

// ForCamera returns a policy for viewport id mirroring cameraID.
func ForCamera(id, cameraID string) *Policy {
	p, _ := New(id, map[string]string{"camera": cameraID})
	return p
}

// CameraID returns the mirrored camera id.
func (p *Policy) CameraID() string { return p.cameraID }

// HandleStartScene binds the configured camera of s.
func (p *Policy) HandleStartScene(s *stage.Stage) bool {
	cam, ok := s.Camera(p.cameraID)
	if !ok {
		cluster.Logger().Warn("camera: camera not found",
			"viewport", p.ViewportID(), "camera", p.cameraID)
		p.bound = false
		return false
	}
	p.cam = *cam
	p.bound = true
	return true
}

// HandleEndScene unbinds the camera.
func (p *Policy) HandleEndScene() {
	p.bound = false
	p.ResetProjections()
}

// CalculateView places the view at the camera and builds its lens
// projection. Every eye context sees through the same camera.
func (p *Policy) CalculateView(ctx int, view *projection.View) bool {
	p.InvalidateProjection(ctx)
	if !p.bound {
		return false
	}
	view.Location = p.cam.Transform.Location
	view.Rotation = p.cam.Transform.Rotation
	fov := geom.VerticalFOV(p.cam.FieldOfView, p.cam.AspectRatio)
	proj, err := geom.Perspective(fov, p.cam.AspectRatio, view.Near, view.Far)
	if err != nil {
		return false
	}
	p.SetProjection(ctx, proj)
	return true
}
