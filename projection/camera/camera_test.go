// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package camera

import (
	"errors"
	"testing"

	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/stage"
)

func testStage() *stage.Stage {
	return &stage.Stage{Cameras: []stage.Camera{{
		ID:          "cam",
		Enable:      true,
		Transform:   geom.Transform{Location: geom.V3(1, 2, 3), Rotation: geom.Rotator{Yaw: 90}},
		FieldOfView: 90,
		AspectRatio: 1,
	}}}
}

func TestNew(t *testing.T) {
	if _, err := New("vp", nil); !errors.Is(err, ErrMissingCamera) {
		t.Errorf("err = %v, want ErrMissingCamera", err)
	}
	p := ForCamera("vp", "cam")
	if p.CameraID() != "cam" || p.Type() != Type {
		t.Errorf("ForCamera = %s/%s", p.Type(), p.CameraID())
	}
	if _, ok := projection.SupportsICVFX(p); ok {
		t.Error("camera policy must not host ICVFX")
	}
}

func TestCalculateViewFollowsCamera(t *testing.T) {
	p := ForCamera("vp", "cam")
	if !p.HandleStartScene(testStage()) {
		t.Fatal("HandleStartScene failed")
	}
	v := projection.View{Near: 1, Far: 1000}
	if !p.CalculateView(0, &v) {
		t.Fatal("CalculateView failed")
	}
	if v.Location != geom.V3(1, 2, 3) || v.Rotation.Yaw != 90 {
		t.Errorf("view = %+v", v)
	}
	proj, ok := p.ProjectionMatrix(0)
	if !ok {
		t.Fatal("no projection")
	}
	want, _ := geom.Perspective(90, 1, 1, 1000)
	for i := range proj {
		if math32Abs(proj[i]-want[i]) > 1e-4 {
			t.Fatalf("projection = %v, want %v", proj, want)
		}
	}
}

func TestMissingCamera(t *testing.T) {
	p := ForCamera("vp", "ghost")
	if p.HandleStartScene(testStage()) {
		t.Fatal("bound to a missing camera")
	}
	v := projection.View{Near: 1, Far: 1000}
	if p.CalculateView(0, &v) {
		t.Error("unbound policy calculated a view")
	}
}

func TestDegenerateLens(t *testing.T) {
	s := testStage()
	s.Cameras[0].AspectRatio = 0
	p := ForCamera("vp", "cam")
	p.HandleStartScene(s)
	v := projection.View{Near: 1, Far: 1000}
	if p.CalculateView(0, &v) {
		t.Error("zero aspect produced a projection")
	}
}

func math32Abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
