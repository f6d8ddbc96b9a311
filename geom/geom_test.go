// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import (
	"errors"
	"testing"
)

const eps = 1e-4

func TestRotatorAxes(t *testing.T) {
	tests := []struct {
		name    string
		rot     Rotator
		forward Vec3
		right   Vec3
		up      Vec3
	}{
		{"identity", Rotator{}, V3(1, 0, 0), V3(0, 1, 0), V3(0, 0, 1)},
		{"yaw90", Rotator{Yaw: 90}, V3(0, 1, 0), V3(-1, 0, 0), V3(0, 0, 1)},
		{"pitch90", Rotator{Pitch: 90}, V3(0, 0, 1), V3(0, 1, 0), V3(-1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, r, u := tt.rot.Axes()
			if !f.ApproxEqual(tt.forward, eps) {
				t.Errorf("forward = %+v, want %+v", f, tt.forward)
			}
			if !r.ApproxEqual(tt.right, eps) {
				t.Errorf("right = %+v, want %+v", r, tt.right)
			}
			if !u.ApproxEqual(tt.up, eps) {
				t.Errorf("up = %+v, want %+v", u, tt.up)
			}
		})
	}
}

func TestViewMatrix(t *testing.T) {
	view := ViewMatrix(Transform{Location: V3(5, 0, 0)})

	x, y, z, w := view.Project(V3(15, 2, 3))
	if w != 1 {
		t.Fatalf("w = %v, want 1", w)
	}
	got := V3(x, y, z)
	want := V3(2, 3, -10)
	if !got.ApproxEqual(want, eps) {
		t.Errorf("view-space point = %+v, want %+v", got, want)
	}
}

func TestMulIdentity(t *testing.T) {
	m, err := Perspective(60, 1.5, 1, 1000)
	if err != nil {
		t.Fatalf("Perspective: %v", err)
	}
	if got := m.Mul(Identity()); got != m {
		t.Errorf("m * I = %v, want %v", got, m)
	}
	if got := Identity().Mul(m); got != m {
		t.Errorf("I * m = %v, want %v", got, m)
	}
}

func TestPerspectiveDegenerate(t *testing.T) {
	tests := []struct {
		name                    string
		fov, aspect, near, far float32
	}{
		{"zero fov", 0, 1, 1, 10},
		{"straight fov", 180, 1, 1, 10},
		{"zero aspect", 60, 0, 1, 10},
		{"zero near", 60, 1, 0, 10},
		{"far before near", 60, 1, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Perspective(tt.fov, tt.aspect, tt.near, tt.far)
			if !errors.Is(err, ErrDegenerateProjection) {
				t.Errorf("err = %v, want ErrDegenerateProjection", err)
			}
		})
	}
}

func TestOffAxisDegenerate(t *testing.T) {
	if _, err := OffAxis(1, -1, -1, 1, 1, 10); !errors.Is(err, ErrDegenerateProjection) {
		t.Errorf("err = %v, want ErrDegenerateProjection", err)
	}
}

func cameraFrustum(t *testing.T, fov float32) Frustum {
	t.Helper()
	proj, err := Perspective(fov, 1, 1, 1000)
	if err != nil {
		t.Fatalf("Perspective: %v", err)
	}
	return FrustumFromMatrix(proj.Mul(ViewMatrix(Transform{})))
}

func TestFrustumContainsPoint(t *testing.T) {
	f := cameraFrustum(t, 90)
	tests := []struct {
		name string
		p    Vec3
		want bool
	}{
		{"ahead", V3(10, 0, 0), true},
		{"behind", V3(-10, 0, 0), false},
		{"inside edge", V3(10, 9, 0), true},
		{"outside right", V3(10, 11, 0), false},
		{"above", V3(10, 0, 11), false},
		{"beyond far", V3(2000, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ContainsPoint(tt.p); got != tt.want {
				t.Errorf("ContainsPoint(%+v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestFrustumIntersectsAABB(t *testing.T) {
	f := cameraFrustum(t, 60)
	tests := []struct {
		name string
		box  AABB
		want bool
	}{
		{"wall ahead", BoundsOf(V3(50, -100, -50), V3(51, 100, 50)), true},
		{"wall behind", BoundsOf(V3(-51, -100, -50), V3(-50, 100, 50)), false},
		{"far to the side", BoundsOf(V3(10, 500, -5), V3(20, 510, 5)), false},
		{"enclosing camera", BoundsOf(V3(-5, -5, -5), V3(5, 5, 5)), true},
		{"empty", BoundsOf(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.IntersectsAABB(tt.box); got != tt.want {
				t.Errorf("IntersectsAABB(%+v) = %v, want %v", tt.box, got, tt.want)
			}
		})
	}
}

func TestTransformPoint(t *testing.T) {
	tr := Transform{Location: V3(1, 2, 3), Rotation: Rotator{Yaw: 90}}
	got := tr.TransformPoint(V3(1, 0, 0))
	if want := V3(1, 3, 3); !got.ApproxEqual(want, eps) {
		t.Errorf("TransformPoint = %+v, want %+v", got, want)
	}
}

func TestVerticalFOV(t *testing.T) {
	if got := VerticalFOV(90, 1); math32Abs(got-90) > 1e-3 {
		t.Errorf("VerticalFOV(90, 1) = %v, want 90", got)
	}
	// tan(45°)/2 = 0.5, atan(0.5) = 26.565°.
	if got := VerticalFOV(90, 2); math32Abs(got-53.1301) > 1e-2 {
		t.Errorf("VerticalFOV(90, 2) = %v, want 53.13", got)
	}
}

func math32Abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
