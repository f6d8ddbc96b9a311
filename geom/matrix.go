// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import (
	"errors"

	"github.com/chewxy/math32"
)

// ErrDegenerateProjection is returned when projection parameters describe
// an empty or inverted frustum.
var ErrDegenerateProjection = errors.New("geom: degenerate projection")

// Mat4 is a column-major 4x4 matrix.
type Mat4 [16]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row r, column c.
func (m Mat4) At(r, c int) float32 { return m[c*4+r] }

// Row returns row r as four components.
func (m Mat4) Row(r int) [4]float32 {
	return [4]float32{m[r], m[4+r], m[8+r], m[12+r]}
}

// Mul returns m * o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += m[k*4+r] * o[c*4+k]
			}
			out[c*4+r] = s
		}
	}
	return out
}

// Project transforms the point p by m and returns the clip-space result.
func (m Mat4) Project(p Vec3) (x, y, z, w float32) {
	x = m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12]
	y = m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13]
	z = m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14]
	w = m[3]*p.X + m[7]*p.Y + m[11]*p.Z + m[15]
	return x, y, z, w
}

// ViewMatrix returns the world-to-view matrix of a viewer at t.
// The viewer looks down -Z in view space with +Y up.
func ViewMatrix(t Transform) Mat4 {
	f, r, u := t.Rotation.Axes()
	loc := t.Location
	return Mat4{
		r.X, u.X, -f.X, 0,
		r.Y, u.Y, -f.Y, 0,
		r.Z, u.Z, -f.Z, 0,
		-r.Dot(loc), -u.Dot(loc), f.Dot(loc), 1,
	}
}

// Perspective returns a symmetric perspective projection with depth mapped
// to [0, 1]. fovY is the vertical field of view in degrees.
func Perspective(fovY, aspect, near, far float32) (Mat4, error) {
	if fovY <= 0 || fovY >= 180 || aspect <= 0 || near <= 0 || far <= near {
		return Mat4{}, ErrDegenerateProjection
	}
	f := 1 / math32.Tan(Radians(fovY)/2)
	return Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, far / (near - far), -1,
		0, 0, near * far / (near - far), 0,
	}, nil
}

// OffAxis returns an asymmetric perspective projection whose near plane
// spans [left, right] x [bottom, top] in view space, depth mapped to [0, 1].
func OffAxis(left, right, bottom, top, near, far float32) (Mat4, error) {
	if right <= left || top <= bottom || near <= 0 || far <= near {
		return Mat4{}, ErrDegenerateProjection
	}
	return Mat4{
		2 * near / (right - left), 0, 0, 0,
		0, 2 * near / (top - bottom), 0, 0,
		(right + left) / (right - left), (top + bottom) / (top - bottom), far / (near - far), -1,
		0, 0, near * far / (near - far), 0,
	}, nil
}

// Plane is the half-space a*x + b*y + c*z + d >= 0.
type Plane struct {
	N Vec3
	D float32
}

// Distance returns the signed distance of p from the plane, scaled by |N|.
func (p Plane) Distance(v Vec3) float32 { return p.N.Dot(v) + p.D }

// Frustum is the six inward-facing planes of a view-projection.
type Frustum [6]Plane

// FrustumFromMatrix extracts the clip planes of viewProj using the
// Gribb-Hartmann method for a [0, 1] depth range.
func FrustumFromMatrix(viewProj Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)
	plane := func(a, b [4]float32, sign float32) Plane {
		return Plane{
			N: Vec3{a[0] + sign*b[0], a[1] + sign*b[1], a[2] + sign*b[2]},
			D: a[3] + sign*b[3],
		}
	}
	near := Plane{N: Vec3{r2[0], r2[1], r2[2]}, D: r2[3]}
	return Frustum{
		plane(r3, r0, 1),  // left
		plane(r3, r0, -1), // right
		plane(r3, r1, 1),  // bottom
		plane(r3, r1, -1), // top
		near,
		plane(r3, r2, -1), // far
	}
}

// ContainsPoint reports whether p lies inside every plane of f.
func (f Frustum) ContainsPoint(p Vec3) bool {
	for _, pl := range f {
		if pl.Distance(p) < 0 {
			return false
		}
	}
	return true
}

// IntersectsAABB reports whether any part of b may lie inside f.
// The test is conservative: it can report true for boxes just outside a
// frustum corner, never false for a box that intersects it.
func (f Frustum) IntersectsAABB(b AABB) bool {
	if b.Empty() {
		return false
	}
	for _, pl := range f {
		p := b.Min
		if pl.N.X >= 0 {
			p.X = b.Max.X
		}
		if pl.N.Y >= 0 {
			p.Y = b.Max.Y
		}
		if pl.N.Z >= 0 {
			p.Z = b.Max.Z
		}
		if pl.Distance(p) < 0 {
			return false
		}
	}
	return true
}

// VerticalFOV converts a horizontal field of view in degrees to the
// vertical field of view of a viewport with the given aspect ratio.
func VerticalFOV(horizontal, aspect float32) float32 {
	if aspect <= 0 {
		return horizontal
	}
	half := math32.Tan(Radians(horizontal)/2) / aspect
	return 2 * math32.Atan(half) * (180 / math32.Pi)
}
