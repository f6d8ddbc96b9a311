// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import (
	"math"

	"github.com/chewxy/math32"
)

// Vec3 is a float32 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

// V3 is shorthand for Vec3{x, y, z}.
func V3(x, y, z float32) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

// Len returns the length of v.
func (v Vec3) Len() float32 { return math32.Sqrt(v.Dot(v)) }

// Normalize returns v scaled to unit length. The zero vector is returned unchanged.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Min returns the component-wise minimum of v and o.
func (v Vec3) Min(o Vec3) Vec3 {
	return Vec3{math32.Min(v.X, o.X), math32.Min(v.Y, o.Y), math32.Min(v.Z, o.Z)}
}

// Max returns the component-wise maximum of v and o.
func (v Vec3) Max(o Vec3) Vec3 {
	return Vec3{math32.Max(v.X, o.X), math32.Max(v.Y, o.Y), math32.Max(v.Z, o.Z)}
}

// ApproxEqual reports whether every component of v and o differs by at most eps.
func (v Vec3) ApproxEqual(o Vec3, eps float32) bool {
	return math32.Abs(v.X-o.X) <= eps && math32.Abs(v.Y-o.Y) <= eps && math32.Abs(v.Z-o.Z) <= eps
}

// Radians converts degrees to radians.
func Radians(deg float32) float32 { return deg * (math.Pi / 180) }

// Rotator is an orientation in degrees.
type Rotator struct {
	Pitch float32 // around Y, positive looks up
	Yaw   float32 // around Z, positive turns right
	Roll  float32 // around the forward axis
}

// Axes returns the forward, right and up unit vectors of r.
func (r Rotator) Axes() (forward, right, up Vec3) {
	sp, cp := math32.Sin(Radians(r.Pitch)), math32.Cos(Radians(r.Pitch))
	sy, cy := math32.Sin(Radians(r.Yaw)), math32.Cos(Radians(r.Yaw))
	sr, cr := math32.Sin(Radians(r.Roll)), math32.Cos(Radians(r.Roll))

	forward = Vec3{cp * cy, cp * sy, sp}
	right = Vec3{sr*sp*cy - cr*sy, sr*sp*sy + cr*cy, -sr * cp}
	up = Vec3{-(cr*sp*cy + sr*sy), cy*sr - cr*sp*sy, cr * cp}
	return forward, right, up
}

// Transform is a rigid placement in world space.
type Transform struct {
	Location Vec3
	Rotation Rotator
}

// Forward returns the forward axis of t.
func (t Transform) Forward() Vec3 {
	f, _, _ := t.Rotation.Axes()
	return f
}

// Right returns the right axis of t.
func (t Transform) Right() Vec3 {
	_, r, _ := t.Rotation.Axes()
	return r
}

// TransformPoint maps a point from t's local space into world space.
func (t Transform) TransformPoint(p Vec3) Vec3 {
	f, r, u := t.Rotation.Axes()
	return t.Location.Add(f.Scale(p.X)).Add(r.Scale(p.Y)).Add(u.Scale(p.Z))
}

// AABB is an axis-aligned bounding box in world space.
type AABB struct {
	Min, Max Vec3
}

// Empty reports whether b has no volume on some axis.
func (b AABB) Empty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}

// Extend returns the smallest box containing b and p.
func (b AABB) Extend(p Vec3) AABB {
	return AABB{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// BoundsOf returns the box enclosing pts. The result is Empty when pts is empty.
func BoundsOf(pts ...Vec3) AABB {
	if len(pts) == 0 {
		return AABB{Min: V3(1, 1, 1), Max: V3(-1, -1, -1)}
	}
	b := AABB{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		b = b.Extend(p)
	}
	return b
}
