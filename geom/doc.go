// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package geom provides the float32 3D math used to compute views,
// projections and camera frustum visibility.
//
// # Conventions
//
// World space uses X forward, Y right and Z up, the convention of most
// stage tracking systems. Rotations are
// expressed in degrees as a [Rotator] (pitch around Y, yaw around Z, roll
// around X). View space follows the WebGPU/OpenGL convention of the camera
// looking down -Z with +Y up, so projection matrices built here can be used
// directly by a GPU backend.
//
// Matrices are column-major [Mat4] values: element (row r, column c) lives at
// index c*4+r.
package geom
