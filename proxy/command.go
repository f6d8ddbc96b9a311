// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package proxy

import (
	"image"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/viewport"
)

// Command is one instruction for the GPU-submission side.
type Command interface {
	command()
}

// UpdateViewport creates or replaces the proxy of a viewport.
type UpdateViewport struct {
	Snapshot *Snapshot
}

// DeleteViewport removes a proxy. It only applies while the proxy still
// mirrors the identity in Handle, so repeated or stale deletes are no-ops.
type DeleteViewport struct {
	ViewportID string
	Handle     viewport.Handle
}

// RegisterPostProcess adds a post-process after the existing ones, or
// replaces the one registered under the same name in place.
type RegisterPostProcess struct {
	Name        string
	PostProcess PostProcess
}

// UnregisterPostProcess removes a post-process by name.
type UnregisterPostProcess struct {
	Name string
}

func (UpdateViewport) command()        {}
func (DeleteViewport) command()        {}
func (RegisterPostProcess) command()   {}
func (UnregisterPostProcess) command() {}

// PlanView is one view of the frame plan.
type PlanView struct {
	ViewportID      string
	Context         int
	StereoViewIndex int
	ShouldRender    bool
}

// OutputSnapshot is the frame output of one eye.
type OutputSnapshot struct {
	Eye              int
	Rect             image.Rectangle
	BackbufferOffset image.Point
	Target           resource.Texture
	Remap            resource.Texture
}

// FrameWork is the unit of work of one frame. Commands are applied in
// order before any pass runs.
type FrameWork struct {
	Frame    uint64
	Options  cluster.FrameRenderOptions
	Commands []Command

	// Plan lists the views of the frame in plan order.
	Plan []PlanView

	FrameRect image.Rectangle
	Outputs   []OutputSnapshot

	// Release are textures the pool retired. They are released after the
	// passes of this frame.
	Release []resource.Texture
}
