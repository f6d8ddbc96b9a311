// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package proxy

import (
	"image"

	"github.com/gogpu/cluster/resource"
)

// PostProcessView is the view a post-process runs on.
type PostProcessView struct {
	ViewportID      string
	Context         int
	StereoViewIndex int

	// Texture and Rect are the image the pass may read and write: the
	// viewport input before warp/blend, the frame output after it.
	Texture resource.Texture
	Rect    image.Rectangle
}

// PostProcess is an external per-view pass run at the warp/blend
// boundaries. Registrants run in registration order.
type PostProcess interface {
	// BeforeWarpBlend reports whether PerformBeforeWarpBlend should run.
	BeforeWarpBlend() bool

	// AfterWarpBlend reports whether PerformAfterWarpBlend should run.
	AfterWarpBlend() bool

	PerformBeforeWarpBlend(b resource.Backend, v PostProcessView) error
	PerformAfterWarpBlend(b resource.Backend, v PostProcessView) error
}

type registrant struct {
	name string
	pp   PostProcess
}
