// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package viewport

import (
	"image"
	"math"

	"github.com/gogpu/cluster"
)

// ValidRect clamps r so that both sides lie in
// [cluster.MinTextureSize, maxSize]. Oversized rectangles are scaled down
// and undersized ones scaled up uniformly, so the aspect ratio survives up
// to rounding. Only rectangles more elongated than maxSize:MinTextureSize
// lose their aspect ratio. The clamped rectangle keeps r.Min.
//
// A rectangle with no area is replaced by the minimum square. The second
// result reports whether r was changed.
func ValidRect(r image.Rectangle, maxSize int) (image.Rectangle, bool) {
	if maxSize < cluster.MinTextureSize {
		maxSize = cluster.DefaultMaxTextureSize
	}
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		side := image.Pt(cluster.MinTextureSize, cluster.MinTextureSize)
		return image.Rectangle{Min: r.Min, Max: r.Min.Add(side)}, true
	}

	fw, fh := float64(w), float64(h)
	if big := max(fw, fh); big > float64(maxSize) {
		s := float64(maxSize) / big
		fw, fh = fw*s, fh*s
	}
	if small := min(fw, fh); small < cluster.MinTextureSize {
		s := cluster.MinTextureSize / small
		fw, fh = fw*s, fh*s
	}

	nw := clampSide(int(math.Round(fw)), maxSize)
	nh := clampSide(int(math.Round(fh)), maxSize)
	if nw == w && nh == h {
		return r, false
	}
	return image.Rectangle{Min: r.Min, Max: r.Min.Add(image.Pt(nw, nh))}, true
}

func clampSide(v, maxSize int) int {
	return min(max(v, cluster.MinTextureSize), maxSize)
}

// scaleSize multiplies both sides of s by ratio, rounding to the nearest
// pixel. Non-positive ratios yield a zero size.
func scaleSize(s image.Point, ratio float64) image.Point {
	if ratio <= 0 || math.IsNaN(ratio) {
		return image.Point{}
	}
	return image.Pt(
		int(math.Round(float64(s.X)*ratio)),
		int(math.Round(float64(s.Y)*ratio)),
	)
}
