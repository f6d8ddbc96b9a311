// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"image"

	"golang.org/x/image/draw"
)

// copyPitchAlignment is the BytesPerRow alignment of texture/buffer copies.
const copyPitchAlignment = 256

// texels is a tightly packed block of pixels read from or written to a
// texture.
type texels struct {
	w, h, bpp int
	data      []byte
}

func newTexels(w, h, bpp int) texels {
	return texels{w: w, h: h, bpp: bpp, data: make([]byte, w*h*bpp)}
}

func (p texels) stride() int { return p.w * p.bpp }

// rgba views four-byte texels as an image. Channel order does not matter
// for filtering, so BGRA textures use the same path.
func (p texels) rgba() *image.RGBA {
	return &image.RGBA{Pix: p.data, Stride: p.stride(), Rect: image.Rect(0, 0, p.w, p.h)}
}

// resample scales p to w x h. Eight-bit four-channel formats are filtered
// bilinearly; other formats use nearest-neighbour selection so float
// texels are never reinterpreted.
func resample(p texels, w, h int, kernel draw.Interpolator) texels {
	if p.w == w && p.h == h {
		return p
	}
	out := newTexels(w, h, p.bpp)
	if p.bpp == 4 {
		dst := out.rgba()
		src := p.rgba()
		kernel.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		return out
	}
	for y := 0; y < h; y++ {
		sy := y * p.h / h
		for x := 0; x < w; x++ {
			sx := x * p.w / w
			so := (sy*p.w + sx) * p.bpp
			do := (y*w + x) * p.bpp
			copy(out.data[do:do+p.bpp], p.data[so:so+p.bpp])
		}
	}
	return out
}

// halve returns the next mip level of p.
func halve(p texels) texels {
	return resample(p, max(p.w/2, 1), max(p.h/2, 1), draw.BiLinear)
}

// alignedRowBytes returns the padded row pitch for a copy of w texels.
func alignedRowBytes(w, bpp int) int {
	row := w * bpp
	return (row + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

// unpad strips per-row padding from an aligned readback.
func unpad(raw []byte, w, h, bpp int) texels {
	out := newTexels(w, h, bpp)
	aligned := alignedRowBytes(w, bpp)
	row := w * bpp
	if aligned == row {
		copy(out.data, raw)
		return out
	}
	for y := 0; y < h; y++ {
		copy(out.data[y*row:(y+1)*row], raw[y*aligned:y*aligned+row])
	}
	return out
}
