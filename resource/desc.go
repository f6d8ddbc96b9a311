// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
)

// Kind selects one of the independently pooled resource families.
type Kind int

const (
	// KindRenderTarget is a texture the scene renderer draws into.
	KindRenderTarget Kind = iota

	// KindTexture is a general 2D texture: input, resolve, mips, frame outputs.
	KindTexture

	kindCount
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRenderTarget:
		return "render_target"
	case KindTexture:
		return "texture"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) valid() bool { return k >= 0 && k < kindCount }

// defaultUsage returns the usage flags of a kind when a Desc leaves them empty.
func (k Kind) defaultUsage() gputypes.TextureUsage {
	usage := gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if k == KindRenderTarget {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	return usage
}

// Desc describes a 2D texture.
type Desc struct {
	// Size in pixels. Both sides must be positive.
	Size image.Point

	// Format is the pixel format. Undefined means RGBA8Unorm.
	Format gputypes.TextureFormat

	// Mips is the mip level count. Values below 1 mean 1.
	Mips int

	// Usage flags. Zero selects the defaults of the pool kind.
	Usage gputypes.TextureUsage

	// GPU is the device index the texture lives on.
	GPU int

	// Label names the texture in backend diagnostics. It does not take
	// part in reuse matching.
	Label string
}

// Normalized returns d with defaults applied for kind k.
func (d Desc) Normalized(k Kind) Desc {
	if d.Format == gputypes.TextureFormatUndefined {
		d.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if d.Mips < 1 {
		d.Mips = 1
	}
	if d.Usage == 0 {
		d.Usage = k.defaultUsage()
	}
	return d
}

// Bounds returns the full texture rectangle.
func (d Desc) Bounds() image.Rectangle {
	return image.Rectangle{Max: d.Size}
}

// Bytes estimates the memory footprint of d including its mip chain.
func (d Desc) Bytes() uint64 {
	if d.Size.X <= 0 || d.Size.Y <= 0 {
		return 0
	}
	bpp := uint64(BytesPerPixel(d.Format))
	var total uint64
	w, h := d.Size.X, d.Size.Y
	for level := 0; level < max(d.Mips, 1); level++ {
		total += uint64(w) * uint64(h) * bpp
		w, h = max(w/2, 1), max(h/2, 1)
	}
	return total
}

func (d Desc) validate() error {
	if d.Size.X <= 0 || d.Size.Y <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidDesc, d.Size.X, d.Size.Y)
	}
	if d.GPU < 0 {
		return fmt.Errorf("%w: gpu index %d", ErrInvalidDesc, d.GPU)
	}
	return nil
}

// matchKey is the part of a Desc that decides reuse.
type matchKey struct {
	size   image.Point
	format gputypes.TextureFormat
	mips   int
	usage  gputypes.TextureUsage
	gpu    int
}

func (d Desc) key() matchKey {
	return matchKey{size: d.Size, format: d.Format, mips: d.Mips, usage: d.Usage, gpu: d.GPU}
}

// BytesPerPixel returns the texel size of the color formats used by the
// viewport pipeline. Unknown formats count as four bytes.
func BytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}

// MipCount returns the length of a full mip chain for a texture of size s.
func MipCount(s image.Point) int {
	n := 1
	for side := max(s.X, s.Y); side > 1; side /= 2 {
		n++
	}
	return n
}
