// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/cluster/resource"
)

// Texture is a hal texture owned by a Backend.
//
// The default view covers every mip level and is created on first use.
type Texture struct {
	mu sync.RWMutex

	desc   resource.Desc
	device hal.Device
	raw    hal.Texture

	viewOnce sync.Once
	view     hal.TextureView
	viewErr  error

	// mirrors holds copies of the texture on other devices, keyed by
	// device index, created by TransferAcrossDevice.
	mirrors map[int]*Texture

	destroyed bool
}

var _ resource.Texture = (*Texture)(nil)

// Desc returns the descriptor the texture was created with.
func (t *Texture) Desc() resource.Desc { return t.desc }

// Raw returns the hal texture, or nil once destroyed.
func (t *Texture) Raw() hal.Texture {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.destroyed {
		return nil
	}
	return t.raw
}

// IsDestroyed reports whether the texture was released.
func (t *Texture) IsDestroyed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.destroyed
}

// DefaultView returns the view over all mip levels, creating it once.
func (t *Texture) DefaultView() (hal.TextureView, error) {
	if t.IsDestroyed() {
		return nil, ErrTextureDestroyed
	}
	t.viewOnce.Do(func() {
		t.view, t.viewErr = t.device.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
			Label:         t.desc.Label + "_view",
			Format:        t.desc.Format,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectAll,
			MipLevelCount: uint32(t.desc.Mips), //nolint:gosec // G115: mip count bounded by MipCount
		})
		if t.viewErr != nil {
			t.viewErr = fmt.Errorf("native: create view %s: %w", t.desc.Label, t.viewErr)
		}
	})
	return t.view, t.viewErr
}

// Mirror returns the copy of t on device gpu made by TransferAcrossDevice.
func (t *Texture) Mirror(gpu int) (*Texture, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.mirrors[gpu]
	return m, ok
}

// destroy releases the view, the texture and every mirror. It reports
// whether anything was released.
func (t *Texture) destroy() bool {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return false
	}
	t.destroyed = true
	mirrors := t.mirrors
	t.mirrors = nil
	view := t.view
	t.view = nil
	t.mu.Unlock()

	if view != nil {
		t.device.DestroyTextureView(view)
	}
	t.device.DestroyTexture(t.raw)
	for _, m := range mirrors {
		m.destroy()
	}
	return true
}
