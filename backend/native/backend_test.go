// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/cluster/resource"
)

// createNoopDevice opens a device on the noop HAL backend.
func createNoopDevice(t *testing.T) Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return Device{Device: openDev.Device, Queue: openDev.Queue}
}

func newTestBackend(t *testing.T, gpus int) *Backend {
	t.Helper()
	devices := make([]Device, gpus)
	for i := range devices {
		devices[i] = createNoopDevice(t)
	}
	b, err := New(Config{StagingBuffers: 2}, devices...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func create(t *testing.T, b *Backend, d resource.Desc) *Texture {
	t.Helper()
	tex, err := b.CreateTexture2D(d.Normalized(resource.KindTexture))
	if err != nil {
		t.Fatalf("CreateTexture2D(%s): %v", d.Label, err)
	}
	return tex.(*Texture)
}

func TestNewRequiresDevice(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("New() err = %v, want ErrNoDevice", err)
	}
	if _, err := New(Config{}, Device{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("New(nil device) err = %v, want ErrNoDevice", err)
	}
}

func TestCreateAndRelease(t *testing.T) {
	b := newTestBackend(t, 1)
	tex := create(t, b, resource.Desc{Size: image.Pt(64, 32), Label: "vp/input", Mips: 2})

	if tex.Raw() == nil {
		t.Fatal("Raw() = nil for a live texture")
	}
	view, err := tex.DefaultView()
	if err != nil || view == nil {
		t.Fatalf("DefaultView() = %v, %v", view, err)
	}
	again, _ := tex.DefaultView()
	if again != view {
		t.Error("DefaultView created a second view")
	}

	b.ReleaseTexture(tex)
	b.ReleaseTexture(tex)
	if !tex.IsDestroyed() || tex.Raw() != nil {
		t.Error("texture still live after release")
	}
	if _, err := tex.DefaultView(); !errors.Is(err, ErrTextureDestroyed) {
		t.Errorf("DefaultView after release: err = %v", err)
	}
}

func TestCreateUnknownGPU(t *testing.T) {
	b := newTestBackend(t, 1)
	_, err := b.CreateTexture2D(resource.Desc{Size: image.Pt(16, 16), GPU: 3}.Normalized(resource.KindTexture))
	if !errors.Is(err, ErrUnknownGPU) {
		t.Errorf("err = %v, want ErrUnknownGPU", err)
	}
}

func TestCopyOrResample(t *testing.T) {
	b := newTestBackend(t, 1)
	src := create(t, b, resource.Desc{Size: image.Pt(64, 64), Label: "src"})
	dst := create(t, b, resource.Desc{Size: image.Pt(32, 32), Label: "dst"})
	wide := create(t, b, resource.Desc{Size: image.Pt(32, 32), Label: "hdr", Format: gputypes.TextureFormatRGBA32Float})

	tests := []struct {
		name    string
		src     resource.Texture
		srcRect image.Rectangle
		dst     resource.Texture
		dstRect image.Rectangle
		wantErr error
	}{
		{"same size", src, image.Rect(0, 0, 32, 32), dst, image.Rect(0, 0, 32, 32), nil},
		{"downscale", src, image.Rect(0, 0, 64, 64), dst, image.Rect(0, 0, 32, 32), nil},
		{"sub rect", src, image.Rect(16, 16, 48, 48), dst, image.Rect(8, 8, 24, 24), nil},
		{"format change", src, image.Rect(0, 0, 64, 64), wide, image.Rect(0, 0, 32, 32), nil},
		{"outside source", src, image.Rect(0, 0, 65, 64), dst, image.Rect(0, 0, 32, 32), ErrRectOutOfBounds},
		{"empty destination", src, image.Rect(0, 0, 8, 8), dst, image.Rectangle{}, ErrRectOutOfBounds},
		{"foreign", fakeTexture{}, image.Rect(0, 0, 8, 8), dst, image.Rect(0, 0, 8, 8), ErrForeignTexture},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.CopyOrResample(tt.src, tt.srcRect, tt.dst, tt.dstRect)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("CopyOrResample: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateMips(t *testing.T) {
	b := newTestBackend(t, 1)
	single := create(t, b, resource.Desc{Size: image.Pt(64, 64), Label: "single"})
	chain := create(t, b, resource.Desc{Size: image.Pt(64, 32), Label: "chain", Mips: resource.MipCount(image.Pt(64, 32))})

	if err := b.GenerateMips(single); err != nil {
		t.Errorf("single level: %v", err)
	}
	if err := b.GenerateMips(chain); err != nil {
		t.Errorf("full chain: %v", err)
	}
	b.ReleaseTexture(chain)
	if err := b.GenerateMips(chain); !errors.Is(err, ErrTextureDestroyed) {
		t.Errorf("released: err = %v, want ErrTextureDestroyed", err)
	}
}

func TestTransferAcrossDevice(t *testing.T) {
	b := newTestBackend(t, 2)
	tex := create(t, b, resource.Desc{Size: image.Pt(32, 32), Label: "cam", GPU: 1})

	if err := b.TransferAcrossDevice(tex, image.Rect(0, 0, 32, 32), 1, 1); err != nil {
		t.Fatalf("same device: %v", err)
	}
	if _, ok := tex.Mirror(1); ok {
		t.Error("same-device transfer created a mirror")
	}
	if err := b.TransferAcrossDevice(tex, image.Rect(0, 0, 32, 32), 1, 0); err != nil {
		t.Fatalf("TransferAcrossDevice: %v", err)
	}
	m, ok := tex.Mirror(0)
	if !ok || m.Desc().GPU != 0 {
		t.Fatalf("mirror = %v, %v; want texture on gpu 0", m, ok)
	}
	if err := b.TransferAcrossDevice(tex, image.Rect(0, 0, 16, 16), 1, 0); err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	if again, _ := tex.Mirror(0); again != m {
		t.Error("second transfer recreated the mirror")
	}
	if err := b.TransferAcrossDevice(tex, image.Rect(0, 0, 16, 16), 0, 1); !errors.Is(err, ErrUnknownGPU) {
		t.Errorf("wrong source device: err = %v, want ErrUnknownGPU", err)
	}

	b.ReleaseTexture(tex)
	if !m.IsDestroyed() {
		t.Error("releasing a texture kept its mirror alive")
	}
}

func TestStagingCacheEviction(t *testing.T) {
	b := newTestBackend(t, 1)
	src := create(t, b, resource.Desc{Size: image.Pt(64, 64), Label: "src"})
	dst := create(t, b, resource.Desc{Size: image.Pt(64, 64), Label: "dst"})

	// Three distinct readback sizes through a two-entry cache.
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, 64, 64),
		image.Rect(0, 0, 64, 32),
		image.Rect(0, 0, 64, 16),
	} {
		if err := b.CopyOrResample(src, r, dst, r); err != nil {
			t.Fatalf("CopyOrResample(%v): %v", r, err)
		}
	}
	if n := b.staging.Len(); n != 2 {
		t.Errorf("staging.Len() = %d, want 2", n)
	}
}

func TestClosedBackend(t *testing.T) {
	b := newTestBackend(t, 1)
	b.Close()
	if _, err := b.CreateTexture2D(resource.Desc{Size: image.Pt(16, 16)}.Normalized(resource.KindTexture)); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("err = %v, want ErrBackendClosed", err)
	}
}

type fakeTexture struct{}

func (fakeTexture) Desc() resource.Desc { return resource.Desc{Size: image.Pt(8, 8)} }

func TestOpenNoop(t *testing.T) {
	b, release, err := OpenNoop(2)
	if err != nil {
		t.Fatalf("OpenNoop: %v", err)
	}
	defer release()
	if got := b.GPUCount(); got != 2 {
		t.Errorf("GPUCount = %d, want 2", got)
	}
	tex, err := b.CreateTexture2D(resource.Desc{Size: image.Pt(16, 16), GPU: 1, Label: "noop"}.Normalized(resource.KindTexture))
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}
	b.ReleaseTexture(tex)
}
