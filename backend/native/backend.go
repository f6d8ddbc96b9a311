// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/draw"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/resource"
)

// Backend errors.
var (
	// ErrNoDevice is returned when a backend is created without devices.
	ErrNoDevice = errors.New("native: no device")

	// ErrUnknownGPU is returned for a GPU index with no opened device.
	ErrUnknownGPU = errors.New("native: unknown gpu index")

	// ErrForeignTexture is returned for textures created elsewhere.
	ErrForeignTexture = errors.New("native: texture not created by this backend")

	// ErrTextureDestroyed is returned when a released texture is used.
	ErrTextureDestroyed = errors.New("native: texture has been destroyed")

	// ErrRectOutOfBounds is returned when a copy rectangle leaves the texture.
	ErrRectOutOfBounds = errors.New("native: rectangle outside texture")

	// ErrGPUTimeout is returned when a fence wait times out.
	ErrGPUTimeout = errors.New("native: timed out waiting for GPU")

	// ErrBackendClosed is returned after Close.
	ErrBackendClosed = errors.New("native: backend closed")
)

// Device is one opened GPU.
type Device struct {
	Device hal.Device
	Queue  hal.Queue
}

// Config tunes a Backend.
type Config struct {
	// FenceTimeout bounds every wait for submitted work. Zero means 5s.
	FenceTimeout time.Duration

	// StagingBuffers is the number of cached readback buffers. Zero means 16.
	StagingBuffers int
}

type stagingKey struct {
	gpu  int
	size uint64
}

// Backend issues pipeline GPU work on hal devices.
//
// Backend is safe for concurrent use; GPU operations are serialized.
type Backend struct {
	mu      sync.Mutex
	devices []Device
	timeout time.Duration
	staging *lru.Cache[stagingKey, hal.Buffer]
	closed  bool
}

var (
	_ resource.Backend    = (*Backend)(nil)
	_ resource.PassMarker = (*Backend)(nil)
)

// New returns a backend over devices. Device i serves GPU index i.
func New(cfg Config, devices ...Device) (*Backend, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}
	for i, d := range devices {
		if d.Device == nil || d.Queue == nil {
			return nil, fmt.Errorf("%w: device %d is nil", ErrNoDevice, i)
		}
	}
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = 5 * time.Second
	}
	if cfg.StagingBuffers <= 0 {
		cfg.StagingBuffers = 16
	}

	b := &Backend{devices: devices, timeout: cfg.FenceTimeout}
	cache, err := lru.NewWithEvict(cfg.StagingBuffers, func(k stagingKey, buf hal.Buffer) {
		b.devices[k.gpu].Device.DestroyBuffer(buf)
	})
	if err != nil {
		return nil, fmt.Errorf("native: staging cache: %w", err)
	}
	b.staging = cache
	return b, nil
}

// NewFromProvider returns a backend on the HAL devices of host providers,
// one per GPU. Each provider must expose HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func NewFromProvider(providers ...gpucontext.DeviceProvider) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	devices := make([]Device, 0, len(providers))
	for i, p := range providers {
		hp, ok := p.(halProvider)
		if !ok {
			return nil, fmt.Errorf("native: provider %d does not expose HAL types", i)
		}
		device, ok := hp.HalDevice().(hal.Device)
		if !ok || device == nil {
			return nil, fmt.Errorf("native: provider %d HalDevice is not hal.Device", i)
		}
		queue, ok := hp.HalQueue().(hal.Queue)
		if !ok || queue == nil {
			return nil, fmt.Errorf("native: provider %d HalQueue is not hal.Queue", i)
		}
		devices = append(devices, Device{Device: device, Queue: queue})
	}
	return New(Config{}, devices...)
}

// GPUCount returns the number of devices.
func (b *Backend) GPUCount() int { return len(b.devices) }

// Close destroys cached staging buffers. Textures stay owned by their
// pools; devices stay owned by the caller.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.staging.Purge()
}

func (b *Backend) device(gpu int) (Device, error) {
	if gpu < 0 || gpu >= len(b.devices) {
		return Device{}, fmt.Errorf("%w: %d", ErrUnknownGPU, gpu)
	}
	return b.devices[gpu], nil
}

// CreateTexture2D creates a 2D texture on desc.GPU.
func (b *Backend) CreateTexture2D(desc resource.Desc) (resource.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	return b.createLocked(desc)
}

func (b *Backend) createLocked(desc resource.Desc) (*Texture, error) {
	dev, err := b.device(desc.GPU)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G115: sizes validated by the pool
	raw, err := dev.Device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(desc.Size.X), Height: uint32(desc.Size.Y), DepthOrArrayLayers: 1},
		MipLevelCount: uint32(max(desc.Mips, 1)),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %s: %w", desc.Label, err)
	}
	return &Texture{desc: desc, device: dev.Device, raw: raw}, nil
}

// ReleaseTexture destroys tex and its mirrors.
func (b *Backend) ReleaseTexture(tex resource.Texture) {
	t, ok := tex.(*Texture)
	if !ok || t == nil {
		return
	}
	t.destroy()
}

// CopyOrResample copies srcRect of src into dstRect of dst. Both textures
// may live on different devices.
func (b *Backend) CopyOrResample(src resource.Texture, srcRect image.Rectangle, dst resource.Texture, dstRect image.Rectangle) error {
	s, err := own(src)
	if err != nil {
		return err
	}
	d, err := own(dst)
	if err != nil {
		return err
	}
	if !srcRect.In(s.desc.Bounds()) || !dstRect.In(d.desc.Bounds()) || srcRect.Empty() || dstRect.Empty() {
		return fmt.Errorf("%w: %v of %v -> %v of %v", ErrRectOutOfBounds,
			srcRect, s.desc.Size, dstRect, d.desc.Size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	px, err := b.readLocked(s, srcRect, 0)
	if err != nil {
		return err
	}
	px = convert(px, resource.BytesPerPixel(d.desc.Format))
	px = resample(px, dstRect.Dx(), dstRect.Dy(), draw.ApproxBiLinear)
	return b.writeLocked(d, dstRect.Min, 0, px)
}

// GenerateMips fills every mip level of tex from level 0.
func (b *Backend) GenerateMips(tex resource.Texture) error {
	t, err := own(tex)
	if err != nil {
		return err
	}
	if t.desc.Mips <= 1 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	px, err := b.readLocked(t, t.desc.Bounds(), 0)
	if err != nil {
		return err
	}
	for level := 1; level < t.desc.Mips; level++ {
		px = halve(px)
		if err := b.writeLocked(t, image.Point{}, level, px); err != nil {
			return fmt.Errorf("native: mip %d of %s: %w", level, t.desc.Label, err)
		}
	}
	return nil
}

// TransferAcrossDevice copies rect of tex from device from into a mirror
// texture on device to, creating the mirror on first use.
func (b *Backend) TransferAcrossDevice(tex resource.Texture, rect image.Rectangle, from, to int) error {
	t, err := own(tex)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if from != t.desc.GPU {
		return fmt.Errorf("%w: %s lives on gpu %d, not %d", ErrUnknownGPU, t.desc.Label, t.desc.GPU, from)
	}
	if !rect.In(t.desc.Bounds()) || rect.Empty() {
		return fmt.Errorf("%w: %v of %v", ErrRectOutOfBounds, rect, t.desc.Size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	mirror, err := b.mirrorLocked(t, to)
	if err != nil {
		return err
	}
	px, err := b.readLocked(t, rect, 0)
	if err != nil {
		return err
	}
	return b.writeLocked(mirror, rect.Min, 0, px)
}

// MarkPass logs a pass boundary at debug level.
func (b *Backend) MarkPass(name string) {
	cluster.Logger().Debug("native: pass", "name", name)
}

func (b *Backend) mirrorLocked(t *Texture, gpu int) (*Texture, error) {
	if m, ok := t.Mirror(gpu); ok {
		return m, nil
	}
	desc := t.desc
	desc.GPU = gpu
	desc.Label = fmt.Sprintf("%s@gpu%d", t.desc.Label, gpu)
	m, err := b.createLocked(desc)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.mirrors == nil {
		t.mirrors = make(map[int]*Texture)
	}
	t.mirrors[gpu] = m
	t.mu.Unlock()
	return m, nil
}

// readLocked copies rect of a mip level into tightly packed texels.
func (b *Backend) readLocked(t *Texture, rect image.Rectangle, level int) (texels, error) {
	raw := t.Raw()
	if raw == nil {
		return texels{}, ErrTextureDestroyed
	}
	dev, err := b.device(t.desc.GPU)
	if err != nil {
		return texels{}, err
	}
	bpp := resource.BytesPerPixel(t.desc.Format)
	w, h := rect.Dx(), rect.Dy()
	pitch := alignedRowBytes(w, bpp)
	size := uint64(pitch) * uint64(h) //nolint:gosec // G115: positive by construction

	buf, err := b.stagingLocked(t.desc.GPU, size)
	if err != nil {
		return texels{}, err
	}

	encoder, err := dev.Device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "cluster_readback"})
	if err != nil {
		return texels{}, fmt.Errorf("native: create encoder: %w", err)
	}
	if err := encoder.BeginEncoding("cluster_readback"); err != nil {
		return texels{}, fmt.Errorf("native: begin encoding: %w", err)
	}

	// CopyTextureToBuffer needs the texture in the copy-source state.
	// The barrier is a no-op on Metal, GLES, software and noop backends.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageTextureBinding,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	//nolint:gosec // G115: rect validated against the texture size
	encoder.CopyTextureToBuffer(raw, buf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(pitch), RowsPerImage: uint32(h)},
		TextureBase: hal.ImageCopyTexture{
			Texture:  raw,
			MipLevel: uint32(level),
			Origin:   hal.Origin3D{X: uint32(rect.Min.X), Y: uint32(rect.Min.Y), Z: 0},
		},
		Size: hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageTextureBinding,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return texels{}, fmt.Errorf("native: end encoding: %w", err)
	}
	defer dev.Device.FreeCommandBuffer(cmdBuf)

	fence, err := dev.Device.CreateFence()
	if err != nil {
		return texels{}, fmt.Errorf("native: create fence: %w", err)
	}
	defer dev.Device.DestroyFence(fence)

	if err := dev.Queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return texels{}, fmt.Errorf("native: submit: %w", err)
	}
	ok, err := dev.Device.Wait(fence, 1, b.timeout)
	if err != nil {
		return texels{}, fmt.Errorf("native: wait: %w", err)
	}
	if !ok {
		return texels{}, ErrGPUTimeout
	}

	readback := make([]byte, size)
	if err := dev.Queue.ReadBuffer(buf, 0, readback); err != nil {
		return texels{}, fmt.Errorf("native: readback: %w", err)
	}
	return unpad(readback, w, h, bpp), nil
}

// writeLocked uploads px at origin of the given mip level.
func (b *Backend) writeLocked(t *Texture, origin image.Point, level int, px texels) error {
	raw := t.Raw()
	if raw == nil {
		return ErrTextureDestroyed
	}
	dev, err := b.device(t.desc.GPU)
	if err != nil {
		return err
	}
	//nolint:gosec // G115: texel block sizes are positive and bounded by the texture
	dev.Queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  raw,
			MipLevel: uint32(level),
			Origin:   hal.Origin3D{X: uint32(origin.X), Y: uint32(origin.Y), Z: 0},
		},
		px.data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(px.stride()),
			RowsPerImage: uint32(px.h),
		},
		&hal.Extent3D{Width: uint32(px.w), Height: uint32(px.h), DepthOrArrayLayers: 1},
	)
	return nil
}

func (b *Backend) stagingLocked(gpu int, size uint64) (hal.Buffer, error) {
	key := stagingKey{gpu: gpu, size: size}
	if buf, ok := b.staging.Get(key); ok {
		return buf, nil
	}
	dev, err := b.device(gpu)
	if err != nil {
		return nil, err
	}
	buf, err := dev.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: "cluster_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create staging buffer: %w", err)
	}
	b.staging.Add(key, buf)
	return buf, nil
}

func own(tex resource.Texture) (*Texture, error) {
	t, ok := tex.(*Texture)
	if !ok || t == nil {
		return nil, ErrForeignTexture
	}
	if t.IsDestroyed() {
		return nil, fmt.Errorf("%w: %s", ErrTextureDestroyed, t.desc.Label)
	}
	return t, nil
}

// convert adapts texels to a destination texel size by keeping the leading
// bytes of each texel and zero-filling the rest. It is a byte-level
// fallback, not a color conversion.
func convert(p texels, bpp int) texels {
	if p.bpp == bpp {
		return p
	}
	out := newTexels(p.w, p.h, bpp)
	n := min(p.bpp, bpp)
	for i := 0; i < p.w*p.h; i++ {
		copy(out.data[i*bpp:i*bpp+n], p.data[i*p.bpp:i*p.bpp+n])
	}
	return out
}
