// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements resource.Backend on gogpu/wgpu/hal.
//
// One [Device] is opened per GPU of the node. Textures are created with a
// lazily built default view. Copies, resamples, mip generation and
// cross-device transfers read texels back through a staging buffer, process
// them on the CPU with golang.org/x/image/draw when the rectangles differ,
// and upload the result with Queue.WriteTexture. Staging buffers are kept in
// a small LRU cache keyed by device and size; eviction destroys the buffer.
//
// Using a host-owned device:
//
//	be, err := native.NewFromProvider(provider) // gpucontext.DeviceProvider
//	if err != nil {
//	    return err
//	}
//	defer be.Close()
//	pool := resource.NewPool(be, resource.PoolConfig{})
package native
