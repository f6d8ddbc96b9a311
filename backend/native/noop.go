// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/cluster/backend"
	"github.com/gogpu/cluster/resource"
)

func init() {
	backend.Register(backend.Native, func(opts backend.Options) (resource.Backend, func(), error) {
		b, release, err := OpenNoop(opts.GPUCount)
		if err != nil {
			return nil, nil, err
		}
		return b, release, nil
	})
}

// OpenNoop returns a backend over gpus devices of the noop HAL. It is used
// for headless runs where no adapter is present. release closes the backend
// and destroys the devices.
func OpenNoop(gpus int) (b *Backend, release func(), err error) {
	if gpus < 1 {
		gpus = 1
	}
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("native: noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, ErrNoDevice
	}

	var destroy []func()
	cleanup := func() {
		for i := len(destroy) - 1; i >= 0; i-- {
			destroy[i]()
		}
		instance.Destroy()
	}

	devices := make([]Device, 0, gpus)
	for i := 0; i < gpus; i++ {
		open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("native: open noop device %d: %w", i, err)
		}
		destroy = append(destroy, open.Device.Destroy)
		devices = append(devices, Device{Device: open.Device, Queue: open.Queue})
	}

	b, err = New(Config{}, devices...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return b, func() {
		b.Close()
		cleanup()
	}, nil
}
