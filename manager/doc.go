// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package manager is the control side of one cluster node's viewport
// pipeline.
//
// A [Manager] owns the node's viewports, the ICVFX graph builder, the
// render target manager and the producer end of the GPU-submission queue.
// The host applies configuration with [Manager.UpdateConfiguration] and
// drives frames with [Manager.RenderFrame]:
//
//	m := manager.New("node_a", backend, manager.Options{})
//	defer m.Close()
//	go proxy.NewManagerProxy(backend).Run(ctx, m.Queue())
//
//	if err := m.UpdateConfiguration(st, viewports); err != nil {
//	    log.Println(err) // previous graph is kept
//	}
//	for {
//	    report, err := m.RenderFrame(ctx, opts)
//	    ...
//	}
//
// Every frame runs the same steps in order: reset per-frame settings,
// rebuild the ICVFX graph, compute viewport contexts and views, build the
// frame plan, allocate resources, snapshot the viewports, and enqueue the
// snapshots with the frame options as one unit of work.
//
// Manager is not safe for concurrent use; it belongs to the control
// goroutine.
package manager
