// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package manager

import (
	"context"
	"errors"
	"fmt"
	"image"
	"maps"
	"slices"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/frame"
	"github.com/gogpu/cluster/icvfx"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/proxy"
	"github.com/gogpu/cluster/rendertarget"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/stage"
	"github.com/gogpu/cluster/viewport"
)

// Manager errors.
var (
	// ErrConfig wraps every reason a configuration update was rejected.
	// The previous viewport graph stays in place.
	ErrConfig = errors.New("manager: configuration rejected")

	// ErrNoStage is returned when the root scene object is missing.
	ErrNoStage = errors.New("manager: missing stage")

	// ErrNoViewports is returned when the node has no viewport map.
	ErrNoViewports = errors.New("manager: missing viewport configuration")

	// ErrNotConfigured is returned by RenderFrame before the first
	// successful UpdateConfiguration.
	ErrNotConfigured = errors.New("manager: no configuration applied")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("manager: closed")
)

// Options configures a Manager.
type Options struct {
	// Pool configures the resource pool.
	Pool resource.PoolConfig

	// Queue is the queue frame work is sent on. Nil creates a new one.
	Queue *proxy.Queue
}

// FrameReport summarises one rendered frame on the control side.
type FrameReport struct {
	Frame uint64

	// Viewports are the ids in the frame plan, in plan order.
	Viewports []string

	// Excluded are the viewports left out of this frame.
	Excluded []string

	FrameRect image.Rectangle
	Targets   int
	ViewCount int

	ICVFX icvfx.Result
	Pool  resource.Stats
}

// Manager drives the viewport pipeline of one cluster node.
type Manager struct {
	nodeID string

	set     viewport.Set
	stage   *stage.Stage
	builder *icvfx.Builder
	pool    *resource.Pool
	targets *rendertarget.Manager
	queue   *proxy.Queue

	// pending are commands produced between frames, in program order.
	pending []proxy.Command

	// unreleased are retired textures whose frame work was not delivered.
	unreleased []resource.Texture

	frame  uint64
	closed bool
}

var _ icvfx.Host = (*Manager)(nil)

// New returns a manager for node nodeID allocating through backend.
func New(nodeID string, backend resource.Backend, opts Options) *Manager {
	m := &Manager{
		nodeID: nodeID,
		pool:   resource.NewPool(backend, opts.Pool),
		queue:  opts.Queue,
	}
	if m.queue == nil {
		m.queue = proxy.NewQueue()
	}
	m.builder = icvfx.NewBuilder(m)
	m.targets = rendertarget.New(m.pool)
	return m
}

// NodeID returns the cluster node id.
func (m *Manager) NodeID() string { return m.nodeID }

// Viewports returns the viewport set. Callers must not modify it.
func (m *Manager) Viewports() *viewport.Set { return &m.set }

// Viewport returns the viewport with the given id.
func (m *Manager) Viewport(id string) (*viewport.Viewport, bool) {
	_, vp, ok := m.set.Find(id)
	return vp, ok
}

// Stage returns the stage of the applied configuration, or nil.
func (m *Manager) Stage() *stage.Stage { return m.stage }

// Queue returns the queue the GPU-submission context drains.
func (m *Manager) Queue() *proxy.Queue { return m.queue }

// Pool returns the resource pool.
func (m *Manager) Pool() *resource.Pool { return m.pool }

// Frame returns the number of the last rendered frame.
func (m *Manager) Frame() uint64 { return m.frame }

// ViewportDeleted queues the GPU-side deletion of a removed viewport.
func (m *Manager) ViewportDeleted(h viewport.Handle, vp *viewport.Viewport) {
	m.pending = append(m.pending, proxy.DeleteViewport{ViewportID: vp.ID(), Handle: h})
}

// RegisterPostProcess registers pp under name on the GPU-submission side.
// It takes effect with the next frame.
func (m *Manager) RegisterPostProcess(name string, pp proxy.PostProcess) {
	m.pending = append(m.pending, proxy.RegisterPostProcess{Name: name, PostProcess: pp})
}

// UnregisterPostProcess removes the post-process registered under name.
func (m *Manager) UnregisterPostProcess(name string) {
	m.pending = append(m.pending, proxy.UnregisterPostProcess{Name: name})
}

// UpdateConfiguration applies a read-only configuration snapshot: the stage
// and the node's map of viewport id to declarative settings. Viewports are
// created, reconfigured or removed to match, and every viewport is bound to
// the new stage.
//
// A missing stage, a missing viewport map or a projection policy that
// cannot be created rejects the whole update; the previous graph is kept
// and the error wraps ErrConfig.
func (m *Manager) UpdateConfiguration(s *stage.Stage, viewports map[string]viewport.Config) error {
	if m.closed {
		return ErrClosed
	}
	if s == nil {
		return m.reject(ErrNoStage)
	}
	if viewports == nil {
		return m.reject(ErrNoViewports)
	}

	ids := slices.Sorted(maps.Keys(viewports))
	policies := make(map[string]projection.Policy)
	for _, id := range ids {
		cfg := viewports[id]
		if _, vp, ok := m.set.Find(id); ok && !vp.IsInternal() && samePolicy(vp, cfg) {
			continue
		}
		p, err := projection.New(cfg.ProjectionType, id, cfg.ProjectionParams)
		if err != nil {
			return m.reject(fmt.Errorf("viewport %s: %w", id, err))
		}
		policies[id] = p
	}

	var stale []viewport.Handle
	m.set.Each(func(h viewport.Handle, vp *viewport.Viewport) bool {
		if _, ok := viewports[vp.ID()]; !ok && !vp.IsInternal() {
			stale = append(stale, h)
		}
		return true
	})
	for _, h := range stale {
		m.deleteViewport(h)
	}

	log := cluster.Logger()
	for _, id := range ids {
		cfg := viewports[id]
		h, vp, ok := m.set.Find(id)
		if ok && vp.IsInternal() {
			log.Warn("manager: configured viewport replaces internal viewport", "viewport", id)
			m.deleteViewport(h)
			ok = false
		}
		if !ok {
			vp = viewport.New(id, m.nodeID, cfg, policies[id])
			if _, err := m.set.Insert(vp); err != nil {
				log.Warn("manager: cannot insert viewport", "viewport", id, "err", err)
				continue
			}
			log.Info("manager: viewport created", "viewport", id, "policy", cfg.ProjectionType)
			continue
		}
		vp.SetConfig(cfg)
		if p, changed := policies[id]; changed {
			vp.SetPolicy(p)
			log.Info("manager: viewport policy replaced", "viewport", id, "policy", cfg.ProjectionType)
		}
	}

	st := s.Clone()
	for _, vp := range m.set.All() {
		vp.HandleEndScene()
		vp.HandleStartScene(st)
	}
	m.stage = st
	log.Info("manager: configuration applied", "node", m.nodeID, "stage", st.ID, "viewports", len(ids))
	return nil
}

func samePolicy(vp *viewport.Viewport, cfg viewport.Config) bool {
	cur := vp.Config()
	return vp.Policy() != nil &&
		cur.ProjectionType == cfg.ProjectionType &&
		maps.Equal(cur.ProjectionParams, cfg.ProjectionParams)
}

func (m *Manager) reject(err error) error {
	err = fmt.Errorf("%w: %w", ErrConfig, err)
	cluster.Logger().Warn("manager: configuration rejected, previous graph kept",
		"node", m.nodeID, "err", err)
	return err
}

func (m *Manager) deleteViewport(h viewport.Handle) {
	vp, ok := m.set.Remove(h)
	if !ok {
		return
	}
	vp.HandleEndScene()
	m.ViewportDeleted(h, vp)
	cluster.Logger().Info("manager: viewport deleted", "viewport", vp.ID())
}

// RenderFrame runs the control side of one frame and enqueues its work for
// the GPU-submission context. It blocks while the previous frame's work is
// still being drained.
//
// Viewports that cannot render are excluded and reported; they never fail
// the frame. Errors are returned when no configuration was applied, when
// the manager is closed, when the pool protocol is violated, or when the
// work cannot be enqueued.
func (m *Manager) RenderFrame(ctx context.Context, opts cluster.FrameRenderOptions) (*FrameReport, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.stage == nil {
		cluster.Logger().Warn("manager: frame skipped, no configuration", "node", m.nodeID)
		return nil, ErrNotConfigured
	}
	m.frame++
	opts = opts.Clone()
	report := &FrameReport{Frame: m.frame}
	log := cluster.Logger()

	for _, vp := range m.set.All() {
		if err := vp.ResetPerFrameSettings(); err != nil {
			log.Debug("manager: reset skipped", "viewport", vp.ID(), "err", err)
		}
	}

	report.ICVFX = m.builder.Rebuild(m.stage)

	ordered := frame.RootsFirst(m.set.All())
	m.inheritParents(ordered)
	base := 1
	for _, vp := range ordered {
		if !vp.UpdateFrameContexts(base, &opts) {
			report.Excluded = append(report.Excluded, vp.ID())
			continue
		}
		vp.CalculateViews(m.stage)
		base += len(vp.Contexts())
	}

	f := frame.Build(ordered, &opts)
	alloc, err := m.targets.Allocate(f, &opts)
	if err != nil {
		return nil, fmt.Errorf("manager: frame %d: %w", m.frame, err)
	}

	fw := m.frameWork(f, alloc, opts, report)
	if err := m.queue.Enqueue(ctx, fw); err != nil {
		m.requeue(fw)
		return nil, fmt.Errorf("manager: enqueue frame %d: %w", m.frame, err)
	}

	report.FrameRect = f.FrameRect
	report.Targets = len(f.Targets)
	report.ViewCount = len(fw.Plan)
	report.Pool = m.pool.Stats()
	log.Debug("manager: frame enqueued", "frame", m.frame,
		"viewports", len(report.Viewports), "excluded", len(report.Excluded),
		"views", report.ViewCount, "commands", len(fw.Commands))
	return report, nil
}

// inheritParents copies rect and GPU affinity from each parent. ordered
// must list parents before children.
func (m *Manager) inheritParents(ordered []*viewport.Viewport) {
	for _, vp := range ordered {
		id := vp.Render.ParentViewportID
		if id == "" {
			continue
		}
		_, parent, ok := m.set.Find(id)
		if !ok {
			cluster.Logger().Warn("manager: parent viewport missing", "viewport", vp.ID(), "parent", id)
			continue
		}
		vp.InheritFrom(parent)
	}
}

// frameWork snapshots the planned viewports and packs the frame's unit of
// work. Viewports whose snapshot fails are dropped from the plan.
func (m *Manager) frameWork(f *frame.Frame, alloc *rendertarget.Allocation, opts cluster.FrameRenderOptions, report *FrameReport) *proxy.FrameWork {
	fw := &proxy.FrameWork{
		Frame:     m.frame,
		Options:   opts,
		Commands:  m.pending,
		FrameRect: f.FrameRect,
		Release:   append(m.unreleased, m.pool.TakeRetired()...),
	}
	m.pending, m.unreleased = nil, nil

	dropped := make(map[*viewport.Viewport]bool)
	for _, vp := range f.Viewports() {
		snap, err := proxy.NewSnapshot(vp)
		if err != nil {
			cluster.Logger().Warn("manager: snapshot failed, viewport excluded", "viewport", vp.ID(), "err", err)
			dropped[vp] = true
			report.Excluded = append(report.Excluded, vp.ID())
			continue
		}
		fw.Commands = append(fw.Commands, proxy.UpdateViewport{Snapshot: snap})
		report.Viewports = append(report.Viewports, vp.ID())
	}

	fw.Plan = make([]proxy.PlanView, 0, f.ViewCount)
	for _, v := range f.Views() {
		if dropped[v.Viewport] {
			continue
		}
		fw.Plan = append(fw.Plan, proxy.PlanView{
			ViewportID:      v.Viewport.ID(),
			Context:         v.Context,
			StereoViewIndex: v.StereoViewIndex,
			ShouldRender:    v.ShouldRender,
		})
	}

	for _, o := range alloc.Outputs {
		fw.Outputs = append(fw.Outputs, proxy.OutputSnapshot{
			Eye:              o.Eye,
			Rect:             o.Rect,
			BackbufferOffset: o.BackbufferOffset,
			Target:           o.Target.Texture(),
			Remap:            o.Remap.Texture(),
		})
	}
	return fw
}

// requeue keeps the parts of undelivered work that later frames must still
// carry: deletes, post-process changes and retired textures. Snapshots are
// rebuilt next frame.
func (m *Manager) requeue(fw *proxy.FrameWork) {
	var keep []proxy.Command
	for _, c := range fw.Commands {
		if _, ok := c.(proxy.UpdateViewport); !ok {
			keep = append(keep, c)
		}
	}
	m.pending = append(keep, m.pending...)
	m.unreleased = append(m.unreleased, fw.Release...)
}

// Close unbinds every projection policy and closes the queue. Work already
// enqueued is still drained by the GPU-submission context. Call
// ReleaseResources once that context has stopped.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	for _, vp := range m.set.All() {
		vp.HandleEndScene()
	}
	m.queue.Close()
}

// ReleaseResources releases every pooled texture and every retired texture
// not yet handed to the GPU-submission context. The GPU-submission context
// must be idle.
func (m *Manager) ReleaseResources() {
	backend := m.pool.Backend()
	for _, tex := range m.unreleased {
		backend.ReleaseTexture(tex)
	}
	m.unreleased = nil
	m.pool.Close()
}
