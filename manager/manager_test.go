// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package manager

import (
	"context"
	"errors"
	"image"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/backend/recording"
	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/icvfx"
	"github.com/gogpu/cluster/projection"
	_ "github.com/gogpu/cluster/projection/mesh"
	_ "github.com/gogpu/cluster/projection/simple"
	"github.com/gogpu/cluster/proxy"
	"github.com/gogpu/cluster/resource"
	"github.com/gogpu/cluster/stage"
	"github.com/gogpu/cluster/viewport"
)

type rig struct {
	t       *testing.T
	ctx     context.Context
	backend *recording.Backend
	m       *Manager
	mp      *proxy.ManagerProxy
}

// newRig starts a manager with its GPU-submission context running on a
// goroutine. Every frame waits for its execution result, so the proxy
// side may be inspected between frames.
func newRig(t *testing.T) *rig {
	t.Helper()
	b := recording.New()
	r := &rig{t: t, ctx: context.Background(), backend: b, m: New("node_a", b, Options{}), mp: proxy.NewManagerProxy(b)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.mp.Run(ctx, r.m.Queue()) }()
	t.Cleanup(func() {
		r.m.Close()
		if err := <-done; err != nil {
			t.Errorf("proxy Run: %v", err)
		}
		cancel()
		r.m.ReleaseResources()
	})
	return r
}

func (r *rig) configure(s *stage.Stage, vps map[string]viewport.Config) {
	r.t.Helper()
	if err := r.m.UpdateConfiguration(s, vps); err != nil {
		r.t.Fatalf("UpdateConfiguration: %v", err)
	}
}

func (r *rig) render(opts cluster.FrameRenderOptions) (*FrameReport, proxy.ExecutionStats) {
	r.t.Helper()
	report, err := r.m.RenderFrame(r.ctx, opts)
	if err != nil {
		r.t.Fatalf("RenderFrame: %v", err)
	}
	return report, <-r.m.Queue().Results()
}

func (r *rig) mustViewport(id string) *viewport.Viewport {
	r.t.Helper()
	vp, ok := r.m.Viewport(id)
	if !ok {
		var have []string
		for _, v := range r.m.Viewports().All() {
			have = append(have, v.ID())
		}
		r.t.Fatalf("viewport %q not found; have %v", id, have)
	}
	return vp
}

func testStage() *stage.Stage {
	return &stage.Stage{
		ID: "stage",
		Screens: []stage.Screen{
			{ID: "wall", Transform: geom.Transform{Location: geom.V3(500, 0, 0)}, Width: 800, Height: 450},
			{ID: "floor", Transform: geom.Transform{Location: geom.V3(500, 0, -300)}, Width: 800, Height: 450},
		},
		Cameras: []stage.Camera{{
			ID:             "cam",
			Enable:         true,
			FieldOfView:    60,
			AspectRatio:    16.0 / 9.0,
			Resolution:     image.Pt(1280, 720),
			StereoGPUIndex: -1,
		}},
		ICVFX: stage.ICVFX{Enable: true},
	}
}

func screenViewport(screen string, rect image.Rectangle, flags viewport.ICVFXFlags) viewport.Config {
	r := viewport.DefaultRenderSettings()
	r.Rect = rect
	return viewport.Config{
		Render:           r,
		ICVFX:            flags,
		ProjectionType:   "simple",
		ProjectionParams: map[string]string{"screen": screen},
	}
}

func oneTarget() map[string]viewport.Config {
	return map[string]viewport.Config{
		"wall": screenViewport("wall", image.Rect(0, 0, 1920, 1080), viewport.ICVFXEnable),
	}
}

func TestRenderFrameBeforeConfiguration(t *testing.T) {
	m := New("node_a", recording.New(), Options{})
	defer m.Close()
	if _, err := m.RenderFrame(context.Background(), cluster.DefaultFrameRenderOptions()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RenderFrame = %v, want ErrNotConfigured", err)
	}
}

func TestCameraWithFrameColorChromakey(t *testing.T) {
	r := newRig(t)
	r.configure(testStage(), oneTarget())
	report, stats := r.render(cluster.DefaultFrameRenderOptions())

	incam := r.mustViewport(icvfx.InCameraViewportID("cam"))
	if incam.Render.ParentViewportID != "" {
		t.Errorf("camera viewport parent = %q, want none", incam.Render.ParentViewportID)
	}
	if _, ok := r.m.Viewport(icvfx.ChromakeyViewportID("cam")); ok {
		t.Error("frame-color chromakey created a capture viewport")
	}
	wall := r.mustViewport("wall")
	if len(wall.ICVFX.Cameras) != 1 || wall.ICVFX.Cameras[0].ViewportID != incam.ID() {
		t.Errorf("wall camera records = %+v", wall.ICVFX.Cameras)
	}

	want := []string{"wall", incam.ID()}
	if !slices.Equal(report.Viewports, want) {
		t.Errorf("plan viewports = %v, want %v", report.Viewports, want)
	}
	if report.FrameRect != image.Rect(0, 0, 1920, 1080) {
		t.Errorf("frame rect = %v, want the wall rect only", report.FrameRect)
	}
	if stats.Proxies != 2 || r.mp.Len() != 2 {
		t.Errorf("proxies = %d/%d, want 2", stats.Proxies, r.mp.Len())
	}
	p, ok := r.mp.Proxy("wall")
	if !ok || len(p.Snapshot().ICVFX.Cameras) != 1 {
		t.Fatalf("wall proxy = %v, %v", p, ok)
	}
	if stats.Resolved != 1 {
		t.Errorf("resolved = %d, want 1 (camera capture is not visible)", stats.Resolved)
	}
}

func TestChromakeyRenderTexture(t *testing.T) {
	r := newRig(t)
	s := testStage()
	s.Cameras[0].Chromakey = stage.Chromakey{Enable: true, Source: stage.ChromakeyRenderTexture, ShowOnly: []string{"greenscreen"}}
	r.configure(s, oneTarget())
	r.render(cluster.DefaultFrameRenderOptions())

	incamID, ckID := icvfx.InCameraViewportID("cam"), icvfx.ChromakeyViewportID("cam")
	ck := r.mustViewport(ckID)
	if ck.Render.ParentViewportID != incamID {
		t.Errorf("chromakey parent = %q, want %q", ck.Render.ParentViewportID, incamID)
	}
	if !r.m.Viewports().Marked(ck.Handle()) || ck.ICVFX.Runtime.Has(viewport.RuntimeUnused) {
		t.Error("chromakey viewport not marked used")
	}
	if ck.Render.Rect != r.mustViewport(incamID).Render.Rect {
		t.Errorf("chromakey rect %v not inherited from camera", ck.Render.Rect)
	}
	if ck.Render.CaptureMode != viewport.CaptureChromakey {
		t.Errorf("capture mode = %v", ck.Render.CaptureMode)
	}
	rec := r.mustViewport("wall").ICVFX.Cameras
	if len(rec) != 1 || rec[0].ChromakeyViewportID != ckID {
		t.Errorf("camera records = %+v", rec)
	}
}

func TestDisableCameraOverride(t *testing.T) {
	r := newRig(t)
	vps := map[string]viewport.Config{
		"wall":  screenViewport("wall", image.Rect(0, 0, 1920, 1080), viewport.ICVFXEnable),
		"floor": screenViewport("floor", image.Rect(1920, 0, 3840, 1080), viewport.ICVFXEnable|viewport.ICVFXDisableCamera),
	}
	r.configure(testStage(), vps)
	r.render(cluster.DefaultFrameRenderOptions())

	if got := r.mustViewport("wall").ICVFX.Cameras; len(got) != 1 {
		t.Errorf("wall records = %+v, want one", got)
	}
	if got := r.mustViewport("floor").ICVFX.Cameras; len(got) != 0 {
		t.Errorf("floor records = %+v, want none", got)
	}
}

func TestZeroRenderTargetRatioExcludes(t *testing.T) {
	r := newRig(t)
	vps := oneTarget()
	side := screenViewport("floor", image.Rect(1920, 0, 3840, 1080), 0)
	side.Render.RenderTargetRatio = 0
	vps["floor"] = side
	r.configure(testStage(), vps)
	report, _ := r.render(cluster.DefaultFrameRenderOptions())

	if !slices.Contains(report.Excluded, "floor") || slices.Contains(report.Viewports, "floor") {
		t.Errorf("report = excluded %v, plan %v", report.Excluded, report.Viewports)
	}
	floor := r.mustViewport("floor")
	if floor.HoldsResources() || floor.State() != viewport.StateIneligible {
		t.Errorf("floor state %v, resources %v", floor.State(), floor.HoldsResources())
	}
	for _, c := range r.backend.CommandsOf(recording.OpCreate) {
		if strings.HasPrefix(c.Dst, "floor/") {
			t.Errorf("excluded viewport allocated %s", c.Dst)
		}
	}
	if _, ok := r.mp.Proxy("floor"); ok {
		t.Error("excluded viewport got a proxy")
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	r := newRig(t)
	s := testStage()
	second := s.Cameras[0]
	second.ID, second.RenderOrder = "cam2", -1
	s.Cameras = append(s.Cameras, second)
	s.Cameras[0].Chromakey = stage.Chromakey{Enable: true, Source: stage.ChromakeyRenderTexture, ShowOnly: []string{"k"}}
	r.configure(s, oneTarget())

	type graph struct {
		ids     []string
		parents []string
		records []string
	}
	capture := func() graph {
		var g graph
		for _, vp := range r.m.Viewports().All() {
			g.ids = append(g.ids, vp.ID())
			g.parents = append(g.parents, vp.Render.ParentViewportID)
		}
		for _, rec := range r.mustViewport("wall").ICVFX.Cameras {
			g.records = append(g.records, rec.CameraID)
		}
		return g
	}

	r1, _ := r.render(cluster.DefaultFrameRenderOptions())
	g1 := capture()
	r2, _ := r.render(cluster.DefaultFrameRenderOptions())
	g2 := capture()

	if !slices.Equal(g1.ids, g2.ids) || !slices.Equal(g1.parents, g2.parents) || !slices.Equal(g1.records, g2.records) {
		t.Errorf("graph changed between frames:\n%+v\n%+v", g1, g2)
	}
	if !slices.Equal(g1.records, []string{"cam2", "cam"}) {
		t.Errorf("records = %v, want render order [cam2 cam]", g1.records)
	}
	if len(r1.ICVFX.Created) != 3 || len(r2.ICVFX.Created) != 0 || len(r2.ICVFX.Deleted) != 0 {
		t.Errorf("created %v then %v, deleted %v", r1.ICVFX.Created, r2.ICVFX.Created, r2.ICVFX.Deleted)
	}
}

func TestSweepDeletesProxy(t *testing.T) {
	r := newRig(t)
	s := testStage()
	r.configure(s, oneTarget())
	r.render(cluster.DefaultFrameRenderOptions())

	incamID := icvfx.InCameraViewportID("cam")
	if _, ok := r.mp.Proxy(incamID); !ok {
		t.Fatal("camera proxy missing after first frame")
	}

	s.Cameras[0].Enable = false
	r.configure(s, oneTarget())
	report, _ := r.render(cluster.DefaultFrameRenderOptions())

	if _, ok := r.m.Viewport(incamID); ok {
		t.Error("camera viewport survived the sweep")
	}
	if !slices.Equal(report.ICVFX.Deleted, []string{incamID}) {
		t.Errorf("deleted = %v", report.ICVFX.Deleted)
	}
	if _, ok := r.mp.Proxy(incamID); ok {
		t.Error("camera proxy not deleted on the GPU side")
	}
	if got := r.mustViewport("wall").ICVFX.Cameras; len(got) != 0 {
		t.Errorf("wall records = %+v", got)
	}
}

func TestRejectedConfigurationKeepsGraph(t *testing.T) {
	r := newRig(t)
	r.configure(testStage(), oneTarget())

	bad := oneTarget()
	bad["extra"] = viewport.Config{Render: viewport.DefaultRenderSettings(), ProjectionType: "no_such_policy"}
	err := r.m.UpdateConfiguration(testStage(), bad)
	if !errors.Is(err, ErrConfig) || !errors.Is(err, projection.ErrUnknownPolicy) {
		t.Fatalf("UpdateConfiguration = %v, want ErrConfig wrapping ErrUnknownPolicy", err)
	}
	if _, ok := r.m.Viewport("extra"); ok {
		t.Error("rejected viewport was created")
	}
	if err := r.m.UpdateConfiguration(nil, oneTarget()); !errors.Is(err, ErrNoStage) {
		t.Errorf("nil stage = %v, want ErrNoStage", err)
	}
	if err := r.m.UpdateConfiguration(testStage(), nil); !errors.Is(err, ErrNoViewports) {
		t.Errorf("nil viewports = %v, want ErrNoViewports", err)
	}

	report, _ := r.render(cluster.DefaultFrameRenderOptions())
	if !slices.Contains(report.Viewports, "wall") {
		t.Errorf("plan = %v, want the previous graph", report.Viewports)
	}
}

func TestRemovedViewportIsDeleted(t *testing.T) {
	r := newRig(t)
	vps := oneTarget()
	vps["floor"] = screenViewport("floor", image.Rect(1920, 0, 3840, 1080), 0)
	r.configure(testStage(), vps)
	r.render(cluster.DefaultFrameRenderOptions())
	if _, ok := r.mp.Proxy("floor"); !ok {
		t.Fatal("floor proxy missing")
	}

	r.configure(testStage(), oneTarget())
	r.render(cluster.DefaultFrameRenderOptions())
	if _, ok := r.m.Viewport("floor"); ok {
		t.Error("floor viewport still configured")
	}
	if _, ok := r.mp.Proxy("floor"); ok {
		t.Error("floor proxy not deleted")
	}
}

func TestStereoViewIndicesUnique(t *testing.T) {
	r := newRig(t)
	vps := oneTarget()
	vps["floor"] = screenViewport("floor", image.Rect(1920, 0, 3840, 1080), 0)
	r.configure(testStage(), vps)

	opts := cluster.DefaultFrameRenderOptions()
	opts.StereoMode = cluster.StereoModeSideBySide
	report, stats := r.render(opts)

	seen := make(map[int]bool)
	for _, id := range report.Viewports {
		for _, c := range r.mustViewport(id).Contexts() {
			if c.StereoViewIndex < 1 || seen[c.StereoViewIndex] {
				t.Errorf("%s context %d has index %d", id, c.Index, c.StereoViewIndex)
			}
			seen[c.StereoViewIndex] = true
		}
	}
	if report.ViewCount != 6 || len(seen) != 6 {
		t.Errorf("views = %d, distinct indices %d, want 6", report.ViewCount, len(seen))
	}
	if stats.Resolved != 4 {
		t.Errorf("resolved = %d, want 4 (two visible viewports, two eyes)", stats.Resolved)
	}
}

func TestDisabledViewportHoldsNoResources(t *testing.T) {
	r := newRig(t)
	vps := oneTarget()
	off := screenViewport("floor", image.Rect(1920, 0, 3840, 1080), 0)
	off.Render.Enable = false
	vps["floor"] = off
	r.configure(testStage(), vps)
	r.render(cluster.DefaultFrameRenderOptions())

	if r.mustViewport("floor").HoldsResources() {
		t.Error("disabled viewport holds resources")
	}
}

func TestAllocationFailureExcludesPassOnly(t *testing.T) {
	r := newRig(t)
	r.backend.FailCreate(func(d resource.Desc) error {
		if strings.HasPrefix(d.Label, "wall/input") {
			return errors.New("out of memory")
		}
		return nil
	})
	vps := oneTarget()
	vps["floor"] = screenViewport("floor", image.Rect(1920, 0, 3840, 1080), 0)
	r.configure(testStage(), vps)
	_, stats := r.render(cluster.DefaultFrameRenderOptions())

	if stats.Errors != 0 {
		t.Errorf("errors = %d, want null inputs skipped silently", stats.Errors)
	}
	if stats.Resolved != 1 {
		t.Errorf("resolved = %d, want only the floor", stats.Resolved)
	}
}

func TestPassOrder(t *testing.T) {
	r := newRig(t)
	vps := oneTarget()
	vps["dome"] = domeViewport()
	r.configure(testStage(), vps)
	_, stats := r.render(cluster.DefaultFrameRenderOptions())

	var marks []string
	for _, c := range r.backend.CommandsOf(recording.OpMark) {
		marks = append(marks, c.Dst)
	}
	want := []string{
		proxy.PassTransfer, proxy.PassEffects, proxy.PassPostProcessBefore,
		proxy.PassWarpBlend, proxy.PassResolve, proxy.PassPostProcessAfter,
	}
	if !slices.Equal(marks, want) {
		t.Errorf("passes = %v, want %v", marks, want)
	}
	if stats.Warped != 1 {
		t.Errorf("warped = %d, want 1", stats.Warped)
	}

	var domeResolve string
	for _, c := range r.backend.CommandsOf(recording.OpCopy) {
		if strings.HasPrefix(c.Dst, "frame/eye0") && strings.HasPrefix(c.Src, "dome/") {
			domeResolve = c.Src
		}
	}
	if domeResolve != "dome/additional0" {
		t.Errorf("dome resolved from %q, want its warp output", domeResolve)
	}
}

func domeViewport() viewport.Config {
	dome := viewport.Config{
		Render:           viewport.DefaultRenderSettings(),
		ProjectionType:   "mesh",
		ProjectionParams: map[string]string{"screens": "wall,floor"},
	}
	dome.Render.Rect = image.Rect(1920, 0, 3840, 1080)
	return dome
}

func resolvedFrom(b *recording.Backend, prefix string) []string {
	var out []string
	for _, c := range b.CommandsOf(recording.OpCopy) {
		if strings.HasPrefix(c.Dst, "frame/eye0") && strings.HasPrefix(c.Src, prefix) {
			out = append(out, c.Src)
		}
	}
	return out
}

func TestCloseBeforeDrainKeepsWarp(t *testing.T) {
	b := recording.New()
	m := New("node_a", b, Options{})
	defer m.ReleaseResources()
	if err := m.UpdateConfiguration(testStage(), map[string]viewport.Config{"dome": domeViewport()}); err != nil {
		t.Fatalf("UpdateConfiguration: %v", err)
	}
	if _, err := m.RenderFrame(context.Background(), cluster.DefaultFrameRenderOptions()); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	// Unbinding happens before the GPU-submission context sees the frame.
	m.Close()
	if err := proxy.NewManagerProxy(b).Run(context.Background(), m.Queue()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := <-m.Queue().Results()
	if stats.Warped != 1 || stats.Errors != 0 {
		t.Errorf("drained frame: warped %d errors %d, want 1 and 0", stats.Warped, stats.Errors)
	}
	if got := resolvedFrom(b, "dome/"); !slices.Equal(got, []string{"dome/additional0"}) {
		t.Errorf("dome resolved from %v, want its warp output", got)
	}
}

func TestOverrideSourceDisabled(t *testing.T) {
	r := newRig(t)
	mirror := screenViewport("floor", image.Rect(0, 1080, 1920, 2160), 0)
	mirror.Render.OverrideViewportID = "wall"
	vps := map[string]viewport.Config{
		"wall":   screenViewport("wall", image.Rect(0, 0, 1920, 1080), 0),
		"mirror": mirror,
	}
	r.configure(testStage(), vps)

	_, stats := r.render(cluster.DefaultFrameRenderOptions())
	if got := resolvedFrom(r.backend, "wall/"); len(got) != 2 || stats.Errors != 0 {
		t.Fatalf("frame 1: resolved from wall %v, errors %d", got, stats.Errors)
	}

	wall := vps["wall"]
	wall.Render.Enable = false
	vps["wall"] = wall
	r.configure(testStage(), vps)

	for frame := 2; frame <= 3; frame++ {
		r.backend.Reset()
		_, stats := r.render(cluster.DefaultFrameRenderOptions())
		if got := resolvedFrom(r.backend, "wall/"); len(got) != 0 {
			t.Errorf("frame %d: resolved from the disabled source: %v", frame, got)
		}
		if stats.Errors != 0 {
			t.Errorf("frame %d: errors = %d, want 0", frame, stats.Errors)
		}
	}
}

type countingPostProcess struct{ after int }

func (*countingPostProcess) BeforeWarpBlend() bool { return false }
func (*countingPostProcess) AfterWarpBlend() bool  { return true }

func (*countingPostProcess) PerformBeforeWarpBlend(resource.Backend, proxy.PostProcessView) error {
	return nil
}

func (c *countingPostProcess) PerformAfterWarpBlend(resource.Backend, proxy.PostProcessView) error {
	c.after++
	return nil
}

func TestPostProcessRegistration(t *testing.T) {
	r := newRig(t)
	r.configure(testStage(), oneTarget())

	pp := &countingPostProcess{}
	r.m.RegisterPostProcess("grade", pp)
	_, stats := r.render(cluster.DefaultFrameRenderOptions())
	if stats.PostProcessAfter != 1 || !slices.Equal(r.mp.PostProcesses(), []string{"grade"}) {
		t.Errorf("after = %d, registered %v", stats.PostProcessAfter, r.mp.PostProcesses())
	}

	r.m.UnregisterPostProcess("grade")
	_, stats = r.render(cluster.DefaultFrameRenderOptions())
	if stats.PostProcessAfter != 0 || len(r.mp.PostProcesses()) != 0 {
		t.Errorf("after unregister: %d calls, registered %v", stats.PostProcessAfter, r.mp.PostProcesses())
	}
	if pp.after != 1 {
		t.Errorf("post-process ran %d times, want 1", pp.after)
	}
}

func TestClosedManager(t *testing.T) {
	m := New("node_a", recording.New(), Options{})
	m.Close()
	m.Close()
	if err := m.UpdateConfiguration(testStage(), oneTarget()); !errors.Is(err, ErrClosed) {
		t.Errorf("UpdateConfiguration = %v, want ErrClosed", err)
	}
	if _, err := m.RenderFrame(context.Background(), cluster.DefaultFrameRenderOptions()); !errors.Is(err, ErrClosed) {
		t.Errorf("RenderFrame = %v, want ErrClosed", err)
	}
}
