// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package icvfx rebuilds the auxiliary viewport graph of in-camera VFX
// every frame.
//
// A rebuild is a mark-and-sweep pass over the viewport set: every internal
// viewport is marked unused, the viewports the current stage needs are
// found or created and marked used again, and whatever is still unused at
// the end is deleted. Viewports are found by name, so an unchanged stage
// yields the same viewports frame after frame.
package icvfx

import (
	"cmp"
	"image"
	"slices"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/projection"
	"github.com/gogpu/cluster/projection/camera"
	"github.com/gogpu/cluster/stage"
	"github.com/gogpu/cluster/viewport"
)

// DefaultCameraResolution is the capture size of cameras that leave
// Resolution empty.
var DefaultCameraResolution = image.Pt(1920, 1080)

// Host owns the viewport set a Builder works on.
type Host interface {
	// Viewports returns the node's viewport set.
	Viewports() *viewport.Set

	// NodeID returns the id of the cluster node.
	NodeID() string

	// ViewportDeleted is called for every swept viewport after it was
	// unbound and removed from the set. h is the handle it had.
	ViewportDeleted(h viewport.Handle, vp *viewport.Viewport)
}

// Result summarises one rebuild.
type Result struct {
	// Targets are the ICVFX targets in set order.
	Targets []string

	// Cameras are the cameras linked to at least one target, in stage
	// order.
	Cameras []string

	// Dropped are the cameras that failed validation or view calculation.
	Dropped []string

	// Created and Deleted are the internal viewports added and swept.
	Created []string
	Deleted []string
}

// Builder rebuilds the ICVFX viewport graph.
type Builder struct {
	host Host
}

// NewBuilder returns a builder working on host's viewports.
func NewBuilder(host Host) *Builder {
	return &Builder{host: host}
}

type cameraView struct {
	cam   *stage.Camera
	view  projection.View
	proj  geom.Mat4
	order int
	links []*target
}

type target struct {
	vp     *viewport.Viewport
	policy projection.ICVFXCapable
}

func (t *target) allows(f viewport.ICVFXFlags) bool { return t.vp.ICVFX.Flags&f == 0 }

// Rebuild runs one mark-and-sweep pass for stage s. The configured
// viewports must already be reset for the frame. A nil stage, or one with
// ICVFX disabled, sweeps every internal viewport.
func (b *Builder) Rebuild(s *stage.Stage) Result {
	set := b.host.Viewports()
	var res Result

	b.mark(set)
	if s != nil && s.ICVFX.Enable {
		targets, disabled := discoverTargets(set, s)
		cams := b.enumerateCameras(s, disabled, &res)
		pairCameras(targets, cams)
		for _, cv := range cams {
			if len(cv.links) > 0 && b.realizeCamera(set, s, cv, disabled, &res) {
				res.Cameras = append(res.Cameras, cv.cam.ID)
			}
		}
		if disabled&viewport.ICVFXDisableLightcard == 0 && s.LightCards.Required() {
			for _, t := range targets {
				if t.allows(viewport.ICVFXDisableLightcard) {
					b.realizeLightcards(set, s, t, &res)
				}
			}
		}
		for _, t := range targets {
			slices.SortStableFunc(t.vp.ICVFX.Cameras, func(x, y viewport.CameraRecord) int {
				return cmp.Compare(x.RenderOrder, y.RenderOrder)
			})
			res.Targets = append(res.Targets, t.vp.ID())
		}
	}
	b.sweep(set, &res)

	cluster.Logger().Debug("icvfx: graph rebuilt",
		"targets", len(res.Targets), "cameras", len(res.Cameras),
		"created", len(res.Created), "deleted", len(res.Deleted))
	return res
}

// mark flags every internal viewport unused and clears the ICVFX state
// targets carried from the previous rebuild.
func (b *Builder) mark(set *viewport.Set) {
	set.ClearMarks()
	set.Each(func(_ viewport.Handle, vp *viewport.Viewport) bool {
		if vp.IsInternal() {
			vp.ICVFX.Runtime |= viewport.RuntimeUnused
			return true
		}
		vp.ICVFX.Runtime &^= viewport.RuntimeTarget
		vp.ICVFX.Cameras = nil
		vp.ICVFX.LightcardViewportID = ""
		vp.ICVFX.LightcardOCIOViewportID = ""
		return true
	})
}

// discoverTargets returns the ICVFX targets and the features no target
// allows.
func discoverTargets(set *viewport.Set, s *stage.Stage) ([]*target, viewport.ICVFXFlags) {
	var targets []*target
	var allowed viewport.ICVFXFlags
	set.Each(func(_ viewport.Handle, vp *viewport.Viewport) bool {
		if vp.IsInternal() || !vp.Render.Enable || vp.ICVFX.Flags&viewport.ICVFXEnable == 0 || !vp.PolicyBound() {
			return true
		}
		capable, ok := projection.SupportsICVFX(vp.Policy())
		if !ok {
			return true
		}
		vp.ICVFX.Runtime |= viewport.RuntimeTarget
		targets = append(targets, &target{vp: vp, policy: capable})
		allowed |= ^vp.ICVFX.Flags & viewport.ICVFXDisableMask
		return true
	})

	disabled := viewport.ICVFXDisableMask &^ allowed
	if s.ICVFX.DisableCameras {
		disabled |= viewport.ICVFXDisableCamera
	}
	if s.ICVFX.DisableChromakey {
		disabled |= viewport.ICVFXDisableChromakey
	}
	if s.ICVFX.DisableLightcards {
		disabled |= viewport.ICVFXDisableLightcard
	}
	return targets, disabled
}

// enumerateCameras validates the stage cameras and computes their views.
// Invalid cameras are dropped without affecting the others.
func (b *Builder) enumerateCameras(s *stage.Stage, disabled viewport.ICVFXFlags, res *Result) []*cameraView {
	if disabled&viewport.ICVFXDisableCamera != 0 {
		return nil
	}
	log := cluster.Logger()
	var cams []*cameraView
	for i := range s.Cameras {
		cam := &s.Cameras[i]
		if err := cam.Validate(); err != nil {
			log.Warn("icvfx: camera dropped", "camera", cam.ID, "err", err)
			res.Dropped = append(res.Dropped, cam.ID)
			continue
		}
		cv, ok := cameraViewOf(s, cam)
		if !ok {
			log.Warn("icvfx: camera view calculation failed, dropped", "camera", cam.ID)
			res.Dropped = append(res.Dropped, cam.ID)
			continue
		}
		cv.order = len(cams)
		cams = append(cams, cv)
	}
	return cams
}

func cameraViewOf(s *stage.Stage, cam *stage.Camera) (*cameraView, bool) {
	p := camera.ForCamera(InCameraViewportID(cam.ID), cam.ID)
	if !p.HandleStartScene(s) {
		return nil, false
	}
	defer p.HandleEndScene()

	near, far := s.ClipPlanes()
	cv := &cameraView{cam: cam, view: projection.View{Near: near, Far: far, Aspect: cam.AspectRatio}}
	if !p.CalculateView(0, &cv.view) {
		return nil, false
	}
	proj, ok := p.ProjectionMatrix(0)
	cv.proj = proj
	return cv, ok
}

// pairCameras links every camera to the targets that can see it.
func pairCameras(targets []*target, cams []*cameraView) {
	for _, t := range targets {
		if !t.allows(viewport.ICVFXDisableCamera) {
			continue
		}
		for _, cv := range cams {
			if t.policy.IsCameraProjectionVisible(cv.view, cv.proj) {
				cv.links = append(cv.links, t)
			}
		}
	}
}

// realizeCamera finds or creates the capture viewports of cv and appends
// its compositing record to every linked target.
func (b *Builder) realizeCamera(set *viewport.Set, s *stage.Stage, cv *cameraView, disabled viewport.ICVFXFlags, res *Result) bool {
	cam := cv.cam
	newPolicy := func(id string) func() (projection.Policy, error) {
		return func() (projection.Policy, error) { return camera.ForCamera(id, cam.ID), nil }
	}

	incamID := InCameraViewportID(cam.ID)
	incam := b.realize(set, s, incamID, viewport.RuntimeInCamera, camera.Type, newPolicy(incamID), res)
	if incam == nil {
		return false
	}
	incam.Render = cameraRenderSettings(cam)
	if cam.Override.Enable {
		incam.PostRender.Replace = viewport.Replace{
			Enable:  true,
			Texture: cam.Override.Texture,
			Rect:    cam.Override.Rect,
		}
	}

	var chromakey *viewport.Viewport
	wantChromakey := disabled&viewport.ICVFXDisableChromakey == 0 &&
		cam.Chromakey.RequiresCapture() &&
		slices.ContainsFunc(cv.links, func(t *target) bool { return t.allows(viewport.ICVFXDisableChromakey) })
	if wantChromakey {
		ckID := ChromakeyViewportID(cam.ID)
		chromakey = b.realize(set, s, ckID, viewport.RuntimeChromakey, camera.Type, newPolicy(ckID), res)
		if chromakey != nil {
			chromakey.Render = incam.Render
			chromakey.Render.CaptureMode = viewport.CaptureChromakey
			chromakey.Render.ParentViewportID = incamID
		}
	}

	for _, t := range cv.links {
		rec := viewport.CameraRecord{
			CameraID:    cam.ID,
			ViewportID:  incamID,
			SoftEdge:    cam.SoftEdge,
			RenderOrder: cam.RenderOrder,
			Transform:   cam.Transform,
		}
		if chromakey != nil && t.allows(viewport.ICVFXDisableChromakey) {
			rec.ChromakeyViewportID = chromakey.ID()
		}
		t.vp.ICVFX.Cameras = append(t.vp.ICVFX.Cameras, rec)
	}
	return true
}

func cameraRenderSettings(cam *stage.Camera) viewport.RenderSettings {
	size := cam.Resolution
	if size.X <= 0 || size.Y <= 0 {
		size = DefaultCameraResolution
	}
	r := viewport.DefaultRenderSettings()
	r.Visible = false
	r.CameraID = cam.ID
	r.Rect = image.Rectangle{Max: size}
	r.GPUIndex = cam.GPUIndex
	r.StereoGPUIndex = cam.StereoGPUIndex
	r.BufferRatio = ratioOrUnit(cam.BufferRatio)
	r.RenderTargetRatio = ratioOrUnit(cam.RenderTargetRatio)
	r.OverlapOrder = cam.RenderOrder
	return r
}

func ratioOrUnit(r float32) float32 {
	if r <= 0 {
		return 1
	}
	return r
}

// realizeLightcards finds or creates the light-card captures of t.
func (b *Builder) realizeLightcards(set *viewport.Set, s *stage.Stage, t *target, res *Result) {
	tp := t.vp.Policy()
	newPolicy := func(id string) func() (projection.Policy, error) {
		return func() (projection.Policy, error) { return projection.New(tp.Type(), id, tp.Parameters()) }
	}
	configure := func(vp *viewport.Viewport, mode viewport.CaptureMode) {
		vp.Render = viewport.DefaultRenderSettings()
		vp.InheritFrom(t.vp)
		vp.Render.Visible = false
		vp.Render.ParentViewportID = t.vp.ID()
		vp.Render.CaptureMode = mode
		vp.Render.OverlapOrder = t.vp.Render.OverlapOrder
		if o := s.LightCards.Override; o.Enable && o.Texture != nil {
			vp.PostRender.Replace = viewport.Replace{Enable: true, Texture: o.Texture, Rect: o.Rect}
		}
	}

	id := LightcardViewportID(t.vp.ID())
	if lc := b.realize(set, s, id, viewport.RuntimeLightcard, tp.Type(), newPolicy(id), res); lc != nil {
		configure(lc, viewport.CaptureLightcard)
		t.vp.ICVFX.LightcardViewportID = id
	}
	if !s.LightCards.OCIO {
		return
	}
	ocioID := LightcardOCIOViewportID(t.vp.ID())
	if lc := b.realize(set, s, ocioID, viewport.RuntimeLightcard, tp.Type(), newPolicy(ocioID), res); lc != nil {
		configure(lc, viewport.CaptureLightcardOCIO)
		t.vp.ICVFX.LightcardOCIOViewportID = ocioID
	}
}

// realize finds the internal viewport id or creates it, binds its policy
// and marks it used. It returns nil when the name belongs to a configured
// viewport or the policy cannot be created.
func (b *Builder) realize(set *viewport.Set, s *stage.Stage, id string, role viewport.RuntimeFlags,
	policyType string, newPolicy func() (projection.Policy, error), res *Result,
) *viewport.Viewport {
	log := cluster.Logger()
	h, vp, ok := set.Find(id)
	switch {
	case ok && !vp.IsInternal():
		log.Warn("icvfx: viewport name taken by a configured viewport", "viewport", id)
		return nil

	case !ok:
		p, err := newPolicy()
		if err != nil {
			log.Warn("icvfx: cannot create projection policy", "viewport", id, "err", err)
			return nil
		}
		vp = viewport.New(id, b.host.NodeID(), viewport.Config{Render: viewport.DefaultRenderSettings()}, p)
		vp.ICVFX.Runtime = viewport.RuntimeInternal | role
		if h, err = set.Insert(vp); err != nil {
			log.Warn("icvfx: cannot insert viewport", "viewport", id, "err", err)
			return nil
		}
		_ = vp.ResetPerFrameSettings()
		vp.HandleStartScene(s)
		res.Created = append(res.Created, id)
		log.Info("icvfx: viewport created", "viewport", id, "policy", policyType)

	case vp.Policy() == nil || vp.Policy().Type() != policyType:
		p, err := newPolicy()
		if err != nil {
			log.Warn("icvfx: cannot create projection policy", "viewport", id, "err", err)
			return nil
		}
		vp.SetPolicy(p)
		vp.HandleStartScene(s)

	case !vp.PolicyBound():
		vp.HandleStartScene(s)
	}

	vp.ICVFX.Runtime &^= viewport.RuntimeUnused
	set.Mark(h)
	return vp
}

// sweep deletes every internal viewport left unmarked.
func (b *Builder) sweep(set *viewport.Set, res *Result) {
	var stale []viewport.Handle
	set.Each(func(h viewport.Handle, vp *viewport.Viewport) bool {
		if vp.IsInternal() && !set.Marked(h) {
			stale = append(stale, h)
		}
		return true
	})
	for _, h := range stale {
		vp, ok := set.Remove(h)
		if !ok {
			continue
		}
		vp.HandleEndScene()
		res.Deleted = append(res.Deleted, vp.ID())
		b.host.ViewportDeleted(h, vp)
		cluster.Logger().Info("icvfx: viewport deleted", "viewport", vp.ID())
	}
}
