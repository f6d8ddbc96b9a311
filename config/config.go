// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config holds the declarative description of a cluster: render
// settings, the stage and the viewports of every node.
//
// A [Cluster] is loaded with [Load] or kept current with a [Watcher] and is
// treated as an immutable snapshot: the pipeline only reads it through
// [Cluster.BuildStage], [Cluster.Viewports] and [Cluster.FrameOptions], which
// return fresh values on every call.
//
// Keys are case-insensitive; viewport and node ids are lower-cased when
// read from a file.
package config

import (
	"errors"
	"fmt"
	"image"
	"maps"
	"slices"
	"strings"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/stage"
	"github.com/gogpu/cluster/viewport"
)

// Configuration errors.
var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("config: invalid cluster description")

	// ErrUnknownNode is returned for a node id that is not configured.
	ErrUnknownNode = errors.New("config: unknown node")
)

// Cluster is the whole cluster description.
type Cluster struct {
	Render RenderConfig    `mapstructure:"render" yaml:"render"`
	Stage  StageConfig     `mapstructure:"stage" yaml:"stage"`
	Nodes  map[string]Node `mapstructure:"nodes" yaml:"nodes"`
}

// RenderConfig are the cluster-wide render settings.
type RenderConfig struct {
	// StereoMode is mono, side_by_side or top_bottom.
	StereoMode string `mapstructure:"stereo_mode" yaml:"stereo_mode"`

	RenderTargetRatio float32 `mapstructure:"render_target_ratio" yaml:"render_target_ratio"`
	ICVFXOuterRatio   float32 `mapstructure:"icvfx_outer_ratio" yaml:"icvfx_outer_ratio"`
	ICVFXInnerRatio   float32 `mapstructure:"icvfx_inner_ratio" yaml:"icvfx_inner_ratio"`

	WarpBlend        bool `mapstructure:"warp_blend" yaml:"warp_blend"`
	CrossGPUTransfer bool `mapstructure:"cross_gpu_transfer" yaml:"cross_gpu_transfer"`
	FullSizeFrame    bool `mapstructure:"full_size_frame" yaml:"full_size_frame"`

	MaxTextureSize int `mapstructure:"max_texture_size" yaml:"max_texture_size"`
	MemoryBudgetMB int `mapstructure:"memory_budget_mb" yaml:"memory_budget_mb"`
}

// Node is one cluster node.
type Node struct {
	Output    Size                `mapstructure:"output" yaml:"output"`
	GPUCount  int                 `mapstructure:"gpu_count" yaml:"gpu_count"`
	Remap     []Remap             `mapstructure:"remap" yaml:"remap,omitempty"`
	Viewports map[string]Viewport `mapstructure:"viewports" yaml:"viewports"`
}

// Size is a width and height in pixels.
type Size struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// Rect is a rectangle in pixels.
type Rect struct {
	X      int `mapstructure:"x" yaml:"x"`
	Y      int `mapstructure:"y" yaml:"y"`
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// Rectangle converts r.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Remap copies a region of the frame output to another place.
type Remap struct {
	Src Rect `mapstructure:"src" yaml:"src"`
	Dst Rect `mapstructure:"dst" yaml:"dst"`
}

// Viewport is the declarative description of one viewport.
type Viewport struct {
	// Enabled and Visible default to true when omitted.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Visible *bool `mapstructure:"visible" yaml:"visible,omitempty"`

	Rect   Rect   `mapstructure:"rect" yaml:"rect"`
	Camera string `mapstructure:"camera" yaml:"camera,omitempty"`

	GPU       int  `mapstructure:"gpu" yaml:"gpu,omitempty"`
	StereoGPU *int `mapstructure:"stereo_gpu" yaml:"stereo_gpu,omitempty"`
	ForceMono bool `mapstructure:"force_mono" yaml:"force_mono,omitempty"`

	// BufferRatio and RenderTargetRatio default to 1 when omitted.
	BufferRatio       *float32 `mapstructure:"buffer_ratio" yaml:"buffer_ratio,omitempty"`
	RenderTargetRatio *float32 `mapstructure:"render_target_ratio" yaml:"render_target_ratio,omitempty"`
	OverlapOrder      int      `mapstructure:"overlap_order" yaml:"overlap_order,omitempty"`

	OverrideViewport string `mapstructure:"override_viewport" yaml:"override_viewport,omitempty"`
	Parent           string `mapstructure:"parent" yaml:"parent,omitempty"`

	Projection Projection       `mapstructure:"projection" yaml:"projection"`
	ICVFX      ViewportICVFX    `mapstructure:"icvfx" yaml:"icvfx,omitempty"`
	PostRender PostRenderConfig `mapstructure:"post_render" yaml:"post_render,omitempty"`
}

// Projection selects the projection policy of a viewport.
type Projection struct {
	Type   string            `mapstructure:"type" yaml:"type"`
	Params map[string]string `mapstructure:"params" yaml:"params,omitempty"`
}

// ViewportICVFX are the ICVFX toggles of a viewport.
type ViewportICVFX struct {
	Enable           bool `mapstructure:"enable" yaml:"enable,omitempty"`
	DisableCamera    bool `mapstructure:"disable_camera" yaml:"disable_camera,omitempty"`
	DisableChromakey bool `mapstructure:"disable_chromakey" yaml:"disable_chromakey,omitempty"`
	DisableLightcard bool `mapstructure:"disable_lightcard" yaml:"disable_lightcard,omitempty"`
}

// PostRenderConfig are the deferred effects of a viewport.
type PostRenderConfig struct {
	Blur BlurConfig `mapstructure:"blur" yaml:"blur,omitempty"`
	Mips MipsConfig `mapstructure:"mips" yaml:"mips,omitempty"`
}

// BlurConfig configures blur. Mode is none, gaussian or dilate.
type BlurConfig struct {
	Mode   string  `mapstructure:"mode" yaml:"mode,omitempty"`
	Radius int     `mapstructure:"radius" yaml:"radius,omitempty"`
	Scale  float32 `mapstructure:"scale" yaml:"scale,omitempty"`
}

// MipsConfig configures mip generation.
type MipsConfig struct {
	Enable    bool `mapstructure:"enable" yaml:"enable,omitempty"`
	MaxLevels int  `mapstructure:"max_levels" yaml:"max_levels,omitempty"`
}

// Vector is a 3D vector in stage units.
type Vector struct {
	X float32 `mapstructure:"x" yaml:"x"`
	Y float32 `mapstructure:"y" yaml:"y"`
	Z float32 `mapstructure:"z" yaml:"z"`
}

// Rotation is an orientation in degrees.
type Rotation struct {
	Pitch float32 `mapstructure:"pitch" yaml:"pitch,omitempty"`
	Yaw   float32 `mapstructure:"yaw" yaml:"yaw,omitempty"`
	Roll  float32 `mapstructure:"roll" yaml:"roll,omitempty"`
}

// Placement is a location and a rotation.
type Placement struct {
	Location Vector   `mapstructure:"location" yaml:"location"`
	Rotation Rotation `mapstructure:"rotation" yaml:"rotation,omitempty"`
}

func (p Placement) transform() geom.Transform {
	return geom.Transform{
		Location: geom.V3(p.Location.X, p.Location.Y, p.Location.Z),
		Rotation: geom.Rotator{Pitch: p.Rotation.Pitch, Yaw: p.Rotation.Yaw, Roll: p.Rotation.Roll},
	}
}

// StageConfig describes the root scene object.
type StageConfig struct {
	ID                  string       `mapstructure:"id" yaml:"id"`
	ViewOrigin          Placement    `mapstructure:"view_origin" yaml:"view_origin"`
	InterocularDistance float32      `mapstructure:"interocular_distance" yaml:"interocular_distance,omitempty"`
	NearClip            float32      `mapstructure:"near_clip" yaml:"near_clip,omitempty"`
	FarClip             float32      `mapstructure:"far_clip" yaml:"far_clip,omitempty"`
	Screens             []Screen     `mapstructure:"screens" yaml:"screens"`
	Cameras             []Camera     `mapstructure:"cameras" yaml:"cameras,omitempty"`
	ICVFX               StageICVFX   `mapstructure:"icvfx" yaml:"icvfx"`
	LightCards          LightCardSet `mapstructure:"lightcards" yaml:"lightcards,omitempty"`
}

// Screen is a planar stage screen.
type Screen struct {
	ID        string    `mapstructure:"id" yaml:"id"`
	Placement Placement `mapstructure:"placement" yaml:"placement"`
	Width     float32   `mapstructure:"width" yaml:"width"`
	Height    float32   `mapstructure:"height" yaml:"height"`
}

// Camera is a tracked ICVFX camera.
type Camera struct {
	ID          string    `mapstructure:"id" yaml:"id"`
	Enabled     *bool     `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Placement   Placement `mapstructure:"placement" yaml:"placement"`
	FieldOfView float32   `mapstructure:"fov" yaml:"fov"`
	AspectRatio float32   `mapstructure:"aspect_ratio" yaml:"aspect_ratio"`
	Resolution  Size      `mapstructure:"resolution" yaml:"resolution,omitempty"`
	RenderOrder int       `mapstructure:"render_order" yaml:"render_order,omitempty"`
	SoftEdge    SoftEdge  `mapstructure:"soft_edge" yaml:"soft_edge,omitempty"`

	BufferRatio       float32 `mapstructure:"buffer_ratio" yaml:"buffer_ratio,omitempty"`
	RenderTargetRatio float32 `mapstructure:"render_target_ratio" yaml:"render_target_ratio,omitempty"`
	GPU               int     `mapstructure:"gpu" yaml:"gpu,omitempty"`
	StereoGPU         *int    `mapstructure:"stereo_gpu" yaml:"stereo_gpu,omitempty"`

	Chromakey ChromakeyConfig `mapstructure:"chromakey" yaml:"chromakey,omitempty"`
}

// SoftEdge is the frustum border blend per side.
type SoftEdge struct {
	Left   float32 `mapstructure:"left" yaml:"left,omitempty"`
	Right  float32 `mapstructure:"right" yaml:"right,omitempty"`
	Top    float32 `mapstructure:"top" yaml:"top,omitempty"`
	Bottom float32 `mapstructure:"bottom" yaml:"bottom,omitempty"`
}

// ChromakeyConfig configures a camera's chromakey. Source is frame_color
// or render_texture.
type ChromakeyConfig struct {
	Enable   bool       `mapstructure:"enable" yaml:"enable,omitempty"`
	Source   string     `mapstructure:"source" yaml:"source,omitempty"`
	Color    [4]float32 `mapstructure:"color" yaml:"color,omitempty,flow"`
	ShowOnly []string   `mapstructure:"show_only" yaml:"show_only,omitempty"`
}

// StageICVFX are the stage-wide ICVFX switches.
type StageICVFX struct {
	Enable            bool `mapstructure:"enable" yaml:"enable"`
	DisableCameras    bool `mapstructure:"disable_cameras" yaml:"disable_cameras,omitempty"`
	DisableChromakey  bool `mapstructure:"disable_chromakey" yaml:"disable_chromakey,omitempty"`
	DisableLightcards bool `mapstructure:"disable_lightcards" yaml:"disable_lightcards,omitempty"`
}

// LightCardSet configures the light-card layer.
type LightCardSet struct {
	Enable   bool     `mapstructure:"enable" yaml:"enable,omitempty"`
	ShowOnly []string `mapstructure:"show_only" yaml:"show_only,omitempty"`
	OCIO     bool     `mapstructure:"ocio" yaml:"ocio,omitempty"`
}

// NodeIDs returns the configured node ids in sorted order.
func (c *Cluster) NodeIDs() []string {
	return slices.Sorted(maps.Keys(c.Nodes))
}

// Node returns the node with the given id.
func (c *Cluster) Node(id string) (Node, bool) {
	n, ok := c.Nodes[strings.ToLower(id)]
	return n, ok
}

// FrameOptions builds the per-frame render options of node nodeID.
func (c *Cluster) FrameOptions(nodeID string) (cluster.FrameRenderOptions, error) {
	n, ok := c.Node(nodeID)
	if !ok {
		return cluster.FrameRenderOptions{}, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	r := c.Render
	opts := cluster.FrameRenderOptions{
		StereoMode:               cluster.ParseStereoMode(r.StereoMode),
		OutputSize:               image.Pt(n.Output.Width, n.Output.Height),
		UseFullSizeFrame:         r.FullSizeFrame,
		WarpBlend:                r.WarpBlend,
		CrossGPUTransfer:         r.CrossGPUTransfer,
		GPUCount:                 max(n.GPUCount, 1),
		ClusterRenderTargetRatio: r.RenderTargetRatio,
		ICVFXOuterRatio:          r.ICVFXOuterRatio,
		ICVFXInnerRatio:          r.ICVFXInnerRatio,
		MaxTextureSize:           r.MaxTextureSize,
	}
	for _, rm := range n.Remap {
		opts.Remap.Regions = append(opts.Remap.Regions, cluster.RemapRegion{
			Src: rm.Src.Rectangle(),
			Dst: rm.Dst.Rectangle(),
		})
	}
	opts.Remap.Enable = len(opts.Remap.Regions) > 0
	return opts, nil
}

// Viewports builds the viewport map of node nodeID.
func (c *Cluster) Viewports(nodeID string) (map[string]viewport.Config, error) {
	n, ok := c.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, nodeID)
	}
	out := make(map[string]viewport.Config, len(n.Viewports))
	for id, v := range n.Viewports {
		out[id] = v.config()
	}
	return out, nil
}

func (v Viewport) config() viewport.Config {
	r := viewport.DefaultRenderSettings()
	r.Enable = boolOr(v.Enabled, true)
	r.Visible = boolOr(v.Visible, true)
	r.CameraID = v.Camera
	r.Rect = v.Rect.Rectangle()
	r.GPUIndex = v.GPU
	r.StereoGPUIndex = intOr(v.StereoGPU, -1)
	r.ForceMono = v.ForceMono
	r.BufferRatio = floatOr(v.BufferRatio, 1)
	r.RenderTargetRatio = floatOr(v.RenderTargetRatio, 1)
	r.OverlapOrder = v.OverlapOrder
	r.OverrideViewportID = strings.ToLower(v.OverrideViewport)
	r.ParentViewportID = strings.ToLower(v.Parent)

	var flags viewport.ICVFXFlags
	if v.ICVFX.Enable {
		flags |= viewport.ICVFXEnable
	}
	if v.ICVFX.DisableCamera {
		flags |= viewport.ICVFXDisableCamera
	}
	if v.ICVFX.DisableChromakey {
		flags |= viewport.ICVFXDisableChromakey
	}
	if v.ICVFX.DisableLightcard {
		flags |= viewport.ICVFXDisableLightcard
	}

	return viewport.Config{
		Render: r,
		ICVFX:  flags,
		PostRender: viewport.PostRenderSettings{
			Blur: viewport.Blur{
				Mode:         parseBlurMode(v.PostRender.Blur.Mode),
				KernelRadius: v.PostRender.Blur.Radius,
				KernelScale:  v.PostRender.Blur.Scale,
			},
			GenerateMips: viewport.GenerateMips{
				Enable:    v.PostRender.Mips.Enable,
				MaxLevels: v.PostRender.Mips.MaxLevels,
			},
		},
		ProjectionType:   v.Projection.Type,
		ProjectionParams: maps.Clone(v.Projection.Params),
	}
}

func parseBlurMode(s string) viewport.BlurMode {
	switch strings.ToLower(s) {
	case "gaussian":
		return viewport.BlurGaussian
	case "dilate":
		return viewport.BlurDilate
	default:
		return viewport.BlurNone
	}
}

// BuildStage builds the root scene object.
func (c *Cluster) BuildStage() *stage.Stage {
	sc := &c.Stage
	s := &stage.Stage{
		ID:                  sc.ID,
		ViewOrigin:          sc.ViewOrigin.transform(),
		InterocularDistance: sc.InterocularDistance,
		NearClip:            sc.NearClip,
		FarClip:             sc.FarClip,
		ICVFX: stage.ICVFX{
			Enable:            sc.ICVFX.Enable,
			DisableCameras:    sc.ICVFX.DisableCameras,
			DisableChromakey:  sc.ICVFX.DisableChromakey,
			DisableLightcards: sc.ICVFX.DisableLightcards,
		},
		LightCards: stage.LightCards{
			Enable:   sc.LightCards.Enable,
			ShowOnly: slices.Clone(sc.LightCards.ShowOnly),
			OCIO:     sc.LightCards.OCIO,
		},
	}
	for _, scr := range sc.Screens {
		s.Screens = append(s.Screens, stage.Screen{
			ID:        scr.ID,
			Transform: scr.Placement.transform(),
			Width:     scr.Width,
			Height:    scr.Height,
		})
	}
	for _, cam := range sc.Cameras {
		source := stage.ChromakeyFrameColor
		if strings.EqualFold(cam.Chromakey.Source, "render_texture") {
			source = stage.ChromakeyRenderTexture
		}
		s.Cameras = append(s.Cameras, stage.Camera{
			ID:                cam.ID,
			Enable:            boolOr(cam.Enabled, true),
			Transform:         cam.Placement.transform(),
			FieldOfView:       cam.FieldOfView,
			AspectRatio:       cam.AspectRatio,
			Resolution:        image.Pt(cam.Resolution.Width, cam.Resolution.Height),
			RenderOrder:       cam.RenderOrder,
			SoftEdge:          stage.SoftEdge(cam.SoftEdge),
			BufferRatio:       cam.BufferRatio,
			RenderTargetRatio: cam.RenderTargetRatio,
			GPUIndex:          cam.GPU,
			StereoGPUIndex:    intOr(cam.StereoGPU, -1),
			Chromakey: stage.Chromakey{
				Enable:   cam.Chromakey.Enable,
				Source:   source,
				Color:    cam.Chromakey.Color,
				ShowOnly: slices.Clone(cam.Chromakey.ShowOnly),
			},
		})
	}
	return s
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float32, def float32) float32 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
