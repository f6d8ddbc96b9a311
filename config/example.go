// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/cluster"
)

// Example returns a two-node cluster with an LED wall, a tracked camera
// with chromakey, light cards and a warped dome.
func Example() *Cluster {
	yes := true
	half := float32(0.5)
	return &Cluster{
		Render: RenderConfig{
			StereoMode:        cluster.StereoModeMono.String(),
			RenderTargetRatio: 1,
			ICVFXOuterRatio:   1,
			ICVFXInnerRatio:   1,
			WarpBlend:         true,
			CrossGPUTransfer:  true,
			MaxTextureSize:    cluster.DefaultMaxTextureSize,
			MemoryBudgetMB:    2048,
		},
		Stage: StageConfig{
			ID:                  "stage",
			InterocularDistance: 6.4,
			NearClip:            10,
			FarClip:             100000,
			Screens: []Screen{
				{ID: "wall_left", Placement: Placement{Location: Vector{X: 500, Y: -400}}, Width: 800, Height: 450},
				{ID: "wall_right", Placement: Placement{Location: Vector{X: 500, Y: 400}}, Width: 800, Height: 450},
				{ID: "ceiling", Placement: Placement{Location: Vector{X: 300, Z: 300}, Rotation: Rotation{Pitch: -90}}, Width: 1600, Height: 600},
			},
			Cameras: []Camera{{
				ID:          "cam_main",
				Enabled:     &yes,
				Placement:   Placement{Location: Vector{Z: 170}},
				FieldOfView: 50,
				AspectRatio: 16.0 / 9,
				Resolution:  Size{Width: 1920, Height: 1080},
				SoftEdge:    SoftEdge{Left: 0.05, Right: 0.05, Top: 0.05, Bottom: 0.05},
				Chromakey: ChromakeyConfig{
					Enable:   true,
					Source:   "render_texture",
					Color:    [4]float32{0, 1, 0, 1},
					ShowOnly: []string{"greenscreen"},
				},
			}},
			ICVFX: StageICVFX{Enable: true},
			LightCards: LightCardSet{
				Enable:   true,
				ShowOnly: []string{"softbox_a", "softbox_b"},
			},
		},
		Nodes: map[string]Node{
			"wall": {
				Output:   Size{Width: 3840, Height: 1080},
				GPUCount: 2,
				Viewports: map[string]Viewport{
					"wall_left": {
						Rect:       Rect{Width: 1920, Height: 1080},
						Projection: Projection{Type: "simple", Params: map[string]string{"screen": "wall_left"}},
						ICVFX:      ViewportICVFX{Enable: true},
					},
					"wall_right": {
						Rect:       Rect{X: 1920, Width: 1920, Height: 1080},
						GPU:        1,
						Projection: Projection{Type: "simple", Params: map[string]string{"screen": "wall_right"}},
						ICVFX:      ViewportICVFX{Enable: true},
					},
				},
			},
			"ceiling": {
				Output:   Size{Width: 1920, Height: 1080},
				GPUCount: 1,
				Remap: []Remap{{
					Src: Rect{Width: 960, Height: 1080},
					Dst: Rect{X: 960, Width: 960, Height: 1080},
				}},
				Viewports: map[string]Viewport{
					"ceiling": {
						Rect:        Rect{Width: 1920, Height: 1080},
						BufferRatio: &half,
						Projection: Projection{Type: "mesh", Params: map[string]string{
							"screens": "ceiling",
							"fov":     "120",
						}},
						PostRender: PostRenderConfig{
							Blur: BlurConfig{Mode: "gaussian", Radius: 4, Scale: 1},
							Mips: MipsConfig{Enable: true, MaxLevels: 4},
						},
					},
				},
			},
		},
	}
}

// WriteExample writes Example as YAML to w.
func WriteExample(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Example()); err != nil {
		return fmt.Errorf("config: encode example: %w", err)
	}
	return enc.Close()
}
