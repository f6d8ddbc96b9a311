// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/gogpu/cluster"
)

// EnvPrefix prefixes environment overrides, e.g. CLUSTER_RENDER_STEREO_MODE.
const EnvPrefix = "CLUSTER"

// Load reads the cluster description at path. The format follows the file
// extension: yaml, json or toml.
func Load(path string) (*Cluster, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(v)
}

// Parse reads a cluster description of the given format from r.
func Parse(r io.Reader, format string) (*Cluster, error) {
	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", format, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("render.stereo_mode", cluster.StereoModeMono.String())
	v.SetDefault("render.render_target_ratio", 1.0)
	v.SetDefault("render.icvfx_outer_ratio", 1.0)
	v.SetDefault("render.icvfx_inner_ratio", 1.0)
	v.SetDefault("render.warp_blend", true)
	v.SetDefault("render.cross_gpu_transfer", true)
	v.SetDefault("render.full_size_frame", false)
	v.SetDefault("render.max_texture_size", cluster.DefaultMaxTextureSize)
	v.SetDefault("render.memory_budget_mb", 0)

	v.SetDefault("stage.id", "stage")
	v.SetDefault("stage.icvfx.enable", true)
}

func decode(v *viper.Viper) (*Cluster, error) {
	c := &Cluster{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	normalize(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func normalize(c *Cluster) {
	c.Render.StereoMode = strings.ToLower(c.Render.StereoMode)
	for id, n := range c.Nodes {
		if n.GPUCount < 1 {
			n.GPUCount = 1
		}
		c.Nodes[id] = n
	}
}

var stereoModes = map[string]bool{
	"": true, "mono": true, "side_by_side": true, "sbs": true, "top_bottom": true, "tb": true,
}

// Validate checks the description and returns every problem found, each
// wrapping ErrInvalid.
func (c *Cluster) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	r := &c.Render
	if !stereoModes[strings.ToLower(r.StereoMode)] {
		bad("unknown stereo mode %q", r.StereoMode)
	}
	if r.RenderTargetRatio < 0 || r.ICVFXOuterRatio < 0 || r.ICVFXInnerRatio < 0 {
		bad("negative render target ratio")
	}
	if r.MaxTextureSize != 0 && r.MaxTextureSize < cluster.MinTextureSize {
		bad("max_texture_size %d below %d", r.MaxTextureSize, cluster.MinTextureSize)
	}
	if r.MemoryBudgetMB < 0 {
		bad("negative memory budget")
	}

	if len(c.Nodes) == 0 {
		bad("no nodes")
	}
	for _, id := range c.NodeIDs() {
		n := c.Nodes[id]
		if n.Output.Width < 0 || n.Output.Height < 0 {
			bad("node %s: negative output size", id)
		}
		for vid, vp := range n.Viewports {
			validateViewport(bad, id, vid, vp, n.Viewports)
		}
	}

	screens := make(map[string]bool)
	for _, s := range c.Stage.Screens {
		if s.ID == "" || screens[s.ID] {
			bad("stage: empty or duplicate screen id %q", s.ID)
		}
		screens[s.ID] = true
	}
	cameras := make(map[string]bool)
	for _, cam := range c.Stage.Cameras {
		if cam.ID == "" || cameras[cam.ID] {
			bad("stage: empty or duplicate camera id %q", cam.ID)
		}
		cameras[cam.ID] = true
	}
	return errors.Join(errs...)
}

func validateViewport(bad func(string, ...any), node, id string, vp Viewport, all map[string]Viewport) {
	if vp.Projection.Type == "" {
		bad("node %s viewport %s: missing projection type", node, id)
	}
	if vp.Rect.Width < 0 || vp.Rect.Height < 0 {
		bad("node %s viewport %s: negative rect size", node, id)
	}
	if (vp.BufferRatio != nil && *vp.BufferRatio < 0) || (vp.RenderTargetRatio != nil && *vp.RenderTargetRatio < 0) {
		bad("node %s viewport %s: negative ratio", node, id)
	}
	for _, ref := range []string{vp.Parent, vp.OverrideViewport} {
		ref = strings.ToLower(ref)
		if ref == "" {
			continue
		}
		if _, ok := all[ref]; !ok || ref == id {
			bad("node %s viewport %s: invalid reference %q", node, id, ref)
		}
	}
}
