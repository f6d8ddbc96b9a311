// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/backend"
	"github.com/gogpu/cluster/config"
	"github.com/gogpu/cluster/manager"
	"github.com/gogpu/cluster/proxy"
	"github.com/gogpu/cluster/resource"

	_ "github.com/gogpu/cluster/backend/native"
	_ "github.com/gogpu/cluster/backend/recording"
	_ "github.com/gogpu/cluster/projection/camera"
	_ "github.com/gogpu/cluster/projection/mesh"
	_ "github.com/gogpu/cluster/projection/simple"
)

type runOptions struct {
	config  string
	node    string
	frames  int
	backend string
	watch   bool
	profile string
	dump    bool
}

func newRunCmd() *cobra.Command {
	var o runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render frames of one node",
		Long: "Load a cluster description and render frames of one node through the whole " +
			"pipeline. With --frames 0 it renders until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.profile != "" {
				mode, err := profileMode(o.profile)
				if err != nil {
					return err
				}
				defer profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
			}
			return run(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.config, "config", "c", "cluster.yaml", "cluster description file")
	f.StringVarP(&o.node, "node", "n", "", "node to render (default: first node)")
	f.IntVar(&o.frames, "frames", 1, "frames to render, 0 renders until interrupted")
	f.StringVar(&o.backend, "backend", "recording", "GPU backend: "+strings.Join(backend.Available(), " or "))
	f.BoolVar(&o.watch, "watch", false, "reload the description when the file changes")
	f.StringVar(&o.profile, "profile", "", "write a profile: cpu, mem, block, mutex or trace")
	f.BoolVar(&o.dump, "dump", false, "print every frame report as YAML")
	return cmd
}

func profileMode(name string) (func(*profile.Profile), error) {
	switch name {
	case "cpu":
		return profile.CPUProfile, nil
	case "mem":
		return profile.MemProfile, nil
	case "block":
		return profile.BlockProfile, nil
	case "mutex":
		return profile.MutexProfile, nil
	case "trace":
		return profile.TraceProfile, nil
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
}

func run(ctx context.Context, out io.Writer, o runOptions) error {
	w, err := config.NewWatcher(o.config)
	if err != nil {
		return err
	}
	desc := w.Current()

	node := o.node
	if node == "" {
		node = desc.NodeIDs()[0]
	}
	n, ok := desc.Node(node)
	if !ok {
		return fmt.Errorf("%w: %q", config.ErrUnknownNode, node)
	}

	b, err := backend.Open(o.backend, backend.Options{GPUCount: n.GPUCount})
	if err != nil {
		return err
	}
	defer b.Close()

	mgr := manager.New(node, b.Backend, manager.Options{
		Pool: resource.PoolConfig{BudgetMB: desc.Render.MemoryBudgetMB},
	})
	defer mgr.ReleaseResources()
	if err := apply(mgr, desc, node); err != nil {
		mgr.Close()
		return err
	}

	var current atomic.Pointer[config.Cluster]
	var changed atomic.Bool
	current.Store(desc)
	if o.watch {
		w.OnChange(func(c *config.Cluster) {
			current.Store(c)
			changed.Store(true)
		})
		w.Start()
	}

	gpu := proxy.NewManagerProxy(b.Backend)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gpu.Run(gctx, mgr.Queue())
	})

	g.Go(func() error {
		defer mgr.Close()
		for i := 0; o.frames <= 0 || i < o.frames; i++ {
			c := current.Load()
			if changed.CompareAndSwap(true, false) {
				if err := apply(mgr, c, node); err != nil {
					cluster.Logger().Warn("clusterdemo: reloaded description rejected", "err", err)
				}
			}
			opts, err := c.FrameOptions(node)
			if err != nil {
				return err
			}
			report, err := mgr.RenderFrame(gctx, opts)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			var stats proxy.ExecutionStats
			select {
			case stats = <-mgr.Queue().Results():
			case <-gctx.Done():
				return nil
			}
			if err := printFrame(out, report, stats, o.dump); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func apply(mgr *manager.Manager, c *config.Cluster, node string) error {
	vps, err := c.Viewports(node)
	if err != nil {
		return err
	}
	return mgr.UpdateConfiguration(c.BuildStage(), vps)
}

type frameDump struct {
	Frame     uint64               `yaml:"frame"`
	Viewports []string             `yaml:"viewports"`
	Excluded  []string             `yaml:"excluded,omitempty"`
	FrameRect string               `yaml:"frame_rect"`
	Targets   int                  `yaml:"targets"`
	Views     int                  `yaml:"views"`
	Cameras   []string             `yaml:"cameras,omitempty"`
	Created   []string             `yaml:"created,omitempty"`
	Deleted   []string             `yaml:"deleted,omitempty"`
	Pool      string               `yaml:"pool"`
	Execution proxy.ExecutionStats `yaml:"execution"`
}

func printFrame(out io.Writer, r *manager.FrameReport, st proxy.ExecutionStats, dump bool) error {
	if !dump {
		_, err := fmt.Fprintf(out, "frame %d: %d viewport(s), %d view(s), %d excluded, resolved %d, warped %d, errors %d\n",
			r.Frame, len(r.Viewports), r.ViewCount, len(r.Excluded), st.Resolved, st.Warped, st.Errors)
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	err := enc.Encode(frameDump{
		Frame:     r.Frame,
		Viewports: r.Viewports,
		Excluded:  r.Excluded,
		FrameRect: r.FrameRect.String(),
		Targets:   r.Targets,
		Views:     r.ViewCount,
		Cameras:   r.ICVFX.Cameras,
		Created:   r.ICVFX.Created,
		Deleted:   r.ICVFX.Deleted,
		Pool:      r.Pool.String(),
		Execution: st,
	})
	if err != nil {
		return fmt.Errorf("encode frame report: %w", err)
	}
	return enc.Close()
}
