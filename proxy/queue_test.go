// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package proxy

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/gogpu/cluster"
	"github.com/gogpu/cluster/viewport"
)

func TestQueueSingleInFlight(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := make(chan struct{})
	var frames []uint64
	runErr := make(chan error, 1)
	go func() {
		runErr <- q.Run(ctx, func(fw *FrameWork) ExecutionStats {
			<-gate
			frames = append(frames, fw.Frame)
			return ExecutionStats{Frame: fw.Frame}
		})
	}()

	if err := q.Enqueue(ctx, &FrameWork{Frame: 1}); err != nil {
		t.Fatalf("Enqueue(1): %v", err)
	}

	// Frame 1 is still executing, so frame 2 must wait.
	short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
	err := q.Enqueue(short, &FrameWork{Frame: 2})
	stop()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Enqueue while busy = %v, want DeadlineExceeded", err)
	}

	close(gate)
	if st := <-q.Results(); st.Frame != 1 {
		t.Errorf("result frame = %d, want 1", st.Frame)
	}
	if err := q.Enqueue(ctx, &FrameWork{Frame: 2}); err != nil {
		t.Fatalf("Enqueue(2): %v", err)
	}
	if st := <-q.Results(); st.Frame != 2 {
		t.Errorf("result frame = %d, want 2", st.Frame)
	}

	q.Close()
	if err := <-runErr; err != nil {
		t.Errorf("Run after Close = %v, want nil", err)
	}
	if len(frames) != 2 || frames[0] != 1 || frames[1] != 2 {
		t.Errorf("executed frames = %v, want [1 2]", frames)
	}
	if err := q.Enqueue(ctx, &FrameWork{Frame: 3}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after Close = %v, want ErrQueueClosed", err)
	}
}

func TestQueueCloseDrainsPending(t *testing.T) {
	q := NewQueue()
	if err := q.Enqueue(context.Background(), &FrameWork{Frame: 7}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Close()

	var got []uint64
	err := q.Run(context.Background(), func(fw *FrameWork) ExecutionStats {
		got = append(got, fw.Frame)
		return ExecutionStats{}
	})
	if err != nil || len(got) != 1 || got[0] != 7 {
		t.Errorf("Run = %v, executed %v, want nil and [7]", err, got)
	}
}

func TestQueueRunCanceled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Run(ctx, func(*FrameWork) ExecutionStats { return ExecutionStats{} })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestQueueResultsKeepLatest(t *testing.T) {
	q := NewQueue()
	q.publish(ExecutionStats{Frame: 1})
	q.publish(ExecutionStats{Frame: 2})
	if st := <-q.Results(); st.Frame != 2 {
		t.Errorf("result frame = %d, want 2", st.Frame)
	}
	select {
	case st := <-q.Results():
		t.Errorf("unexpected extra result %d", st.Frame)
	default:
	}
}

func TestNewSnapshotIsIndependent(t *testing.T) {
	r := viewport.DefaultRenderSettings()
	r.Rect = image.Rect(0, 0, 640, 480)
	vp := viewport.New("wall", "node_a", viewport.Config{Render: r}, &warpPolicy{})
	vp.HandleStartScene(nil)
	if err := vp.ResetPerFrameSettings(); err != nil {
		t.Fatalf("ResetPerFrameSettings: %v", err)
	}
	vp.ICVFX.Cameras = []viewport.CameraRecord{{CameraID: "cam", ViewportID: "cam_icvfx_incamera", RenderOrder: 1}}
	opts := cluster.DefaultFrameRenderOptions()
	if !vp.UpdateFrameContexts(1, &opts) {
		t.Fatal("viewport not eligible")
	}
	vp.MarkResourcesRequested()

	s, err := NewSnapshot(vp)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if vp.State() != viewport.StateProxySnapshotted {
		t.Errorf("state = %v, want %v", vp.State(), viewport.StateProxySnapshotted)
	}

	vp.ICVFX.Cameras[0].RenderOrder = 9
	vp.Render.Rect = image.Rect(0, 0, 1, 1)

	if s.ICVFX.Cameras[0].RenderOrder != 1 {
		t.Errorf("snapshot camera order changed to %d", s.ICVFX.Cameras[0].RenderOrder)
	}
	if s.Render.Rect != image.Rect(0, 0, 640, 480) {
		t.Errorf("snapshot rect changed to %v", s.Render.Rect)
	}
	if len(s.Contexts) != 1 || s.Contexts[0].RenderTarget != nil || s.Contexts[0].StereoViewIndex != 1 {
		t.Errorf("contexts = %+v", s.Contexts)
	}
	if s.Handle != vp.Handle() || s.ViewportID != "wall" {
		t.Errorf("identity = %s %v", s.ViewportID, s.Handle)
	}
}

func TestQueueCloseRacingEnqueue(t *testing.T) {
	for i := 0; i < 200; i++ {
		q := NewQueue()
		executed := make(chan uint64, 1)
		runErr := make(chan error, 1)
		go func() {
			runErr <- q.Run(context.Background(), func(fw *FrameWork) ExecutionStats {
				executed <- fw.Frame
				return ExecutionStats{}
			})
		}()

		closed := make(chan struct{})
		go func() {
			q.Close()
			close(closed)
		}()
		err := q.Enqueue(context.Background(), &FrameWork{Frame: 1})
		<-closed
		if rerr := <-runErr; rerr != nil {
			t.Fatalf("Run = %v", rerr)
		}

		switch {
		case err == nil && len(executed) != 1:
			t.Fatalf("iteration %d: accepted work was never executed", i)
		case errors.Is(err, ErrQueueClosed) && len(executed) != 0:
			t.Fatalf("iteration %d: rejected work was executed", i)
		case err != nil && !errors.Is(err, ErrQueueClosed):
			t.Fatalf("iteration %d: Enqueue = %v", i, err)
		}
	}
}
