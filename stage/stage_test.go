// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package stage

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/cluster/geom"
	"github.com/gogpu/cluster/resource"
)

type fakeTexture struct{}

func (fakeTexture) Desc() resource.Desc { return resource.Desc{Size: image.Pt(16, 16)} }

func TestCameraValidate(t *testing.T) {
	good := Camera{ID: "cam", Enable: true, FieldOfView: 60, AspectRatio: 16.0 / 9}
	tests := []struct {
		name   string
		mutate func(*Camera)
		want   error
	}{
		{"valid", func(*Camera) {}, nil},
		{"disabled", func(c *Camera) { c.Enable = false }, ErrCameraDisabled},
		{"override without texture", func(c *Camera) { c.Override.Enable = true }, ErrMissingOverrideTexture},
		{"override with texture", func(c *Camera) { c.Override = TextureOverride{Enable: true, Texture: fakeTexture{}} }, nil},
		{"zero fov", func(c *Camera) { c.FieldOfView = 0 }, ErrInvalidLens},
		{"zero aspect", func(c *Camera) { c.AspectRatio = 0 }, ErrInvalidLens},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChromakeyRequiresCapture(t *testing.T) {
	tests := []struct {
		name string
		c    Chromakey
		want bool
	}{
		{"disabled", Chromakey{Source: ChromakeyRenderTexture, ShowOnly: []string{"a"}}, false},
		{"frame color", Chromakey{Enable: true, ShowOnly: []string{"a"}}, false},
		{"texture without show list", Chromakey{Enable: true, Source: ChromakeyRenderTexture}, false},
		{"texture with show list", Chromakey{Enable: true, Source: ChromakeyRenderTexture, ShowOnly: []string{"a"}}, true},
	}
	for _, tt := range tests {
		if got := tt.c.RequiresCapture(); got != tt.want {
			t.Errorf("%s: RequiresCapture() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLightCardsRequired(t *testing.T) {
	if (&LightCards{Enable: true}).Required() {
		t.Error("empty light-card layer required a capture")
	}
	if !(&LightCards{Enable: true, ShowOnly: []string{"card"}}).Required() {
		t.Error("show list did not require a capture")
	}
	if !(&LightCards{Enable: true, Override: TextureOverride{Enable: true, Texture: fakeTexture{}}}).Required() {
		t.Error("override texture did not require a capture")
	}
	if (&LightCards{ShowOnly: []string{"card"}}).Required() {
		t.Error("disabled layer required a capture")
	}
}

func TestScreenCorners(t *testing.T) {
	s := Screen{Transform: geom.Transform{Location: geom.V3(100, 0, 0)}, Width: 40, Height: 20}
	c := s.Corners()
	want := [4]geom.Vec3{
		geom.V3(100, -20, -10),
		geom.V3(100, 20, -10),
		geom.V3(100, 20, 10),
		geom.V3(100, -20, 10),
	}
	for i := range c {
		if !c[i].ApproxEqual(want[i], 1e-4) {
			t.Errorf("corner %d = %+v, want %+v", i, c[i], want[i])
		}
	}
}

func TestEyeLocation(t *testing.T) {
	s := Stage{ViewOrigin: geom.Transform{Location: geom.V3(0, 0, 170)}, InterocularDistance: 6.4}
	if got := s.EyeLocation(0, 1); !got.ApproxEqual(geom.V3(0, 0, 170), 1e-4) {
		t.Errorf("mono eye = %+v", got)
	}
	if got := s.EyeLocation(0, 2); !got.ApproxEqual(geom.V3(0, -3.2, 170), 1e-4) {
		t.Errorf("left eye = %+v", got)
	}
	if got := s.EyeLocation(1, 2); !got.ApproxEqual(geom.V3(0, 3.2, 170), 1e-4) {
		t.Errorf("right eye = %+v", got)
	}
}

func TestClipPlanesDefaults(t *testing.T) {
	near, far := (&Stage{}).ClipPlanes()
	if near != DefaultNearClip || far != DefaultFarClip {
		t.Errorf("ClipPlanes() = %v, %v", near, far)
	}
	near, far = (&Stage{NearClip: 1, FarClip: 500}).ClipPlanes()
	if near != 1 || far != 500 {
		t.Errorf("ClipPlanes() = %v, %v, want 1, 500", near, far)
	}
}

func TestCloneIndependent(t *testing.T) {
	s := &Stage{
		Cameras:    []Camera{{ID: "cam", Chromakey: Chromakey{ShowOnly: []string{"a"}}}},
		LightCards: LightCards{ShowOnly: []string{"card"}},
	}
	c := s.Clone()
	c.Cameras[0].ID = "other"
	c.Cameras[0].Chromakey.ShowOnly[0] = "b"
	c.LightCards.ShowOnly[0] = "x"
	if s.Cameras[0].ID != "cam" || s.Cameras[0].Chromakey.ShowOnly[0] != "a" || s.LightCards.ShowOnly[0] != "card" {
		t.Error("Clone shares state with the original")
	}
}
