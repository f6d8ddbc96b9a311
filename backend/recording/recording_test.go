// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/cluster/resource"
)

func TestBackendRecordsInOrder(t *testing.T) {
	b := New()
	src, err := b.CreateTexture2D(resource.Desc{Size: image.Pt(64, 32), Label: "src"})
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}
	dst, err := b.CreateTexture2D(resource.Desc{Size: image.Pt(32, 16), Label: "dst", Mips: 3})
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}

	b.MarkPass("effects")
	if err := b.CopyOrResample(src, image.Rect(0, 0, 64, 32), dst, image.Rect(0, 0, 32, 16)); err != nil {
		t.Fatalf("CopyOrResample: %v", err)
	}
	if err := b.GenerateMips(dst); err != nil {
		t.Fatalf("GenerateMips: %v", err)
	}
	if err := b.TransferAcrossDevice(dst, image.Rect(0, 0, 32, 16), 1, 0); err != nil {
		t.Fatalf("TransferAcrossDevice: %v", err)
	}
	b.ReleaseTexture(src)

	want := []Op{OpCreate, OpCreate, OpMark, OpCopy, OpGenerateMips, OpTransfer, OpRelease}
	got := b.Commands()
	if len(got) != len(want) {
		t.Fatalf("len(Commands()) = %d, want %d: %v", len(got), len(want), got)
	}
	for i, op := range want {
		if got[i].Op != op {
			t.Errorf("Commands()[%d].Op = %v, want %v", i, got[i].Op, op)
		}
	}
	if got[3].Src != "src" || got[3].Dst != "dst" {
		t.Errorf("copy labels = %q -> %q, want src -> dst", got[3].Src, got[3].Dst)
	}
	if b.Live() != 1 {
		t.Errorf("Live() = %d, want 1", b.Live())
	}
}

func TestReleasedTextureRejected(t *testing.T) {
	b := New()
	tex, _ := b.CreateTexture2D(resource.Desc{Size: image.Pt(16, 16)})
	b.ReleaseTexture(tex)
	b.ReleaseTexture(tex)

	if n := len(b.CommandsOf(OpRelease)); n != 1 {
		t.Errorf("release recorded %d times, want 1", n)
	}
	if err := b.GenerateMips(tex); !errors.Is(err, ErrReleased) {
		t.Errorf("GenerateMips on released texture: err = %v, want ErrReleased", err)
	}
}

func TestForeignTextureRejected(t *testing.T) {
	a, b := New(), New()
	tex, _ := a.CreateTexture2D(resource.Desc{Size: image.Pt(16, 16)})
	if err := b.GenerateMips(tex); !errors.Is(err, ErrForeignTexture) {
		t.Errorf("err = %v, want ErrForeignTexture", err)
	}
	b.ReleaseTexture(tex)
	if a.Live() != 1 {
		t.Error("foreign backend released the texture")
	}
}

func TestFailCreate(t *testing.T) {
	b := New()
	boom := errors.New("out of memory")
	b.FailCreate(func(d resource.Desc) error {
		if d.Size.X > 1000 {
			return boom
		}
		return nil
	})
	if _, err := b.CreateTexture2D(resource.Desc{Size: image.Pt(2000, 10)}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want injected failure", err)
	}
	if _, err := b.CreateTexture2D(resource.Desc{Size: image.Pt(20, 10)}); err != nil {
		t.Errorf("small texture: %v", err)
	}
	b.FailCreate(nil)
	if _, err := b.CreateTexture2D(resource.Desc{Size: image.Pt(2000, 10)}); err != nil {
		t.Errorf("after hook removal: %v", err)
	}
}

func TestTextureLabelFallback(t *testing.T) {
	b := New()
	tex, _ := b.CreateTexture2D(resource.Desc{Size: image.Pt(16, 16)})
	rt := tex.(*Texture)
	if got, want := rt.Label(), "tex#1"; got != want {
		t.Errorf("Label() = %q, want %q", got, want)
	}
}
