// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package recording provides a resource.Backend that records commands
// instead of executing them.
//
// Textures are plain descriptors with an identity. Every backend call is
// appended to an ordered command log that tests and dry runs inspect:
//
//	b := recording.New()
//	pool := resource.NewPool(b, resource.PoolConfig{})
//	...
//	for _, cmd := range b.Commands() {
//	    fmt.Println(cmd)
//	}
//
// Failures can be injected per operation to exercise the degradation paths
// of the pipeline.
package recording

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/cluster/backend"
	"github.com/gogpu/cluster/resource"
)

func init() {
	backend.Register(backend.Recording, func(backend.Options) (resource.Backend, func(), error) {
		return New(), nil, nil
	})
}

// ErrForeignTexture is returned when a texture from another backend is used.
var ErrForeignTexture = errors.New("recording: texture not created by this backend")

// ErrReleased is returned when a released texture is used.
var ErrReleased = errors.New("recording: texture already released")

// Op identifies a recorded backend operation.
type Op uint8

const (
	OpCreate       Op = iota // CreateTexture2D
	OpRelease                // ReleaseTexture
	OpCopy                   // CopyOrResample
	OpGenerateMips           // GenerateMips
	OpTransfer               // TransferAcrossDevice
	OpMark                   // MarkPass
)

var opNames = [...]string{
	OpCreate:       "Create",
	OpRelease:      "Release",
	OpCopy:         "Copy",
	OpGenerateMips: "GenerateMips",
	OpTransfer:     "Transfer",
	OpMark:         "Mark",
}

// String returns the operation name.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Command is one recorded backend call.
type Command struct {
	Op Op

	// Src and Dst are texture labels. Create, Release, GenerateMips and
	// Transfer only set Dst. Mark stores the pass name in Dst.
	Src, Dst string

	SrcRect, DstRect image.Rectangle

	// From and To are device indices of a transfer.
	From, To int
}

// String formats the command for logs and test failures.
func (c Command) String() string {
	switch c.Op {
	case OpCopy:
		return fmt.Sprintf("Copy %s%v -> %s%v", c.Src, c.SrcRect, c.Dst, c.DstRect)
	case OpTransfer:
		return fmt.Sprintf("Transfer %s%v gpu%d -> gpu%d", c.Dst, c.DstRect, c.From, c.To)
	default:
		return c.Op.String() + " " + c.Dst
	}
}

// Texture is a recorded texture.
type Texture struct {
	id       uint64
	desc     resource.Desc
	owner    *Backend
	released bool
}

// ID returns the backend-unique identity of t.
func (t *Texture) ID() uint64 { return t.id }

// Desc returns the descriptor t was created with.
func (t *Texture) Desc() resource.Desc { return t.desc }

// Label returns the descriptor label, or "tex#<id>" when it is empty.
func (t *Texture) Label() string {
	if t.desc.Label != "" {
		return t.desc.Label
	}
	return fmt.Sprintf("tex#%d", t.id)
}

// Backend records every call it receives.
//
// Backend is safe for concurrent use.
type Backend struct {
	mu       sync.Mutex
	nextID   uint64
	commands []Command
	live     map[uint64]*Texture

	failCreate func(resource.Desc) error
	failCopy   func(src, dst resource.Texture) error
}

var _ resource.Backend = (*Backend)(nil)
var _ resource.PassMarker = (*Backend)(nil)

// New returns an empty recording backend.
func New() *Backend {
	return &Backend{live: make(map[uint64]*Texture)}
}

// FailCreate installs a hook that can reject texture creation. A nil hook
// removes it.
func (b *Backend) FailCreate(fn func(resource.Desc) error) {
	b.mu.Lock()
	b.failCreate = fn
	b.mu.Unlock()
}

// FailCopy installs a hook that can reject CopyOrResample.
func (b *Backend) FailCopy(fn func(src, dst resource.Texture) error) {
	b.mu.Lock()
	b.failCopy = fn
	b.mu.Unlock()
}

// CreateTexture2D records and returns a new texture.
func (b *Backend) CreateTexture2D(desc resource.Desc) (resource.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failCreate != nil {
		if err := b.failCreate(desc); err != nil {
			return nil, err
		}
	}
	b.nextID++
	t := &Texture{id: b.nextID, desc: desc, owner: b}
	b.live[t.id] = t
	b.commands = append(b.commands, Command{Op: OpCreate, Dst: t.Label(), DstRect: desc.Bounds()})
	return t, nil
}

// ReleaseTexture records the release of tex.
func (b *Backend) ReleaseTexture(tex resource.Texture) {
	t, ok := tex.(*Texture)
	if !ok || t == nil || t.owner != b {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.released {
		return
	}
	t.released = true
	delete(b.live, t.id)
	b.commands = append(b.commands, Command{Op: OpRelease, Dst: t.Label()})
}

// CopyOrResample records a copy between two textures.
func (b *Backend) CopyOrResample(src resource.Texture, srcRect image.Rectangle, dst resource.Texture, dstRect image.Rectangle) error {
	s, err := b.own(src)
	if err != nil {
		return err
	}
	d, err := b.own(dst)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failCopy != nil {
		if err := b.failCopy(src, dst); err != nil {
			return err
		}
	}
	b.commands = append(b.commands, Command{
		Op: OpCopy, Src: s.Label(), Dst: d.Label(), SrcRect: srcRect, DstRect: dstRect,
	})
	return nil
}

// GenerateMips records mip generation for tex.
func (b *Backend) GenerateMips(tex resource.Texture) error {
	t, err := b.own(tex)
	if err != nil {
		return err
	}
	b.record(Command{Op: OpGenerateMips, Dst: t.Label()})
	return nil
}

// TransferAcrossDevice records a cross-device transfer.
func (b *Backend) TransferAcrossDevice(tex resource.Texture, rect image.Rectangle, from, to int) error {
	t, err := b.own(tex)
	if err != nil {
		return err
	}
	b.record(Command{Op: OpTransfer, Dst: t.Label(), DstRect: rect, From: from, To: to})
	return nil
}

// MarkPass records a pass boundary.
func (b *Backend) MarkPass(name string) {
	b.record(Command{Op: OpMark, Dst: name})
}

// Commands returns a copy of the command log.
func (b *Backend) Commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Command, len(b.commands))
	copy(out, b.commands)
	return out
}

// CommandsOf returns the recorded commands with operation op.
func (b *Backend) CommandsOf(op Op) []Command {
	var out []Command
	for _, c := range b.Commands() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the command log. Live textures stay live.
func (b *Backend) Reset() {
	b.mu.Lock()
	b.commands = nil
	b.mu.Unlock()
}

// Live returns the number of textures created and not yet released.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

func (b *Backend) record(c Command) {
	b.mu.Lock()
	b.commands = append(b.commands, c)
	b.mu.Unlock()
}

func (b *Backend) own(tex resource.Texture) (*Texture, error) {
	t, ok := tex.(*Texture)
	if !ok || t == nil || t.owner != b {
		return nil, ErrForeignTexture
	}
	b.mu.Lock()
	released := t.released
	b.mu.Unlock()
	if released {
		return nil, fmt.Errorf("%w: %s", ErrReleased, t.Label())
	}
	return t, nil
}
