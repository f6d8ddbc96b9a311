// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package viewport

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrDuplicateID is returned when a viewport id is already in the set.
var ErrDuplicateID = errors.New("viewport: duplicate id")

// Handle is a stable reference to a viewport in a Set. A handle stays
// invalid after its viewport is removed, even when the slot is reused.
// The zero Handle is never valid.
type Handle struct {
	Index uint32
	Gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.Gen == 0 }

// String returns "index:gen".
func (h Handle) String() string { return fmt.Sprintf("%d:%d", h.Index, h.Gen) }

type slot struct {
	gen uint32
	vp  *Viewport
}

// Set is an arena of viewports with generation-checked handles and a
// per-slot mark bitset for mark-and-sweep passes.
//
// Iteration follows slot order, which is deterministic for a given
// sequence of inserts and removes. Set is not safe for concurrent use.
type Set struct {
	slots []slot
	free  []uint32
	marks []uint64
	count int
}

// Insert adds vp and returns its handle.
func (s *Set) Insert(vp *Viewport) (Handle, error) {
	if _, _, ok := s.Find(vp.ID()); ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrDuplicateID, vp.ID())
	}
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots)) //nolint:gosec // G115: bounded by viewport count
		s.slots = append(s.slots, slot{})
		if int(idx)/64 >= len(s.marks) {
			s.marks = append(s.marks, 0)
		}
	}
	sl := &s.slots[idx]
	sl.gen++
	if sl.gen == 0 {
		sl.gen = 1
	}
	sl.vp = vp
	s.unmark(idx)
	s.count++

	h := Handle{Index: idx, Gen: sl.gen}
	vp.handle = h
	return h, nil
}

// Get returns the viewport behind h.
func (s *Set) Get(h Handle) (*Viewport, bool) {
	if !s.valid(h) {
		return nil, false
	}
	return s.slots[h.Index].vp, true
}

// Remove deletes the viewport behind h and invalidates h.
func (s *Set) Remove(h Handle) (*Viewport, bool) {
	if !s.valid(h) {
		return nil, false
	}
	sl := &s.slots[h.Index]
	vp := sl.vp
	sl.vp = nil
	sl.gen++
	s.unmark(h.Index)
	s.free = append(s.free, h.Index)
	s.count--
	vp.handle = Handle{}
	return vp, true
}

// Find returns the viewport with the given id by linear scan.
func (s *Set) Find(id string) (Handle, *Viewport, bool) {
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.vp != nil && sl.vp.ID() == id {
			return Handle{Index: uint32(i), Gen: sl.gen}, sl.vp, true //nolint:gosec // G115: bounded by viewport count
		}
	}
	return Handle{}, nil, false
}

// Len returns the number of viewports.
func (s *Set) Len() int { return s.count }

// All returns the viewports in slot order.
func (s *Set) All() []*Viewport {
	out := make([]*Viewport, 0, s.count)
	for i := range s.slots {
		if vp := s.slots[i].vp; vp != nil {
			out = append(out, vp)
		}
	}
	return out
}

// Each calls fn for every viewport in slot order until fn returns false.
// fn must not insert into or remove from s.
func (s *Set) Each(fn func(Handle, *Viewport) bool) {
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.vp == nil {
			continue
		}
		if !fn(Handle{Index: uint32(i), Gen: sl.gen}, sl.vp) { //nolint:gosec // G115: bounded by viewport count
			return
		}
	}
}

// ClearMarks unmarks every slot.
func (s *Set) ClearMarks() {
	clear(s.marks)
}

// Mark marks the slot of h. Invalid handles are ignored.
func (s *Set) Mark(h Handle) {
	if s.valid(h) {
		s.marks[h.Index/64] |= 1 << (h.Index % 64)
	}
}

// Marked reports whether the slot of h is marked.
func (s *Set) Marked(h Handle) bool {
	return s.valid(h) && s.marks[h.Index/64]&(1<<(h.Index%64)) != 0
}

// MarkedCount returns the number of marked slots.
func (s *Set) MarkedCount() int {
	n := 0
	for _, w := range s.marks {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s *Set) unmark(idx uint32) {
	s.marks[idx/64] &^= 1 << (idx % 64)
}

func (s *Set) valid(h Handle) bool {
	return h.Gen != 0 && int(h.Index) < len(s.slots) && s.slots[h.Index].gen == h.Gen && s.slots[h.Index].vp != nil
}
