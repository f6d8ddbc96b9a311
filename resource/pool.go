// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/cluster"
)

// Pool errors.
var (
	// ErrCycleActive is returned when a reallocation cycle is begun while
	// one is already running for the same kind.
	ErrCycleActive = errors.New("resource: reallocation cycle already active")

	// ErrNoCycle is returned when allocating or finishing outside a cycle.
	ErrNoCycle = errors.New("resource: no active reallocation cycle")

	// ErrBudgetExceeded is returned when an allocation would exceed the
	// pool's memory budget.
	ErrBudgetExceeded = errors.New("resource: memory budget exceeded")

	// ErrInvalidDesc is returned for descriptors with an empty size.
	ErrInvalidDesc = errors.New("resource: invalid texture descriptor")

	// ErrInvalidKind is returned for an unknown resource kind.
	ErrInvalidKind = errors.New("resource: invalid resource kind")

	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("resource: pool closed")
)

// Resource is a pooled texture. A nil *Resource is valid everywhere and
// means the pass that would use it is skipped.
type Resource struct {
	id       uint64
	kind     Kind
	desc     Desc
	tex      Texture
	lastUsed uint64
}

// ID returns the pool-unique identifier of r, or 0 for nil.
func (r *Resource) ID() uint64 {
	if r == nil {
		return 0
	}
	return r.id
}

// Kind returns the pool kind r belongs to.
func (r *Resource) Kind() Kind {
	if r == nil {
		return kindCount
	}
	return r.kind
}

// Desc returns the normalized descriptor of r.
func (r *Resource) Desc() Desc {
	if r == nil {
		return Desc{}
	}
	return r.desc
}

// Texture returns the backend texture of r, or nil for a nil resource.
func (r *Resource) Texture() Texture {
	if r == nil {
		return nil
	}
	return r.tex
}

// KindStats are the counters of one pool kind.
type KindStats struct {
	// Live is the number of resources currently held.
	Live int

	// Created counts textures created by the backend.
	Created uint64

	// Reused counts allocations satisfied by a previous generation.
	Reused uint64

	// Released counts resources swept at the end of a cycle.
	Released uint64

	// Failed counts allocations that returned nil.
	Failed uint64
}

// Stats is a snapshot of pool usage.
type Stats struct {
	Kinds       [kindCount]KindStats
	UsedBytes   uint64
	BudgetBytes uint64
}

// String returns a compact human-readable summary.
func (s Stats) String() string {
	rt, tx := s.Kinds[KindRenderTarget], s.Kinds[KindTexture]
	return fmt.Sprintf("Pool[rt %d live/%d new/%d reused, tex %d live/%d new/%d reused, %d MB]",
		rt.Live, rt.Created, rt.Reused,
		tx.Live, tx.Created, tx.Reused,
		s.UsedBytes/(1024*1024))
}

type kindPool struct {
	gen     uint64
	active  bool
	entries []*Resource
	stats   KindStats
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	// BudgetMB caps the estimated memory of all pooled resources.
	// Zero disables the budget.
	BudgetMB int
}

// Pool reuses textures across frames in generation-tagged cycles.
//
// Pool is safe for concurrent use, but reallocation cycles of one kind must
// not interleave: a second BeginReallocate before FinishReallocate fails.
type Pool struct {
	mu      sync.Mutex
	backend Backend
	budget  uint64
	used    uint64
	nextID  uint64
	kinds   [kindCount]kindPool
	retired []Texture
	closed  bool
}

// NewPool returns a pool creating textures through backend.
func NewPool(backend Backend, cfg PoolConfig) *Pool {
	p := &Pool{backend: backend}
	if cfg.BudgetMB > 0 {
		p.budget = uint64(cfg.BudgetMB) * 1024 * 1024
	}
	return p
}

// Backend returns the backend the pool allocates from.
func (p *Pool) Backend() Backend { return p.backend }

// BeginReallocate starts a new generation for kind k.
func (p *Pool) BeginReallocate(k Kind) error {
	if !k.valid() {
		return ErrInvalidKind
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	kp := &p.kinds[k]
	if kp.active {
		return fmt.Errorf("%w: %s", ErrCycleActive, k)
	}
	kp.active = true
	kp.gen++
	return nil
}

// Allocate returns a resource matching desc, reusing one from the previous
// generation when possible. It returns nil and logs a warning on any
// failure; callers skip the work that needed the resource.
func (p *Pool) Allocate(k Kind, desc Desc) *Resource {
	r, err := p.TryAllocate(k, desc)
	if err != nil {
		cluster.Logger().Warn("resource: allocation skipped",
			"kind", k.String(), "label", desc.Label,
			"width", desc.Size.X, "height", desc.Size.Y, "err", err)
		return nil
	}
	return r
}

// TryAllocate is Allocate with the failure reason returned.
func (p *Pool) TryAllocate(k Kind, desc Desc) (*Resource, error) {
	if !k.valid() {
		return nil, ErrInvalidKind
	}
	desc = desc.Normalized(k)
	if err := desc.validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	kp := &p.kinds[k]
	if !kp.active {
		return nil, fmt.Errorf("%w: %s", ErrNoCycle, k)
	}

	key := desc.key()
	for _, r := range kp.entries {
		if r.lastUsed != kp.gen && r.desc.key() == key {
			r.lastUsed = kp.gen
			r.desc.Label = desc.Label
			kp.stats.Reused++
			return r, nil
		}
	}

	size := desc.Bytes()
	if p.budget > 0 && p.used+size > p.budget {
		kp.stats.Failed++
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrBudgetExceeded, size, p.used, p.budget)
	}

	tex, err := p.backend.CreateTexture2D(desc)
	if err != nil {
		kp.stats.Failed++
		return nil, fmt.Errorf("resource: create %s: %w", desc.Label, err)
	}

	p.nextID++
	r := &Resource{id: p.nextID, kind: k, desc: desc, tex: tex, lastUsed: kp.gen}
	kp.entries = append(kp.entries, r)
	kp.stats.Created++
	p.used += size
	return r, nil
}

// FinishReallocate ends the cycle of kind k. Resources not allocated during
// the cycle leave the pool; their textures wait in the retired list.
func (p *Pool) FinishReallocate(k Kind) error {
	if !k.valid() {
		return ErrInvalidKind
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	kp := &p.kinds[k]
	if !kp.active {
		return fmt.Errorf("%w: %s", ErrNoCycle, k)
	}
	kp.active = false

	kept := kp.entries[:0]
	for _, r := range kp.entries {
		if r.lastUsed == kp.gen {
			kept = append(kept, r)
			continue
		}
		p.used -= r.desc.Bytes()
		p.retired = append(p.retired, r.tex)
		kp.stats.Released++
	}
	clear(kp.entries[len(kept):])
	kp.entries = kept
	return nil
}

// TakeRetired returns and forgets the textures swept since the last call.
// The caller releases them once no in-flight work can reference them.
func (p *Pool) TakeRetired() []Texture {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.retired
	p.retired = nil
	return out
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{UsedBytes: p.used, BudgetBytes: p.budget}
	for k := range p.kinds {
		s.Kinds[k] = p.kinds[k].stats
		s.Kinds[k].Live = len(p.kinds[k].entries)
	}
	return s
}

// Close releases every pooled and retired texture. The GPU-submission
// context must be idle.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	textures := p.retired
	p.retired = nil
	for k := range p.kinds {
		for _, r := range p.kinds[k].entries {
			textures = append(textures, r.tex)
		}
		p.kinds[k].entries = nil
		p.kinds[k].active = false
	}
	p.used = 0
	p.mu.Unlock()

	for _, tex := range textures {
		p.backend.ReleaseTexture(tex)
	}
}
