// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package projection

import (
	"fmt"
	"maps"
	"strconv"

	"github.com/gogpu/cluster/geom"
)

// maxContexts bounds the eye contexts a policy stores projections for.
const maxContexts = 2

// Base implements the bookkeeping part of Policy: identity, parameters and
// the per-context projection cache. Policies embed it.
type Base struct {
	typ    string
	id     string
	params map[string]string

	proj  [maxContexts]geom.Mat4
	valid [maxContexts]bool
}

// NewBase returns a Base for a policy of type typ serving viewport id.
func NewBase(typ, id string, params map[string]string) Base {
	return Base{typ: typ, id: id, params: params}
}

// Type returns the policy type name.
func (b *Base) Type() string { return b.typ }

// ViewportID returns the served viewport id.
func (b *Base) ViewportID() string { return b.id }

// Parameters returns a copy of the creation parameters.
func (b *Base) Parameters() map[string]string { return maps.Clone(b.params) }

// Param returns parameter key, or def when it is absent.
func (b *Base) Param(key, def string) string {
	if v, ok := b.params[key]; ok && v != "" {
		return v
	}
	return def
}

// FloatParam parses parameter key as a float, returning def when absent.
func (b *Base) FloatParam(key string, def float32) (float32, error) {
	v, ok := b.params[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, fmt.Errorf("projection: parameter %s=%q: %w", key, v, err)
	}
	return float32(f), nil
}

// SetProjection stores the projection of context ctx.
func (b *Base) SetProjection(ctx int, m geom.Mat4) {
	if ctx < 0 || ctx >= maxContexts {
		return
	}
	b.proj[ctx] = m
	b.valid[ctx] = true
}

// InvalidateProjection clears the projection of context ctx.
func (b *Base) InvalidateProjection(ctx int) {
	if ctx >= 0 && ctx < maxContexts {
		b.valid[ctx] = false
	}
}

// ResetProjections clears every stored projection.
func (b *Base) ResetProjections() {
	b.valid = [maxContexts]bool{}
}

// ProjectionMatrix returns the stored projection of context ctx.
func (b *Base) ProjectionMatrix(ctx int) (geom.Mat4, bool) {
	if ctx < 0 || ctx >= maxContexts || !b.valid[ctx] {
		return geom.Mat4{}, false
	}
	return b.proj[ctx], true
}
