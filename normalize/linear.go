// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package normalize

import (
	"math"

	"github.com/ccnlab/rlcore"
	"github.com/ccnlab/rlcore/specs"
	"github.com/emer/etable/etensor"
)

// LinearNormalization affinely maps a bounded input range
// [min_value, max_value] to [-2, 2].  Elements with an infinite bound
// pass through unchanged.
type LinearNormalization struct {
	InSpec *specs.TensorSpec `desc:"input spec, bounds may supply min/max"`
	Min    []float64         `desc:"resolved lower bound, len 1 or spec size"`
	Max    []float64         `desc:"resolved upper bound, len 1 or spec size"`
}

// NewLinearNormalization resolves bounds from the arguments or, when
// nil, from the input spec.  Fails with a required-argument error if a
// bound is available from neither, and with a value error if
// min >= max anywhere.
func NewLinearNormalization(min, max []float64, inSpec *specs.TensorSpec) (*LinearNormalization, error) {
	if min == nil {
		if inSpec == nil || !inSpec.HasMin() {
			return nil, rlcore.Required("LinearNormalization", "min_value")
		}
		min = inSpec.Min
	}
	if max == nil {
		if inSpec == nil || !inSpec.HasMax() {
			return nil, rlcore.Required("LinearNormalization", "max_value")
		}
		max = inSpec.Max
	}
	ln := &LinearNormalization{InSpec: inSpec, Min: min, Max: max}
	n := len(min)
	if len(max) > n {
		n = len(max)
	}
	for i := 0; i < n; i++ {
		if ln.minAt(i) >= ln.maxAt(i) {
			return nil, rlcore.Value("LinearNormalization", "min/max_value",
				[2]float64{ln.minAt(i), ln.maxAt(i)}, "not less than")
		}
	}
	return ln, nil
}

func (ln *LinearNormalization) minAt(i int) float64 {
	if len(ln.Min) == 1 {
		return ln.Min[0]
	}
	return ln.Min[i]
}

func (ln *LinearNormalization) maxAt(i int) float64 {
	if len(ln.Max) == 1 {
		return ln.Max[0]
	}
	return ln.Max[i]
}

// size returns the per-sample element count used to broadcast bounds.
func (ln *LinearNormalization) size() int {
	if len(ln.Min) > 1 {
		return len(ln.Min)
	}
	if len(ln.Max) > 1 {
		return len(ln.Max)
	}
	if ln.InSpec != nil {
		return ln.InSpec.Size()
	}
	return 1
}

// OutSpec returns the output spec: bounds become [-2, 2] elementwise
// except where a bound is infinite, which is preserved as-is.
func (ln *LinearNormalization) OutSpec() *specs.TensorSpec {
	out := &specs.TensorSpec{Type: specs.Float}
	if ln.InSpec != nil {
		out.Shape = append([]int(nil), ln.InSpec.Shape...)
	}
	sz := ln.size()
	anyInf := false
	for i := 0; i < sz; i++ {
		if math.IsInf(ln.minAt(i), 0) || math.IsInf(ln.maxAt(i), 0) {
			anyInf = true
			break
		}
	}
	if !anyInf {
		out.Min = []float64{-2}
		out.Max = []float64{2}
		return out
	}
	out.Min = make([]float64, sz)
	out.Max = make([]float64, sz)
	for i := 0; i < sz; i++ {
		if math.IsInf(ln.minAt(i), 0) || math.IsInf(ln.maxAt(i), 0) {
			out.Min[i] = ln.minAt(i)
			out.Max[i] = ln.maxAt(i)
		} else {
			out.Min[i] = -2
			out.Max[i] = 2
		}
	}
	return out
}

// Apply maps a batched input to [-2, 2]: y = 4*(x-min)/(max-min) - 2,
// identity on elements with an infinite bound.
func (ln *LinearNormalization) Apply(x *etensor.Float32) *etensor.Float32 {
	y := x.Clone().(*etensor.Float32)
	sz := ln.size()
	for i, v := range x.Values {
		mn, mx := ln.minAt(i%sz), ln.maxAt(i%sz)
		if math.IsInf(mn, 0) || math.IsInf(mx, 0) {
			continue
		}
		y.Values[i] = float32(4*(float64(v)-mn)/(mx-mn) - 2)
	}
	return y
}
