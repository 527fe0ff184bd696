// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package normalize

import (
	"github.com/ccnlab/rlcore"
	"github.com/ccnlab/rlcore/specs"
	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
)

// InstanceNormalization normalizes each sample by its own mean /
// variance over configurable per-sample axes (default: all), computed
// fresh on every call.  No state is persisted.
type InstanceNormalization struct {
	InSpec *specs.TensorSpec `desc:"input spec, per-sample shape"`
	Axes   []int             `desc:"per-sample normalization axes, nil = all"`
}

// NewInstanceNormalization returns a layer normalizing over the given
// per-sample axes, or all of them when axes is nil.
func NewInstanceNormalization(inSpec *specs.TensorSpec, axes []int) *InstanceNormalization {
	in := &InstanceNormalization{InSpec: inSpec}
	if axes != nil {
		in.Axes = append([]int(nil), axes...)
	}
	return in
}

// Apply normalizes a batched input per sample.
func (in *InstanceNormalization) Apply(x *etensor.Float32) *etensor.Float32 {
	var axes []int
	if in.Axes == nil {
		for a := 1; a < x.NumDims(); a++ {
			axes = append(axes, a)
		}
	} else {
		for _, a := range in.Axes {
			axes = append(axes, 1+a)
		}
	}
	mean := meanOver(x, axes)
	vr := varianceAgainst(x, mean, axes)
	r := newReducer(x, axes)
	y := x.Clone().(*etensor.Float32)
	eps := float32(rlcore.Epsilon)
	for i, v := range x.Values {
		oo := r.outOff(i)
		rs := float32(1) / mat32.Sqrt(mat32.Max(vr.Values[oo], eps))
		y.Values[i] = (v - mean.Values[oo]) * rs
	}
	return y
}
