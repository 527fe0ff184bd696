// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package normalize

import (
	"math"

	"github.com/ccnlab/rlcore"
	"github.com/ccnlab/rlcore/specs"
	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
)

// DefaultDecay is the default exponential moving-average decay rate.
const DefaultDecay = 0.999

// ExponentialNormalization normalizes with exponential moving
// mean / variance over configurable per-sample axes (default: all but
// the last).  In dependent (training) mode it updates the stored
// statistics; in independent mode it uses them verbatim.  The decay is
// exponentiated by the batch size so the effective rate is
// batch-size-invariant.  The first dependent call commits the raw
// batch statistics without blending.
type ExponentialNormalization struct {
	InSpec *specs.TensorSpec `desc:"input spec, per-sample shape"`
	Decay  float64           `desc:"moving-average decay rate in [0,1]"`
	Axes   []int             `desc:"per-sample normalization axes, excluding the batch axis"`

	Mean           *etensor.Float32 `view:"-" desc:"moving mean, keep-dims shape (1,)+reduced"`
	Variance       *etensor.Float32 `view:"-" desc:"moving variance, same shape as Mean"`
	AfterFirstCall *etensor.Int64   `view:"-" desc:"1 after the first non-empty dependent call, persisted"`
}

// NewExponentialNormalization returns an initialized layer.  axes nil
// selects all but the last per-sample axis.  Fails with a value error
// if decay is outside [0,1].
func NewExponentialNormalization(inSpec *specs.TensorSpec, decay float64, axes []int) (*ExponentialNormalization, error) {
	if decay < 0 || decay > 1 {
		return nil, rlcore.Value("ExponentialNormalization", "decay", decay, "not in [0,1]")
	}
	en := &ExponentialNormalization{InSpec: inSpec, Decay: decay}
	rank := inSpec.Rank()
	if axes == nil {
		for a := 0; a < rank-1; a++ {
			en.Axes = append(en.Axes, a)
		}
	} else {
		en.Axes = append([]int(nil), axes...)
	}
	shp := make([]int, 1+rank)
	shp[0] = 1
	for i, d := range inSpec.Shape {
		shp[1+i] = d
	}
	for _, a := range en.Axes {
		shp[1+a] = 1
	}
	en.Mean = etensor.NewFloat32(shp, nil, nil)
	en.Variance = etensor.NewFloat32(shp, nil, nil)
	en.AfterFirstCall = etensor.NewInt64([]int{1}, nil, nil)
	return en, nil
}

// fullAxes returns the reduction axes in full-tensor coordinates,
// always including the batch axis 0.
func (en *ExponentialNormalization) fullAxes() []int {
	axes := []int{0}
	for _, a := range en.Axes {
		axes = append(axes, 1+a)
	}
	return axes
}

// Apply normalizes a batched input.  In dependent mode (independent =
// false) the moving statistics are updated in place; in independent
// mode they are read only and no state changes across any number of
// calls.
func (en *ExponentialNormalization) Apply(x *etensor.Float32, independent bool) *etensor.Float32 {
	axes := en.fullAxes()
	mean := en.Mean
	vr := en.Variance
	if !independent {
		batch := x.Dim(0)
		decay := math.Pow(en.Decay, float64(batch))
		blend := en.AfterFirstCall.Values[0] != 0 || batch == 0

		mean = meanOver(x, axes)
		if blend {
			for i := range mean.Values {
				mean.Values[i] = float32(decay)*en.Mean.Values[i] + float32(1-decay)*mean.Values[i]
			}
		}
		vr = varianceAgainst(x, mean, axes)
		if blend {
			for i := range vr.Values {
				vr.Values[i] = float32(decay)*en.Variance.Values[i] + float32(1-decay)*vr.Values[i]
			}
		}
		if en.AfterFirstCall.Values[0] == 0 && batch > 0 {
			en.AfterFirstCall.Values[0] = 1
		}
		copy(en.Mean.Values, mean.Values)
		copy(en.Variance.Values, vr.Values)
	}

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

// Variables returns the persisted statistics, keyed for inclusion in
// a Model's saved-variable tree.
func (en *ExponentialNormalization) Variables() map[string]etensor.Tensor {
	return map[string]etensor.Tensor{
		"mean":             en.Mean,
		"variance":         en.Variance,
		"after-first-call": en.AfterFirstCall,
	}
}
