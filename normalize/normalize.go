// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package normalize provides input-feature normalization layers:
// stateless linear and instance normalization, and stateful
// exponential moving-average normalization.
package normalize

import (
	"github.com/emer/etable/etensor"
)

// reducer maps flat offsets of a tensor to offsets in a keep-dims
// reduction over the given axes (reduced dims become size 1).
type reducer struct {
	dims  []int
	red   []bool
	ostrd []int
	count int // number of elements reduced into one output cell
}

func newReducer(x *etensor.Float32, axes []int) *reducer {
	n := x.NumDims()
	r := &reducer{dims: make([]int, n), red: make([]bool, n), ostrd: make([]int, n)}
	for i := 0; i < n; i++ {
		r.dims[i] = x.Dim(i)
	}
	for _, a := range axes {
		r.red[a] = true
	}
	r.count = 1
	strd := 1
	for i := n - 1; i >= 0; i-- {
		if r.red[i] {
			r.count *= r.dims[i]
			r.ostrd[i] = 0
		} else {
			r.ostrd[i] = strd
			strd *= r.dims[i]
		}
	}
	return r
}

// outShape returns the keep-dims output shape.
func (r *reducer) outShape() []int {
	shp := make([]int, len(r.dims))
	for i, d := range r.dims {
		if r.red[i] {
			shp[i] = 1
		} else {
			shp[i] = d
		}
	}
	return shp
}

// outOff returns the output offset for flat input offset off.
func (r *reducer) outOff(off int) int {
	oo := 0
	for i := len(r.dims) - 1; i >= 0; i-- {
		if r.dims[i] == 0 {
			return 0
		}
		c := off % r.dims[i]
		off /= r.dims[i]
		oo += c * r.ostrd[i]
	}
	return oo
}

// meanOver computes the keep-dims mean of x over the given axes
// (axes index the full shape, including any batch dimension).
func meanOver(x *etensor.Float32, axes []int) *etensor.Float32 {
	r := newReducer(x, axes)
	out := etensor.NewFloat32(r.outShape(), nil, nil)
	if r.count == 0 {
		return out
	}
	for i, v := range x.Values {
		out.Values[r.outOff(i)] += v
	}
	cnt := float32(r.count)
	for i := range out.Values {
		out.Values[i] /= cnt
	}
	return out
}

// varianceAgainst computes the keep-dims mean squared difference of x
// from the given (already keep-dims shaped) mean, over the same axes.
func varianceAgainst(x, mean *etensor.Float32, axes []int) *etensor.Float32 {
	r := newReducer(x, axes)
	out := etensor.NewFloat32(r.outShape(), nil, nil)
	if r.count == 0 {
		return out
	}
	for i, v := range x.Values {
		oo := r.outOff(i)
		d := v - mean.Values[oo]
		out.Values[oo] += d * d
	}
	cnt := float32(r.count)
	for i := range out.Values {
		out.Values[i] /= cnt
	}
	return out
}
