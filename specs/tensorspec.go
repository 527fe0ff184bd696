// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package specs

import (
	"math"

	"github.com/ccnlab/rlcore"
	"github.com/emer/etable/etensor"
)

// TensorSpec describes one named tensor slot: element type, per-sample
// shape (excluding the batch dimension), optional bounds, and the
// number of discrete values for Int specs.  The shape is fixed once
// the spec is in use.
type TensorSpec struct {
	Type      ValueType `desc:"element value type"`
	Shape     []int     `desc:"per-sample shape, excluding the leading batch dimension"`
	Min       []float64 `desc:"lower bound: nil = unbounded, len 1 = scalar, len Size() = elementwise"`
	Max       []float64 `desc:"upper bound, same conventions as Min"`
	NumValues int       `desc:"number of discrete values for Int specs, 0 = not discrete"`
}

// NewFloatSpec returns a Float spec with uniform scalar bounds.
// Use math.Inf bounds (or NewUnboundedFloatSpec) for unbounded ranges.
func NewFloatSpec(shape []int, min, max float64) *TensorSpec {
	return &TensorSpec{Type: Float, Shape: shape, Min: []float64{min}, Max: []float64{max}}
}

// NewUnboundedFloatSpec returns a Float spec with no bounds.
func NewUnboundedFloatSpec(shape []int) *TensorSpec {
	return &TensorSpec{Type: Float, Shape: shape}
}

// NewIntSpec returns a discrete Int spec with numValues possible values.
func NewIntSpec(shape []int, numValues int) *TensorSpec {
	return &TensorSpec{Type: Int, Shape: shape, NumValues: numValues}
}

// NewBoolSpec returns a Bool spec.
func NewBoolSpec(shape []int) *TensorSpec {
	return &TensorSpec{Type: Bool, Shape: shape}
}

// Size returns the number of elements in one sample (product of Shape).
func (ts *TensorSpec) Size() int {
	sz := 1
	for _, d := range ts.Shape {
		sz *= d
	}
	return sz
}

// Rank returns the number of per-sample dimensions.
func (ts *TensorSpec) Rank() int {
	return len(ts.Shape)
}

// Dtype returns the etensor storage type.
func (ts *TensorSpec) Dtype() etensor.Type {
	return ts.Type.Dtype()
}

// Clone returns a deep copy of the spec.
func (ts *TensorSpec) Clone() *TensorSpec {
	cp := &TensorSpec{Type: ts.Type, NumValues: ts.NumValues}
	cp.Shape = append([]int(nil), ts.Shape...)
	cp.Min = append([]float64(nil), ts.Min...)
	cp.Max = append([]float64(nil), ts.Max...)
	return cp
}

// MinAt returns the lower bound for element i of a sample,
// -Inf if unbounded.  Bounds of length 1 broadcast to all elements.
func (ts *TensorSpec) MinAt(i int) float64 {
	switch len(ts.Min) {
	case 0:
		return math.Inf(-1)
	case 1:
		return ts.Min[0]
	default:
		return ts.Min[i]
	}
}

// MaxAt returns the upper bound for element i of a sample,
// +Inf if unbounded.
func (ts *TensorSpec) MaxAt(i int) float64 {
	switch len(ts.Max) {
	case 0:
		return math.Inf(1)
	case 1:
		return ts.Max[0]
	default:
		return ts.Max[i]
	}
}

// HasMin returns true if any lower bound was supplied.
func (ts *TensorSpec) HasMin() bool { return len(ts.Min) > 0 }

// HasMax returns true if any upper bound was supplied.
func (ts *TensorSpec) HasMax() bool { return len(ts.Max) > 0 }

// New allocates a zero tensor of the given full shape (including any
// batch dimension) with the storage type of vt.
func New(vt ValueType, shape []int) etensor.Tensor {
	switch vt {
	case Int:
		return etensor.NewInt64(shape, nil, nil)
	case Bool:
		return etensor.NewBits(shape, nil, nil)
	default:
		return etensor.NewFloat32(shape, nil, nil)
	}
}

// Zeros allocates a zero tensor of shape (batch,) + Shape.
func (ts *TensorSpec) Zeros(batch int) etensor.Tensor {
	shp := make([]int, 0, 1+len(ts.Shape))
	shp = append(shp, batch)
	shp = append(shp, ts.Shape...)
	return New(ts.Type, shp)
}

// Empty allocates a zero-batch tensor, used to warm up the Model
// entry points at initialize time.
func (ts *TensorSpec) Empty() etensor.Tensor {
	return ts.Zeros(0)
}

// Validate checks a batched tensor against the spec: storage type,
// shape (batch,) + Shape, bounds per element, and discrete range for
// Int specs.  kind and name identify the input in error messages.
// Violations are assertion errors: they gate entry to the stateful
// part of the calling operation and indicate caller bugs.
func (ts *TensorSpec) Validate(kind, name string, tsr etensor.Tensor, batch int) error {
	if tsr == nil {
		return rlcore.Assertf("%s: missing %s input", kind, name)
	}
	if tsr.DataType() != ts.Dtype() {
		return rlcore.Assertf("%s: invalid type %v for %s input, expected %v",
			kind, tsr.DataType(), name, ts.Dtype())
	}
	if tsr.NumDims() != 1+len(ts.Shape) {
		return rlcore.Assertf("%s: invalid rank %d for %s input, expected %d",
			kind, tsr.NumDims(), name, 1+len(ts.Shape))
	}
	if tsr.Dim(0) != batch {
		return rlcore.Assertf("%s: invalid batch size %d for %s input, expected %d",
			kind, tsr.Dim(0), name, batch)
	}
	for i, d := range ts.Shape {
		if tsr.Dim(i+1) != d {
			return rlcore.Assertf("%s: invalid shape for %s input: dim %d is %d, expected %d",
				kind, name, i+1, tsr.Dim(i+1), d)
		}
	}
	sz := ts.Size()
	switch ts.Type {
	case Float:
		if !ts.HasMin() && !ts.HasMax() {
			return nil
		}
		for i, n := 0, tsr.Len(); i < n; i++ {
			v := tsr.FloatVal1D(i)
			mn, mx := ts.MinAt(i%sz), ts.MaxAt(i%sz)
			if !math.IsInf(mn, -1) && v < mn {
				return rlcore.Assertf("%s: value %g below min_value %g for %s input", kind, v, mn, name)
			}
			if !math.IsInf(mx, 1) && v > mx {
				return rlcore.Assertf("%s: value %g above max_value %g for %s input", kind, v, mx, name)
			}
		}
	case Int:
		if ts.NumValues <= 0 {
			return nil
		}
		for i, n := 0, tsr.Len(); i < n; i++ {
			v := int(tsr.FloatVal1D(i))
			if v < 0 || v >= ts.NumValues {
				return rlcore.Assertf("%s: value %d outside [0,%d) for %s input",
					kind, v, ts.NumValues, name)
			}
		}
	}
	return nil
}
