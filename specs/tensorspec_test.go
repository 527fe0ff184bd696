// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package specs

import (
	"math"
	"testing"

	"github.com/emer/etable/etensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorSpecSizeRank(t *testing.T) {
	sp := NewFloatSpec([]int{3, 2}, -1, 1)
	assert.Equal(t, 6, sp.Size())
	assert.Equal(t, 2, sp.Rank())

	scalar := NewUnboundedFloatSpec(nil)
	assert.Equal(t, 1, scalar.Size())
	assert.Equal(t, 0, scalar.Rank())
}

func TestTensorSpecZerosShape(t *testing.T) {
	sp := NewFloatSpec([]int{4}, 0, 1)
	tsr := sp.Zeros(3)
	require.Equal(t, 2, tsr.NumDims())
	assert.Equal(t, 3, tsr.Dim(0))
	assert.Equal(t, 4, tsr.Dim(1))

	empty := sp.Empty()
	assert.Equal(t, 0, empty.Dim(0))
}

func TestTensorSpecValidateShape(t *testing.T) {
	sp := NewFloatSpec([]int{4}, 0, 1)

	ok := etensor.NewFloat32([]int{2, 4}, nil, nil)
	require.NoError(t, sp.Validate("test", "x", ok, 2))

	// wrong batch
	assert.Error(t, sp.Validate("test", "x", ok, 3))
	// wrong rank
	flat := etensor.NewFloat32([]int{8}, nil, nil)
	assert.Error(t, sp.Validate("test", "x", flat, 2))
	// wrong sample dim
	wide := etensor.NewFloat32([]int{2, 5}, nil, nil)
	assert.Error(t, sp.Validate("test", "x", wide, 2))
	// wrong dtype
	ints := etensor.NewInt64([]int{2, 4}, nil, nil)
	assert.Error(t, sp.Validate("test", "x", ints, 2))
	// missing
	assert.Error(t, sp.Validate("test", "x", nil, 2))
}

func TestTensorSpecValidateBounds(t *testing.T) {
	sp := NewFloatSpec([]int{2}, -1, 1)
	tsr := etensor.NewFloat32([]int{1, 2}, nil, nil)
	tsr.Values[0] = -1
	tsr.Values[1] = 1
	require.NoError(t, sp.Validate("test", "x", tsr, 1))

	tsr.Values[1] = 1.5
	assert.Error(t, sp.Validate("test", "x", tsr, 1))
	tsr.Values[1] = 1
	tsr.Values[0] = -1.5
	assert.Error(t, sp.Validate("test", "x", tsr, 1))
}

func TestTensorSpecValidateElementwiseBounds(t *testing.T) {
	sp := &TensorSpec{Type: Float, Shape: []int{2},
		Min: []float64{0, -10}, Max: []float64{1, 10}}
	tsr := etensor.NewFloat32([]int{2, 2}, nil, nil)
	// second batch sample reuses the same per-element bounds
	tsr.Values = []float32{0.5, 9, 0.5, -9}
	require.NoError(t, sp.Validate("test", "x", tsr, 2))

	tsr.Values[3] = -11
	assert.Error(t, sp.Validate("test", "x", tsr, 2))
}

func TestTensorSpecValidateInfiniteBoundsPass(t *testing.T) {
	sp := &TensorSpec{Type: Float, Shape: []int{1},
		Min: []float64{math.Inf(-1)}, Max: []float64{math.Inf(1)}}
	tsr := etensor.NewFloat32([]int{1, 1}, nil, nil)
	tsr.Values[0] = 1e30
	assert.NoError(t, sp.Validate("test", "x", tsr, 1))
}

func TestTensorSpecValidateIntRange(t *testing.T) {
	sp := NewIntSpec(nil, 3)
	tsr := etensor.NewInt64([]int{3}, nil, nil)
	tsr.Values = []int64{0, 1, 2}
	require.NoError(t, sp.Validate("test", "x", tsr, 3))

	tsr.Values[2] = 3
	assert.Error(t, sp.Validate("test", "x", tsr, 3))
	tsr.Values[2] = -1
	assert.Error(t, sp.Validate("test", "x", tsr, 3))
}

func TestTensorSpecValidateZeroBatch(t *testing.T) {
	sp := NewFloatSpec([]int{4}, 0, 1)
	assert.NoError(t, sp.Validate("test", "x", sp.Empty(), 0))
}

func TestTensorsSpecAddDuplicate(t *testing.T) {
	tsp := NewTensorsSpec()
	require.NoError(t, tsp.Add("obs", NewFloatSpec([]int{2}, 0, 1)))
	assert.Error(t, tsp.Add("obs", NewFloatSpec([]int{2}, 0, 1)))
}

func TestTensorsSpecValidateMissingAndUnknown(t *testing.T) {
	tsp := NewTensorsSpec()
	require.NoError(t, tsp.Add("obs", NewFloatSpec([]int{2}, 0, 1)))

	assert.Error(t, tsp.Validate("test", Tensors{}, 1))

	vals := tsp.Zeros(1)
	vals["extra"] = etensor.NewFloat32([]int{1}, nil, nil)
	assert.Error(t, tsp.Validate("test", vals, 1))

	delete(vals, "extra")
	assert.NoError(t, tsp.Validate("test", vals, 1))
}
