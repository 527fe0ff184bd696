// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package specs

import (
	"testing"

	"github.com/emer/etable/etensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatherRowsCopies(t *testing.T) {
	src := etensor.NewFloat32([]int{4, 2}, nil, nil)
	for i := range src.Values {
		src.Values[i] = float32(i)
	}
	out := GatherRows(src, []int{0, 2}).(*etensor.Float32)
	require.Equal(t, 2, out.Dim(0))
	assert.Equal(t, []float32{0, 1, 4, 5}, out.Values)

	// mutating the gather result must not alias the source
	out.Values[0] = 99
	assert.Equal(t, float32(0), src.Values[0])
}

func TestScatterRowsLastWriteWins(t *testing.T) {
	dst := etensor.NewFloat32([]int{3, 1}, nil, nil)
	src := etensor.NewFloat32([]int{2, 1}, nil, nil)
	src.Values = []float32{10, 20}
	ScatterRows(dst, []int{1, 1}, src)
	assert.Equal(t, float32(0), dst.Values[0])
	assert.Equal(t, float32(20), dst.Values[1])
	assert.Equal(t, float32(0), dst.Values[2])
}

func TestGatherScatterRoundTrip(t *testing.T) {
	buf := etensor.NewFloat32([]int{3, 2}, nil, nil)
	for i := range buf.Values {
		buf.Values[i] = float32(i)
	}
	rows := []int{2, 0}
	g := GatherRows(buf, rows)
	ScatterRows(buf, rows, g)
	for i := range buf.Values {
		assert.Equal(t, float32(i), buf.Values[i])
	}
}

func TestCopyRowInt(t *testing.T) {
	dst := etensor.NewInt64([]int{2, 3}, nil, nil)
	src := etensor.NewInt64([]int{1, 3}, nil, nil)
	src.Values = []int64{7, 8, 9}
	CopyRow(dst, 1, src, 0)
	assert.Equal(t, []int64{0, 0, 0, 7, 8, 9}, dst.Values)
}

func TestTensorsClone(t *testing.T) {
	tsp := NewTensorsSpec()
	require.NoError(t, tsp.Add("obs", NewFloatSpec([]int{2}, 0, 1)))
	vals := tsp.Zeros(1)
	cp := vals.Clone()
	cp["obs"].SetFloat1D(0, 0.5)
	assert.Equal(t, 0.0, vals["obs"].FloatVal1D(0))
}
