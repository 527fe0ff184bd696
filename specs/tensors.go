// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package specs

import (
	"github.com/emer/etable/etensor"
)

// Tensors holds named tensor values matching a TensorsSpec.
// Iteration order comes from the spec's Names, not the map.
type Tensors map[string]etensor.Tensor

// Clone returns a deep copy of all tensors.
func (t Tensors) Clone() Tensors {
	cp := make(Tensors, len(t))
	for nm, tsr := range t {
		cp[nm] = tsr.Clone()
	}
	return cp
}

// RowLen returns the number of elements in one dim-0 row of tsr,
// 0 for an empty tensor.
func RowLen(tsr etensor.Tensor) int {
	if tsr.NumDims() == 0 || tsr.Dim(0) == 0 {
		return 0
	}
	return tsr.Len() / tsr.Dim(0)
}

// CopyRow copies dim-0 row srcRow of src into dim-0 row dstRow of dst.
// Row sizes must agree.
func CopyRow(dst etensor.Tensor, dstRow int, src etensor.Tensor, srcRow int) {
	rl := RowLen(dst)
	doff := dstRow * rl
	soff := srcRow * rl
	for i := 0; i < rl; i++ {
		dst.SetFloat1D(doff+i, src.FloatVal1D(soff+i))
	}
}

// GatherRows returns a new tensor whose dim-0 rows are the given rows
// of src, in order.  The result is a copy: mutating it does not alias
// src.
func GatherRows(src etensor.Tensor, rows []int) etensor.Tensor {
	shp := make([]int, src.NumDims())
	shp[0] = len(rows)
	for i := 1; i < src.NumDims(); i++ {
		shp[i] = src.Dim(i)
	}
	var vt ValueType
	switch src.DataType() {
	case etensor.INT64:
		vt = Int
	case etensor.BOOL:
		vt = Bool
	default:
		vt = Float
	}
	dst := New(vt, shp)
	for di, si := range rows {
		CopyRow(dst, di, src, si)
	}
	return dst
}

// ScatterRows writes the dim-0 rows of src into the given rows of dst,
// in order.  When an index repeats within rows, the last write wins.
func ScatterRows(dst etensor.Tensor, rows []int, src etensor.Tensor) {
	for si, di := range rows {
		CopyRow(dst, di, src, si)
	}
}
