// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package specs

import (
	"github.com/emer/etable/etensor"
	"github.com/goki/ki/kit"
)

// ValueType is the semantic element type of a tensor slot.
type ValueType int32

const (
	// Float is a continuous float value (stored as float32).
	Float ValueType = iota

	// Int is a discrete integer value (stored as int64).
	Int

	// Bool is a boolean value (stored as bits).
	Bool

	ValueTypeN
)

var KiT_ValueType = kit.Enums.AddEnum(ValueTypeN, false, nil)

func (vt ValueType) String() string {
	switch vt {
	case Float:
		return "Float"
	case Int:
		return "Int"
	case Bool:
		return "Bool"
	}
	return "ValueTypeInvalid"
}

// Dtype returns the etensor storage type for this value type.
func (vt ValueType) Dtype() etensor.Type {
	switch vt {
	case Float:
		return etensor.FLOAT32
	case Int:
		return etensor.INT64
	case Bool:
		return etensor.BOOL
	}
	return etensor.NULL
}
