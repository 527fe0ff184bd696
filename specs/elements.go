// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package specs

import (
	"github.com/emer/emergent/env"
)

// FromElements converts an emergent env.Elements list (as returned by
// env.Env States / Actions) into a TensorsSpec, assigning the given
// value type and uniform scalar bounds to every element.  Use
// math.Inf bounds for unbounded float elements.
func FromElements(els env.Elements, typ ValueType, min, max float64) (*TensorsSpec, error) {
	ts := NewTensorsSpec()
	for _, el := range els {
		spec := &TensorSpec{Type: typ, Shape: append([]int(nil), el.Shape...)}
		if typ == Float {
			spec.Min = []float64{min}
			spec.Max = []float64{max}
		}
		if err := ts.Add(el.Name, spec); err != nil {
			return nil, err
		}
	}
	return ts, nil
}
