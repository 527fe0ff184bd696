// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package specs

import (
	"github.com/ccnlab/rlcore"
)

// TensorsSpec is an insertion-ordered mapping from slot name to
// TensorSpec, used for states, actions, auxiliaries and internals.
// Nesting is expressed with slash-composed names, e.g. the action
// mask auxiliary for action "move" is named "move/mask".
type TensorsSpec struct {
	Names []string               `desc:"slot names in insertion order"`
	Specs map[string]*TensorSpec `view:"-" desc:"spec per slot name"`
}

// NewTensorsSpec returns an empty TensorsSpec.
func NewTensorsSpec() *TensorsSpec {
	return &TensorsSpec{Specs: make(map[string]*TensorSpec)}
}

// Add appends a named spec, failing with an exists error if the name
// is already present.
func (ts *TensorsSpec) Add(name string, spec *TensorSpec) error {
	if ts.Specs == nil {
		ts.Specs = make(map[string]*TensorSpec)
	}
	if _, ok := ts.Specs[name]; ok {
		return rlcore.Exists("spec name", name)
	}
	ts.Names = append(ts.Names, name)
	ts.Specs[name] = spec
	return nil
}

// Get returns the spec for name, nil if absent.
func (ts *TensorsSpec) Get(name string) *TensorSpec {
	if ts == nil || ts.Specs == nil {
		return nil
	}
	return ts.Specs[name]
}

// Len returns the number of slots.
func (ts *TensorsSpec) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.Names)
}

// Clone returns a deep copy.
func (ts *TensorsSpec) Clone() *TensorsSpec {
	cp := NewTensorsSpec()
	for _, nm := range ts.Names {
		cp.Add(nm, ts.Specs[nm].Clone())
	}
	return cp
}

// Zeros allocates zero tensors of shape (batch,) + Shape for every slot.
func (ts *TensorsSpec) Zeros(batch int) Tensors {
	vals := make(Tensors, ts.Len())
	for _, nm := range ts.Names {
		vals[nm] = ts.Specs[nm].Zeros(batch)
	}
	return vals
}

// Empty allocates zero-batch tensors for every slot.
func (ts *TensorsSpec) Empty() Tensors {
	return ts.Zeros(0)
}

// Validate checks every slot of vals against its spec with the given
// batch size.  Missing and unknown slots are assertion errors.
func (ts *TensorsSpec) Validate(kind string, vals Tensors, batch int) error {
	if ts.Len() == 0 && len(vals) == 0 {
		return nil
	}
	for _, nm := range ts.Names {
		tsr, ok := vals[nm]
		if !ok {
			return rlcore.Assertf("%s: missing %s input", kind, nm)
		}
		if err := ts.Specs[nm].Validate(kind, nm, tsr, batch); err != nil {
			return err
		}
	}
	for nm := range vals {
		if _, ok := ts.Specs[nm]; !ok {
			return rlcore.Assertf("%s: unknown input %s", kind, nm)
		}
	}
	return nil
}
