// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"github.com/ccnlab/rlcore/specs"
	"github.com/emer/etable/etensor"
)

// Core is the algorithm strategy a Model orchestrates.  It is supplied
// at construction and receives only validated, batched inputs.
type Core interface {
	// InternalsSpec describes the recurrent internal state carried
	// between successive Act calls for one parallel slot.  Empty if
	// the algorithm is stateless.
	InternalsSpec() *specs.TensorsSpec

	// InternalsInit returns one unbatched sample per internal: the
	// value a slot resets to at initialize time and on terminal.
	InternalsInit() specs.Tensors

	// Act computes actions for a batch of slots.  parallel holds the
	// slot index per batch element.  independent marks the
	// evaluation / deployment path, which must not mutate any stored
	// algorithm state.  Returns actions and the next internal state,
	// both matching their specs.
	Act(states, internals, auxiliaries specs.Tensors, parallel *etensor.Int64, independent bool) (actions, next specs.Tensors, err error)

	// Observe receives a batched sequence of (terminal, reward) pairs
	// for sequential timesteps of one slot.  Returns true if the
	// observation triggered a parameter update.
	Observe(terminal *etensor.Int64, reward *etensor.Float32, parallel int) (bool, error)
}

// VarSource is optionally implemented by a Core to fold its own
// variables (e.g. network weights, normalizer statistics) into the
// Model's saved-variable tree.
type VarSource interface {
	Variables() map[string]etensor.Tensor
}

// CoreBase provides the default hooks for algorithms without internal
// state: empty internals and a no-op Observe.  Embed it and implement
// Act.
type CoreBase struct{}

func (cb *CoreBase) InternalsSpec() *specs.TensorsSpec {
	return specs.NewTensorsSpec()
}

func (cb *CoreBase) InternalsInit() specs.Tensors {
	return specs.Tensors{}
}

func (cb *CoreBase) Observe(terminal *etensor.Int64, reward *etensor.Float32, parallel int) (bool, error) {
	return false, nil
}
