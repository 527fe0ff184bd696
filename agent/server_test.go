// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ccnlab/rlcore/model"
	"github.com/ccnlab/rlcore/specs"
	"github.com/emer/etable/etensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoCore returns action 0 for every sample and carries no internals.
type echoCore struct {
	model.CoreBase
	actions *specs.TensorsSpec
}

func (ec *echoCore) Act(states, internals, auxiliaries specs.Tensors, parallel *etensor.Int64, independent bool) (specs.Tensors, specs.Tensors, error) {
	batch := 0
	for _, tsr := range states {
		batch = tsr.Dim(0)
		break
	}
	return ec.actions.Zeros(batch), specs.Tensors{}, nil
}

func testModel(t *testing.T) *model.Model {
	t.Helper()
	states := specs.NewTensorsSpec()
	require.NoError(t, states.Add("obs", specs.NewFloatSpec([]int{2}, -1, 1)))
	actions := specs.NewTensorsSpec()
	require.NoError(t, actions.Add("move", specs.NewIntSpec(nil, 3)))
	m, err := model.NewModel(states, actions, &echoCore{actions: actions}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Initialize())
	return m
}

func dialTest(t *testing.T, m *model.Model) (*WorldClient, func()) {
	t.Helper()
	srv := &SocketAgentServer{Model: m}
	hs := httptest.NewServer(srv.Handler())
	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	wc, err := DialWorld(url)
	require.NoError(t, err)
	return wc, func() {
		wc.Close()
		hs.Close()
	}
}

func TestSpecRequest(t *testing.T) {
	m := testModel(t)
	wc, done := dialTest(t, m)
	defer done()

	resp, err := wc.Call(&Request{Op: "spec"})
	require.NoError(t, err)
	require.Contains(t, resp.StateSpecs, "obs")
	assert.Equal(t, []int{2}, resp.StateSpecs["obs"].Shape)
	require.Contains(t, resp.ActionSpecs, "move")
	assert.Equal(t, 3, resp.ActionSpecs["move"].NumValues)
	require.Contains(t, resp.AuxiliarySpecs, "move/mask")
}

func TestActObserveRoundTrip(t *testing.T) {
	m := testModel(t)
	wc, done := dialTest(t, m)
	defer done()

	resp, err := wc.Act(
		map[string][]float64{"obs": {0.1, 0.2}},
		map[string][]float64{"move/mask": {1, 1, 1}},
		[]int{0})
	require.NoError(t, err)
	require.Contains(t, resp.Actions, "move")
	assert.Equal(t, []float64{0}, resp.Actions["move"])
	assert.Equal(t, 1, resp.Timesteps)

	resp, err = wc.Observe([]int{1}, []float64{2.5}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Episodes)
}

func TestActErrorsCrossTheWire(t *testing.T) {
	m := testModel(t)
	wc, done := dialTest(t, m)
	defer done()

	// all-false mask is rejected by the model and reported, not fatal
	_, err := wc.Act(
		map[string][]float64{"obs": {0, 0}},
		map[string][]float64{"move/mask": {0, 0, 0}},
		[]int{0})
	assert.Error(t, err)

	// the connection stays usable
	resp, err := wc.Call(&Request{Op: "reset"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Timesteps)
}

func TestUnknownOp(t *testing.T) {
	m := testModel(t)
	wc, done := dialTest(t, m)
	defer done()
	_, err := wc.Call(&Request{Op: "train"})
	assert.Error(t, err)
}

func TestWireSizeMismatch(t *testing.T) {
	m := testModel(t)
	wc, done := dialTest(t, m)
	defer done()
	_, err := wc.Act(
		map[string][]float64{"obs": {0.1}}, // one value short
		map[string][]float64{"move/mask": {1, 1, 1}},
		[]int{0})
	assert.Error(t, err)
}
