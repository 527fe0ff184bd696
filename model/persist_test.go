// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFromString(t *testing.T) {
	for _, nm := range []string{"checkpoint", "saved-model", "numpy", "hdf5"} {
		sf, err := FormatFromString(nm)
		require.NoError(t, err)
		assert.Equal(t, nm, sf.String())
	}
	_, err := FormatFromString("pickle")
	assert.Error(t, err)
}

// advance runs one act/observe cycle so the saved state is non-trivial.
func advance(t *testing.T, m *Model) {
	t.Helper()
	states, aux := actInputs(m, 1)
	_, _, err := m.Act(states, aux, []int{0})
	require.NoError(t, err)
	_, _, _, err = m.Observe([]int{1}, []float64{1.5}, 0)
	require.NoError(t, err)
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestModel(t, nil)
	advance(t, m)
	advance(t, m)
	states, aux := actInputs(m, 1)
	_, _, err := m.Act(states, aux, []int{0})
	require.NoError(t, err)
	// buffer advanced past its initial value, episode in flight
	require.Equal(t, 8.0, m.Internals["counter"].FloatVal1D(0))

	path, err := m.Save(dir, "test", Checkpoint, NoAppend)
	require.NoError(t, err)
	assert.FileExists(t, path)

	// clobber state, then restore
	m.Internals["counter"].SetFloat1D(0, 0)
	m.Timesteps.Cur = 0
	m.Episodes.Cur = 0

	ts, ep, up, err := m.Restore(dir, "test", Checkpoint)
	require.NoError(t, err)
	assert.Equal(t, 3, ts)
	assert.Equal(t, 2, ep)
	assert.Equal(t, 0, up)
	assert.Equal(t, 8.0, m.Internals["counter"].FloatVal1D(0))
}

func TestCheckpointExcludesEpisodeReward(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestModel(t, nil)
	states, aux := actInputs(m, 1)
	_, _, err := m.Act(states, aux, []int{0})
	require.NoError(t, err)
	_, _, _, err = m.Observe([]int{0}, []float64{2}, 0)
	require.NoError(t, err)
	require.Equal(t, float32(2), m.EpisodeReward.Values[0])

	_, err = m.Save(dir, "test", Checkpoint, NoAppend)
	require.NoError(t, err)
	m.EpisodeReward.Values[0] = 9

	_, _, _, err = m.Restore(dir, "test", Checkpoint)
	require.NoError(t, err)
	// the accumulator is not part of the checkpoint
	assert.Equal(t, float32(9), m.EpisodeReward.Values[0])
}

func TestSaveAppendCounter(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestModel(t, nil)
	advance(t, m)
	path, err := m.Save(dir, "agent", Checkpoint, Timesteps)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "agent-1"+ckptExt), path)
}

func TestSaveDefaultDirectoryRequiresSaver(t *testing.T) {
	m, _ := newTestModel(t, nil)
	_, err := m.Save("", "", Checkpoint, NoAppend)
	assert.Error(t, err)
}

func TestRestoreSavedModelRejected(t *testing.T) {
	m, _ := newTestModel(t, nil)
	_, _, _, err := m.Restore(t.TempDir(), "x", SavedModel)
	assert.Error(t, err)
}

func TestRestoreNumpyRequiresDirectoryAndFilename(t *testing.T) {
	m, _ := newTestModel(t, nil)
	_, _, _, err := m.Restore("", "x", Numpy)
	assert.Error(t, err)
	_, _, _, err = m.Restore(t.TempDir(), "", Numpy)
	assert.Error(t, err)
}

func TestNumpyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestModel(t, nil)
	advance(t, m)
	states, aux := actInputs(m, 1)
	_, _, err := m.Act(states, aux, []int{0})
	require.NoError(t, err)

	path, err := m.Save(dir, "vars", Numpy, NoAppend)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".npz"))

	m.Internals["counter"].SetFloat1D(0, 0)
	m.Timesteps.Cur = 0

	ts, ep, _, err := m.Restore(dir, "vars", Numpy)
	require.NoError(t, err)
	assert.Equal(t, 2, ts)
	assert.Equal(t, 1, ep)
	assert.Equal(t, 8.0, m.Internals["counter"].FloatVal1D(0))
}

func TestRestoreNumpyMalformedCounter(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestModel(t, nil)

	// archive with valid variables but a two-element timesteps counter
	fp, err := os.Create(filepath.Join(dir, "bad.npz"))
	require.NoError(t, err)
	zw := zip.NewWriter(fp)
	w, err := zw.Create("internals/counter-buffer.npy")
	require.NoError(t, err)
	require.NoError(t, npyio.Write(w, []float32{7}))
	for nm, vals := range map[string][]int64{
		"timesteps": {1, 2}, "episodes": {0}, "updates": {0},
	} {
		w, err = zw.Create(nm + ".npy")
		require.NoError(t, err)
		require.NoError(t, npyio.Write(w, vals))
	}
	require.NoError(t, zw.Close())
	require.NoError(t, fp.Close())

	_, _, _, err = m.Restore(dir, "bad", Numpy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timesteps")
	assert.NotContains(t, err.Error(), "%!w")
}

func TestSavedModelExport(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestModel(t, nil)
	path, err := m.Save(dir, "deploy", SavedModel, NoAppend)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(path, "model-spec.json"))
	assert.FileExists(t, filepath.Join(path, "variables.npz"))
}

func TestLatestCheckpoint(t *testing.T) {
	dir := t.TempDir()
	for _, nm := range []string{"agent-3", "agent-10", "agent-7", "other-99"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, nm+ckptExt), []byte("x"), 0644))
	}
	path, err := latestCheckpoint(dir, "agent")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "agent-10"+ckptExt), path)

	path, err = latestCheckpoint(dir, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "other-99"+ckptExt), path)

	_, err = latestCheckpoint(dir, "missing")
	assert.Error(t, err)
}

func TestSaverLifecycle(t *testing.T) {
	dir := t.TempDir()
	states, actions := simpleSpaces(t)
	tc := newTestCore(actions)
	tc.updateEvery = 1
	m, err := NewModel(states, actions, tc, &Config{
		Saver: map[string]interface{}{
			"directory": dir, "frequency": 1, "unit": "updates", "max_checkpoints": 2,
		},
	})
	require.NoError(t, err)
	require.NoError(t, m.Initialize())

	// initial checkpoint written at initialize; the warm-up observe
	// already counted one update
	first, err := latestCheckpoint(dir, "agent")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(first, "agent-1"+ckptExt))

	// each update triggers a save; rotation keeps max_checkpoints
	for i := 0; i < 4; i++ {
		_, _, _, err = m.Observe([]int{0}, []float64{0}, 0)
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, len(entries))

	latest, err := latestCheckpoint(dir, "agent")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(latest, "agent-5"+ckptExt))
}

func TestSaverLoadAtInitialize(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestModel(t, nil)
	advance(t, m)
	_, err := m.Save(dir, "agent", Checkpoint, Timesteps)
	require.NoError(t, err)

	states, actions := simpleSpaces(t)
	m2, err := NewModel(states, actions, newTestCore(actions), &Config{
		Saver: map[string]interface{}{"directory": dir, "frequency": 1, "load": true},
	})
	require.NoError(t, err)
	require.NoError(t, m2.Initialize())
	ts, ep, _ := m2.Reset()
	assert.Equal(t, 1, ts)
	assert.Equal(t, 1, ep)
}
