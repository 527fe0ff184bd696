// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSaverDefaults(t *testing.T) {
	sc, err := parseSaver(map[string]interface{}{"directory": "ckpt", "frequency": 10})
	require.NoError(t, err)
	assert.Equal(t, "ckpt", sc.Directory)
	assert.Equal(t, 10, sc.Frequency)
	assert.Equal(t, 5, sc.MaxCheckpoints)
	assert.Equal(t, Updates, sc.Unit)
	assert.False(t, sc.Load)
}

func TestParseSaverAllKeys(t *testing.T) {
	sc, err := parseSaver(map[string]interface{}{
		"directory":          "ckpt",
		"filename":           "run1",
		"frequency":          100,
		"load":               true,
		"max_checkpoints":    3,
		"max_hour_frequency": 2.5,
		"unit":               "episodes",
	})
	require.NoError(t, err)
	assert.Equal(t, "run1", sc.Filename)
	assert.True(t, sc.Load)
	assert.Equal(t, 3, sc.MaxCheckpoints)
	assert.Equal(t, 2.5, sc.MaxHourFrequency)
	assert.Equal(t, Episodes, sc.Unit)
}

func TestParseSaverErrors(t *testing.T) {
	_, err := parseSaver(map[string]interface{}{"directory": "d", "frequency": 1, "typo": 1})
	assert.Error(t, err)
	_, err = parseSaver(map[string]interface{}{"frequency": 1})
	assert.Error(t, err)
	_, err = parseSaver(map[string]interface{}{"directory": "d"})
	assert.Error(t, err)
	_, err = parseSaver(map[string]interface{}{"directory": "d", "frequency": 1, "unit": "epochs"})
	assert.Error(t, err)
	_, err = parseSaver(map[string]interface{}{"directory": "d", "frequency": 1, "load": "yes"})
	assert.Error(t, err)
}

func TestParseSaverJSONNumbers(t *testing.T) {
	// numbers decoded from JSON arrive as float64
	sc, err := parseSaver(map[string]interface{}{"directory": "d", "frequency": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, 7, sc.Frequency)
}

func TestParseSummarizerDefaults(t *testing.T) {
	sc, err := parseSummarizer(map[string]interface{}{"directory": "sum"})
	require.NoError(t, err)
	assert.Equal(t, "sum", sc.Directory)
	assert.Equal(t, 10.0, sc.Flush)
	assert.Equal(t, 5, sc.MaxSummaries)
	assert.False(t, sc.All)
	// default label set is just the structural trace
	assert.True(t, sc.enabled("graph"))
	assert.False(t, sc.enabled("reward"))
}

func TestParseSummarizerLabels(t *testing.T) {
	sc, err := parseSummarizer(map[string]interface{}{"directory": "sum", "labels": "all"})
	require.NoError(t, err)
	assert.True(t, sc.All)
	assert.True(t, sc.enabled("anything"))

	sc, err = parseSummarizer(map[string]interface{}{
		"directory": "sum", "labels": []interface{}{"reward", "episode-reward"}})
	require.NoError(t, err)
	assert.True(t, sc.enabled("reward"))
	assert.True(t, sc.enabled("episode-reward"))
	assert.False(t, sc.enabled("graph"))

	sc, err = parseSummarizer(map[string]interface{}{
		"directory": "sum", "labels": []string{"reward"}})
	require.NoError(t, err)
	assert.True(t, sc.enabled("reward"))
}

func TestParseSummarizerErrors(t *testing.T) {
	_, err := parseSummarizer(map[string]interface{}{"directory": "s", "typo": 1})
	assert.Error(t, err)
	_, err = parseSummarizer(map[string]interface{}{"flush": 1})
	assert.Error(t, err)
	_, err = parseSummarizer(map[string]interface{}{"directory": "s", "labels": "some"})
	assert.Error(t, err)
	_, err = parseSummarizer(map[string]interface{}{"directory": "s", "labels": []interface{}{1}})
	assert.Error(t, err)
}

func TestUnitStrings(t *testing.T) {
	for _, u := range []Unit{Timesteps, Episodes, Updates} {
		got, err := UnitFromString(u.String())
		require.NoError(t, err)
		assert.Equal(t, u, got)
	}
	_, err := UnitFromString("epochs")
	assert.Error(t, err)
}
