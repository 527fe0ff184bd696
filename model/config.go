// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"sort"

	"github.com/ccnlab/rlcore"
	"github.com/goki/ki/kit"
)

// Unit selects which counter drives checkpoint frequency and filename
// suffixes.
type Unit int32

const (
	Timesteps Unit = iota
	Episodes
	Updates
	UnitN
)

// NoAppend marks the absence of a counter suffix in Save calls.
const NoAppend Unit = -1

var KiT_Unit = kit.Enums.AddEnum(UnitN, false, nil)

func (u Unit) String() string {
	switch u {
	case Timesteps:
		return "timesteps"
	case Episodes:
		return "episodes"
	case Updates:
		return "updates"
	}
	return "unit-invalid"
}

// UnitFromString parses a unit name as it appears in saver configs.
func UnitFromString(s string) (Unit, error) {
	switch s {
	case "timesteps":
		return Timesteps, nil
	case "episodes":
		return Episodes, nil
	case "updates":
		return Updates, nil
	}
	return NoAppend, rlcore.Value("agent", "saver[unit]", s, "not from {timesteps,episodes,updates}")
}

// Config holds scalar model configuration.  The zero value is usable:
// NewModel applies Defaults for unset fields.
type Config struct {
	Name                 string  `desc:"model name, used as variable-tree root and default checkpoint filename"`
	Device               string  `desc:"device hint passed through to the algorithm, informational"`
	ParallelInteractions int     `desc:"number of independent environment slots, >= 1"`
	L2Regularization     float64 `desc:"scalar L2 regularization coefficient, >= 0"`
	DisableActionMasking bool    `desc:"disable auxiliary action-mask inputs for discrete actions"`
	SkipAssertions       bool    `desc:"skip input and action assertions (trusted callers only)"`

	Saver      map[string]interface{} `desc:"checkpoint saver options, see SaverConfig"`
	Summarizer map[string]interface{} `desc:"summary logging options, see SummarizerConfig"`
}

// Defaults fills unset fields.
func (cf *Config) Defaults() {
	if cf.Name == "" {
		cf.Name = "agent"
	}
	if cf.ParallelInteractions == 0 {
		cf.ParallelInteractions = 1
	}
}

// SaverConfig is the validated form of the saver option mapping.
type SaverConfig struct {
	Directory        string  `desc:"checkpoint directory (required)"`
	Filename         string  `desc:"checkpoint filename stem, default = model name"`
	Frequency        int     `desc:"unit-counter interval between checkpoints (required)"`
	Load             bool    `desc:"restore from the latest checkpoint at initialize time"`
	MaxCheckpoints   int     `desc:"checkpoints kept in rotation, default 5"`
	MaxHourFrequency float64 `desc:"if > 0, keep one checkpoint per this many hours out of rotation"`
	Unit             Unit    `desc:"counter driving Frequency, default updates"`
}

var saverKeys = map[string]bool{
	"directory": true, "filename": true, "frequency": true, "load": true,
	"max_checkpoints": true, "max_hour_frequency": true, "unit": true,
}

// SummarizerConfig is the validated form of the summarizer option
// mapping.
type SummarizerConfig struct {
	Directory    string          `desc:"summary root directory (required)"`
	Flush        float64         `desc:"seconds between summary flushes, default 10"`
	Labels       map[string]bool `desc:"enabled summary labels, nil with All false = {graph}"`
	All          bool            `desc:"labels was the literal \"all\""`
	MaxSummaries int             `desc:"summary subdirectories kept, default 5"`
}

var summarizerKeys = map[string]bool{
	"directory": true, "flush": true, "labels": true, "max_summaries": true,
}

func unknownKeys(m, known map[string]bool) []string {
	var bad []string
	for k := range m {
		if !known[k] {
			bad = append(bad, k)
		}
	}
	sort.Strings(bad)
	return bad
}

func keySet(m map[string]interface{}) map[string]bool {
	ks := make(map[string]bool, len(m))
	for k := range m {
		ks[k] = true
	}
	return ks
}

// asInt accepts the int shapes a JSON-loaded config can produce.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// parseSaver validates a saver option mapping against the recognized
// key set {directory,filename,frequency,load,max_checkpoints,
// max_hour_frequency,unit}.  directory and frequency are required.
func parseSaver(m map[string]interface{}) (*SaverConfig, error) {
	if bad := unknownKeys(keySet(m), saverKeys); len(bad) > 0 {
		return nil, rlcore.Value("agent", "saver", bad,
			"not from {directory,filename,frequency,load,max_checkpoints,max_hour_frequency,unit}")
	}
	sc := &SaverConfig{MaxCheckpoints: 5, Unit: Updates}
	dir, ok := m["directory"].(string)
	if !ok || dir == "" {
		return nil, rlcore.Required("agent", "saver[directory]")
	}
	sc.Directory = dir
	freq, ok := asInt(m["frequency"])
	if !ok {
		return nil, rlcore.Required("agent", "saver[frequency]")
	}
	sc.Frequency = freq
	if v, ok := m["filename"]; ok {
		fn, ok := v.(string)
		if !ok {
			return nil, rlcore.Value("agent", "saver[filename]", v, "")
		}
		sc.Filename = fn
	}
	if v, ok := m["load"]; ok {
		ld, ok := v.(bool)
		if !ok {
			return nil, rlcore.Value("agent", "saver[load]", v, "")
		}
		sc.Load = ld
	}
	if v, ok := m["max_checkpoints"]; ok {
		mc, ok := asInt(v)
		if !ok {
			return nil, rlcore.Value("agent", "saver[max_checkpoints]", v, "")
		}
		sc.MaxCheckpoints = mc
	}
	if v, ok := m["max_hour_frequency"]; ok {
		mh, ok := asFloat(v)
		if !ok {
			return nil, rlcore.Value("agent", "saver[max_hour_frequency]", v, "")
		}
		sc.MaxHourFrequency = mh
	}
	if v, ok := m["unit"]; ok {
		us, ok := v.(string)
		if !ok {
			return nil, rlcore.Value("agent", "saver[unit]", v, "not from {timesteps,episodes,updates}")
		}
		u, err := UnitFromString(us)
		if err != nil {
			return nil, err
		}
		sc.Unit = u
	}
	return sc, nil
}

// parseSummarizer validates a summarizer option mapping against the
// recognized key set {directory,flush,labels,max_summaries}.
// directory is required; labels must be the literal "all" or an
// iterable of strings.
func parseSummarizer(m map[string]interface{}) (*SummarizerConfig, error) {
	if bad := unknownKeys(keySet(m), summarizerKeys); len(bad) > 0 {
		return nil, rlcore.Value("agent", "summarizer", bad,
			"not from {directory,flush,labels,max_summaries}")
	}
	sc := &SummarizerConfig{Flush: 10, MaxSummaries: 5}
	dir, ok := m["directory"].(string)
	if !ok || dir == "" {
		return nil, rlcore.Required("agent", "summarizer[directory]")
	}
	sc.Directory = dir
	if v, ok := m["flush"]; ok {
		fl, ok := asFloat(v)
		if !ok {
			return nil, rlcore.Value("agent", "summarizer[flush]", v, "")
		}
		sc.Flush = fl
	}
	if v, ok := m["max_summaries"]; ok {
		ms, ok := asInt(v)
		if !ok {
			return nil, rlcore.Value("agent", "summarizer[max_summaries]", v, "")
		}
		sc.MaxSummaries = ms
	}
	if v, ok := m["labels"]; ok {
		switch lv := v.(type) {
		case string:
			if lv != "all" {
				return nil, rlcore.Value("agent", "summarizer[labels]", lv, `"all" or iterable of strings`)
			}
			sc.All = true
		case []string:
			sc.Labels = make(map[string]bool, len(lv))
			for _, l := range lv {
				sc.Labels[l] = true
			}
		case []interface{}:
			sc.Labels = make(map[string]bool, len(lv))
			for _, li := range lv {
				l, ok := li.(string)
				if !ok {
					return nil, rlcore.Value("agent", "summarizer[labels]",
						fmt.Sprintf("%v", v), `"all" or iterable of strings`)
				}
				sc.Labels[l] = true
			}
		default:
			return nil, rlcore.Value("agent", "summarizer[labels]",
				fmt.Sprintf("%v", v), `"all" or iterable of strings`)
		}
	} else {
		sc.Labels = map[string]bool{"graph": true}
	}
	return sc, nil
}

// enabled reports whether a summary label is active.
func (sc *SummarizerConfig) enabled(label string) bool {
	if sc == nil {
		return false
	}
	return sc.All || sc.Labels[label]
}
