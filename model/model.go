// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package model implements the stateful orchestrator at the core of
// the rlcore agent framework.  A Model wires together state / action
// specifications, per-slot recurrent internal state, acting,
// observing, checkpointing and summary logging around an injected
// algorithm Core.
//
// Each public entry point is a unit of work whose internal effects are
// ordered: validation gates entry, action assertions gate after the
// core computation but before any persisted-state write, and counter
// increments come strictly after the buffer writes they account for.
// Callers sharing one Model across concurrent actors must partition
// slot indices; the Model itself does no locking.
package model

import (
	"fmt"
	"log"
	"math"

	"github.com/ccnlab/rlcore"
	"github.com/ccnlab/rlcore/specs"
	"github.com/emer/emergent/env"
	"github.com/emer/etable/etensor"
	"github.com/goki/ki/kit"
)

// InitState tracks the single-shot initialization lifecycle.
type InitState int32

const (
	Uninitialized InitState = iota
	Initializing
	Initialized
	InitStateN
)

var KiT_InitState = kit.Enums.AddEnum(InitStateN, false, nil)

func (is InitState) String() string {
	switch is {
	case Uninitialized:
		return "Uninitialized"
	case Initializing:
		return "Initializing"
	case Initialized:
		return "Initialized"
	}
	return "InitStateInvalid"
}

// Model owns the value-name namespace, the three monotonic counters,
// the per-slot internal-state buffers and the episode-reward
// accumulator.  No other component may mutate them.
type Model struct {
	Config *Config `desc:"scalar configuration"`
	Core   Core    `view:"-" desc:"injected algorithm strategy"`

	StatesSpec      *specs.TensorsSpec `desc:"state space"`
	ActionsSpec     *specs.TensorsSpec `desc:"action space"`
	AuxiliariesSpec *specs.TensorsSpec `desc:"auxiliary inputs, e.g. <action>/mask"`
	InternalsSpec   *specs.TensorsSpec `desc:"recurrent internal state space, from the Core"`

	TerminalSpec *specs.TensorSpec `view:"-" desc:"reserved terminal input: int, values {0,1,2}"`
	RewardSpec   *specs.TensorSpec `view:"-" desc:"reserved reward input: float scalar"`
	ParallelSpec *specs.TensorSpec `view:"-" desc:"reserved parallel input: slot index"`

	Timesteps env.Ctr `view:"inline" desc:"total timesteps acted, incremented by batch size per Act"`
	Episodes  env.Ctr `view:"inline" desc:"total episodes completed, incremented per terminal"`
	Updates   env.Ctr `view:"inline" desc:"total parameter updates, incremented by the learning step"`

	EpisodeReward *etensor.Float32 `view:"-" desc:"per-slot episode reward accumulator, not persisted"`
	Internals     specs.Tensors    `view:"-" desc:"per-slot internal-state buffers, shape (parallel,)+internal shape"`
	InternalsInit specs.Tensors    `view:"-" desc:"unbatched initial value per internal"`

	InitSt InitState `desc:"initialization lifecycle state"`

	valueNames map[string]bool
	saverCfg   *SaverConfig
	sumCfg     *SummarizerConfig
	ckpts      *ckptManager
	summary    *summarizer
	tracing    bool
	traceSteps []string
}

// NewModel validates specs and configuration and returns an
// uninitialized Model.  The reserved names terminal, reward and
// parallel may not collide with any state or action name.  Float
// states with missing or infinite bounds only warn; float actions
// warn on missing bounds and fail on infinite ones.
func NewModel(states, actions *specs.TensorsSpec, core Core, cfg *Config) (*Model, error) {
	if core == nil {
		return nil, rlcore.Required("Model", "core")
	}
	if states == nil || states.Len() == 0 {
		return nil, rlcore.Required("Model", "states")
	}
	if actions == nil || actions.Len() == 0 {
		return nil, rlcore.Required("Model", "actions")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Defaults()
	if cfg.ParallelInteractions < 1 {
		return nil, rlcore.Value("Model", "parallel_interactions", cfg.ParallelInteractions, ">= 1")
	}
	if cfg.L2Regularization < 0 {
		return nil, rlcore.Value("Model", "l2_regularization", cfg.L2Regularization, ">= 0")
	}

	m := &Model{Config: cfg, Core: core}
	m.TerminalSpec = specs.NewIntSpec(nil, 3)
	m.RewardSpec = specs.NewUnboundedFloatSpec(nil)
	m.ParallelSpec = specs.NewIntSpec(nil, cfg.ParallelInteractions)
	m.valueNames = map[string]bool{"terminal": true, "reward": true, "parallel": true}

	// State space: bound problems are warnings only
	m.StatesSpec = states
	for _, nm := range states.Names {
		spec := states.Specs[nm]
		if spec.Type != specs.Float {
			continue
		}
		if !spec.HasMin() {
			log.Printf("no min_value bound specified for state %s", nm)
		} else if hasInfBound(spec, true) {
			log.Printf("infinite min_value bound for state %s", nm)
		}
		if !spec.HasMax() {
			log.Printf("no max_value bound specified for state %s", nm)
		} else if hasInfBound(spec, false) {
			log.Printf("infinite max_value bound for state %s", nm)
		}
	}
	for _, nm := range states.Names {
		if m.valueNames[nm] {
			return nil, rlcore.Exists("value name", nm)
		}
		m.valueNames[nm] = true
	}

	// Action space: infinite bounds are not permitted
	m.ActionsSpec = actions
	for _, nm := range actions.Names {
		spec := actions.Specs[nm]
		if spec.Type != specs.Float {
			continue
		}
		if !spec.HasMin() {
			log.Printf("no min_value specified for action %s", nm)
		} else if hasInfBound(spec, true) {
			return nil, rlcore.Value("Model", "actions["+nm+"]", "min_value", "infinite bound")
		}
		if !spec.HasMax() {
			log.Printf("no max_value specified for action %s", nm)
		} else if hasInfBound(spec, false) {
			return nil, rlcore.Value("Model", "actions["+nm+"]", "max_value", "infinite bound")
		}
	}
	for _, nm := range actions.Names {
		if m.valueNames[nm] {
			return nil, rlcore.Exists("value name", nm)
		}
		m.valueNames[nm] = true
	}

	m.InternalsSpec = core.InternalsSpec()
	m.InternalsInit = core.InternalsInit()

	// Auxiliary mask spec per bounded discrete action
	m.AuxiliariesSpec = specs.NewTensorsSpec()
	if !cfg.DisableActionMasking {
		for _, nm := range actions.Names {
			spec := actions.Specs[nm]
			if spec.Type != specs.Int || spec.NumValues <= 0 {
				continue
			}
			mshp := append(append([]int(nil), spec.Shape...), spec.NumValues)
			if err := m.AuxiliariesSpec.Add(nm+"/mask", specs.NewBoolSpec(mshp)); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Saver != nil {
		sc, err := parseSaver(cfg.Saver)
		if err != nil {
			return nil, err
		}
		m.saverCfg = sc
	}
	if cfg.Summarizer != nil {
		sc, err := parseSummarizer(cfg.Summarizer)
		if err != nil {
			return nil, err
		}
		m.sumCfg = sc
	}
	return m, nil
}

// hasInfBound reports whether any element of the lower (or upper)
// bound is infinite.
func hasInfBound(spec *specs.TensorSpec, lower bool) bool {
	b := spec.Max
	if lower {
		b = spec.Min
	}
	for _, v := range b {
		if math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// Initialize allocates counters and buffers, opens the summarizer,
// warms up the three entry points with zero-batch inputs, and builds
// or restores checkpoint state.  Single-shot: calling it twice is an
// assertion failure, and a Model whose Initialize returned an error is
// in an undefined state and must not be reused.
func (m *Model) Initialize() error {
	if m.InitSt != Uninitialized {
		return rlcore.Assertf("Model.initialize: called twice")
	}
	m.InitSt = Initializing

	if m.sumCfg != nil {
		sm, err := newSummarizer(m.sumCfg)
		if err != nil {
			return err
		}
		m.summary = sm
	}

	m.Timesteps.Init()
	m.Episodes.Init()
	m.Updates.Init()

	p := m.Config.ParallelInteractions
	m.EpisodeReward = etensor.NewFloat32([]int{p}, nil, nil)
	m.Internals = make(specs.Tensors, m.InternalsSpec.Len())
	for _, nm := range m.InternalsSpec.Names {
		buf := m.InternalsSpec.Specs[nm].Zeros(p)
		if init, ok := m.InternalsInit[nm]; ok {
			for slot := 0; slot < p; slot++ {
				specs.CopyRow(buf, slot, init, 0)
			}
		}
		m.Internals[nm] = buf
	}
	m.InitSt = Initialized

	// Warm up the entry points with empty inputs, recording the
	// one-shot structural trace if the graph label is enabled
	m.tracing = m.sumCfg.enabled("graph")
	if _, _, err := m.Act(m.StatesSpec.Empty(), m.AuxiliariesSpec.Empty(), []int{}); err != nil {
		return fmt.Errorf("Model.initialize: %w", err)
	}
	if _, _, err := m.IndependentAct(m.StatesSpec.Empty(), m.InternalsSpec.Empty(), m.AuxiliariesSpec.Empty()); err != nil {
		return fmt.Errorf("Model.initialize: %w", err)
	}
	if _, _, _, err := m.Observe([]int{}, []float64{}, 0); err != nil {
		return fmt.Errorf("Model.initialize: %w", err)
	}
	if m.tracing {
		m.tracing = false
		if err := m.summary.writeTrace(m.traceSteps); err != nil {
			return err
		}
		m.traceSteps = nil
	}

	if m.saverCfg != nil {
		m.ckpts = newCkptManager(m, m.saverCfg)
		if m.saverCfg.Load {
			if _, _, _, err := m.Restore("", "", Checkpoint); err != nil {
				return err
			}
		} else {
			if _, err := m.ckpts.save(true); err != nil {
				return err
			}
		}
	}
	return nil
}

// trace records one effect-order step during warm-up.
func (m *Model) trace(step string) {
	if m.tracing {
		m.traceSteps = append(m.traceSteps, step)
	}
}

// counter returns the current value of the given unit counter.
func (m *Model) counter(u Unit) int {
	switch u {
	case Timesteps:
		return m.Timesteps.Cur
	case Episodes:
		return m.Episodes.Cur
	}
	return m.Updates.Cur
}

// Reset returns the current counter values.  It is a pure read and
// mutates nothing.
func (m *Model) Reset() (timesteps, episodes, updates int) {
	return m.Timesteps.Cur, m.Episodes.Cur, m.Updates.Cur
}

// Act is the stateful interactive entry point.  parallel holds one
// slot index per batch element; states and auxiliaries are batched
// alike.  Effects are ordered: input assertions gate entry; internal
// state is gathered per slot and passed to the Core; action
// assertions gate after the computation; only then are the internal
// buffers scatter-written and, strictly after that, the timestep
// counter incremented by the batch size.  Returns the validated
// actions and the new timestep count.
func (m *Model) Act(states, auxiliaries specs.Tensors, parallel []int) (specs.Tensors, int, error) {
	if m.InitSt != Initialized {
		return nil, 0, rlcore.Assertf("Agent.act: model is not initialized")
	}
	batch := len(parallel)
	parTsr := etensor.NewInt64([]int{batch}, nil, nil)
	for i, pv := range parallel {
		parTsr.Values[i] = int64(pv)
	}

	m.trace("act: assert inputs")
	if !m.Config.SkipAssertions {
		if err := m.StatesSpec.Validate("Agent.act", states, batch); err != nil {
			return nil, 0, err
		}
		if err := m.AuxiliariesSpec.Validate("Agent.act", auxiliaries, batch); err != nil {
			return nil, 0, err
		}
		if err := m.ParallelSpec.Validate("Agent.act", "parallel", parTsr, batch); err != nil {
			return nil, 0, err
		}
		if err := m.assertMaskAnyValid("Agent.act", auxiliaries); err != nil {
			return nil, 0, err
		}
	}

	m.trace("act: gather internals")
	internals := make(specs.Tensors, m.InternalsSpec.Len())
	for _, nm := range m.InternalsSpec.Names {
		internals[nm] = specs.GatherRows(m.Internals[nm], parallel)
	}

	m.trace("act: core act")
	actions, next, err := m.Core.Act(states, internals, auxiliaries, parTsr, false)
	if err != nil {
		return nil, 0, fmt.Errorf("Agent.act: %w", err)
	}

	m.trace("act: assert actions")
	if !m.Config.SkipAssertions {
		if err := m.ActionsSpec.Validate("Agent.act", actions, batch); err != nil {
			return nil, 0, err
		}
		if err := m.assertActionsInMask(actions, auxiliaries); err != nil {
			return nil, 0, err
		}
	}

	// Persisted-state writes begin here; nothing above mutated the Model
	m.trace("act: scatter internals")
	for _, nm := range m.InternalsSpec.Names {
		if nxt, ok := next[nm]; ok {
			specs.ScatterRows(m.Internals[nm], parallel, nxt)
		}
	}

	// Ordered strictly after the scatter-write: a reader of Timesteps
	// must never observe the increment without the internal-state
	// update already visible
	m.trace("act: increment timesteps")
	m.Timesteps.Cur += batch

	return actions, m.Timesteps.Cur, nil
}

// IndependentAct is the stateless evaluation entry point: internal
// state is caller-supplied rather than persisted, a single fixed
// pseudo-slot 0 is used, and action assertions are skipped (trusted
// deployment context).  Returns actions and the next internals.
func (m *Model) IndependentAct(states, internals, auxiliaries specs.Tensors) (specs.Tensors, specs.Tensors, error) {
	if m.InitSt != Initialized {
		return nil, nil, rlcore.Assertf("Agent.independent_act: model is not initialized")
	}
	if internals == nil {
		if m.InternalsSpec.Len() > 0 {
			return nil, nil, rlcore.Assertf("Agent.independent_act: missing internals input")
		}
		internals = specs.Tensors{}
	}
	if auxiliaries == nil {
		if m.AuxiliariesSpec.Len() > 0 {
			return nil, nil, rlcore.Assertf("Agent.independent_act: missing auxiliaries input")
		}
		auxiliaries = specs.Tensors{}
	}
	first, ok := states[m.StatesSpec.Names[0]]
	if !ok {
		return nil, nil, rlcore.Assertf("Agent.independent_act: missing %s input", m.StatesSpec.Names[0])
	}
	batch := first.Dim(0)

	m.trace("independent_act: assert inputs")
	if !m.Config.SkipAssertions {
		if err := m.StatesSpec.Validate("Agent.independent_act", states, batch); err != nil {
			return nil, nil, err
		}
		if err := m.InternalsSpec.Validate("Agent.independent_act", internals, batch); err != nil {
			return nil, nil, err
		}
		if err := m.AuxiliariesSpec.Validate("Agent.independent_act", auxiliaries, batch); err != nil {
			return nil, nil, err
		}
		if err := m.assertMaskAnyValid("Agent.independent_act", auxiliaries); err != nil {
			return nil, nil, err
		}
	}

	m.trace("independent_act: core act")
	parTsr := etensor.NewInt64([]int{1}, nil, nil)
	actions, next, err := m.Core.Act(states, internals, auxiliaries, parTsr, true)
	if err != nil {
		return nil, nil, fmt.Errorf("Agent.independent_act: %w", err)
	}
	// Skip action assertions
	return actions, next, nil
}

// Observe records a batched sequence of (terminal, reward) pairs for
// sequential timesteps of one slot.  At most one terminal flag may be
// set and it must be the last element of the batch; violations are
// assertion failures.  Effects are ordered: assertions gate entry; the
// reward sum is accumulated into the slot's episode-reward
// accumulator; the Core observes; then, only on terminal, the slot's
// internal state resets to its initial values, the episode-reward
// summary is emitted from the pre-reset accumulator, the accumulator
// resets and the episode counter increments.  Returns the Core's
// updated flag and the new episode and update counts, all observed
// after terminal handling completes.
func (m *Model) Observe(terminal []int, reward []float64, parallel int) (bool, int, int, error) {
	if m.InitSt != Initialized {
		return false, 0, 0, rlcore.Assertf("Agent.observe: model is not initialized")
	}
	batch := len(terminal)
	if len(reward) != batch {
		return false, 0, 0, rlcore.Assertf(
			"Agent.observe: terminal and reward batch sizes differ: %d vs %d", batch, len(reward))
	}
	termTsr := etensor.NewInt64([]int{batch}, nil, nil)
	rewTsr := etensor.NewFloat32([]int{batch}, nil, nil)
	for i := range terminal {
		termTsr.Values[i] = int64(terminal[i])
		rewTsr.Values[i] = float32(reward[i])
	}
	isTerminal := batch > 0 && terminal[batch-1] > 0

	m.trace("observe: assert inputs")
	if !m.Config.SkipAssertions {
		if err := m.TerminalSpec.Validate("Agent.observe", "terminal", termTsr, batch); err != nil {
			return false, 0, 0, err
		}
		if err := m.RewardSpec.Validate("Agent.observe", "reward", rewTsr, batch); err != nil {
			return false, 0, 0, err
		}
		if parallel < 0 || parallel >= m.Config.ParallelInteractions {
			return false, 0, 0, rlcore.Assertf(
				"Agent.observe: invalid parallel index %d, expected [0,%d)",
				parallel, m.Config.ParallelInteractions)
		}
		nterm := 0
		for _, t := range terminal {
			if t > 0 {
				nterm++
			}
		}
		if nterm > 1 {
			return false, 0, 0, rlcore.Assertf("Agent.observe: input contains more than one terminal")
		}
		if nterm > 0 && !isTerminal {
			return false, 0, 0, rlcore.Assertf("Agent.observe: terminal is not the last input timestep")
		}
	}

	m.trace("observe: accumulate episode reward")
	sum := 0.0
	for _, r := range reward {
		sum += r
	}
	if batch > 0 {
		m.summary.record("reward", m.Timesteps.Cur, sum/float64(batch))
	}
	m.EpisodeReward.Values[parallel] += float32(sum)

	// Core observe, ordered after the reward accumulation
	m.trace("observe: core observe")
	updated, err := m.Core.Observe(termTsr, rewTsr, parallel)
	if err != nil {
		return false, 0, 0, fmt.Errorf("Agent.observe: %w", err)
	}
	if updated {
		m.Updates.Cur++
		if m.ckpts != nil {
			if _, err := m.ckpts.save(false); err != nil {
				return false, 0, 0, err
			}
		}
	}

	// Terminal handling, after core observe and episode reward; both
	// branches complete before the counters below are read
	m.trace("observe: handle terminal")
	if isTerminal {
		for _, nm := range m.InternalsSpec.Names {
			if init, ok := m.InternalsInit[nm]; ok {
				specs.CopyRow(m.Internals[nm], parallel, init, 0)
			}
		}
		// Episode reward summary from the pre-reset accumulator
		m.summary.record("episode-reward", m.Episodes.Cur, float64(m.EpisodeReward.Values[parallel]))
		m.EpisodeReward.Values[parallel] = 0
		m.Episodes.Cur++
	}

	return updated, m.Episodes.Cur, m.Updates.Cur, nil
}

// assertMaskAnyValid checks that every sample of every action mask has
// at least one valid (true) choice.
func (m *Model) assertMaskAnyValid(kind string, auxiliaries specs.Tensors) error {
	for _, nm := range m.ActionsSpec.Names {
		spec := m.ActionsSpec.Specs[nm]
		if spec.Type != specs.Int || spec.NumValues <= 0 {
			continue
		}
		mask, ok := auxiliaries[nm+"/mask"]
		if !ok {
			continue
		}
		nv := spec.NumValues
		for g := 0; g < mask.Len()/nv; g++ {
			any := false
			for v := 0; v < nv; v++ {
				if mask.FloatVal1D(g*nv+v) != 0 {
					any = true
					break
				}
			}
			if !any {
				return rlcore.Assertf("%s: at least one action has to be valid for %s", kind, nm)
			}
		}
	}
	return nil
}

// assertActionsInMask checks that every chosen discrete action value
// was valid for its sample.  A violation indicates an algorithm bug.
func (m *Model) assertActionsInMask(actions, auxiliaries specs.Tensors) error {
	for _, nm := range m.ActionsSpec.Names {
		spec := m.ActionsSpec.Specs[nm]
		if spec.Type != specs.Int || spec.NumValues <= 0 {
			continue
		}
		mask, ok := auxiliaries[nm+"/mask"]
		if !ok {
			continue
		}
		act := actions[nm]
		nv := spec.NumValues
		for i, n := 0, act.Len(); i < n; i++ {
			v := int(act.FloatVal1D(i))
			if v < 0 || v >= nv || mask.FloatVal1D(i*nv+v) == 0 {
				return rlcore.Assertf("Agent.act: action mask check failed for %s at sample %d", nm, i)
			}
		}
	}
	return nil
}

// Close writes a final checkpoint if a saver is configured and flushes
// the summarizer.
func (m *Model) Close() error {
	if m.ckpts != nil {
		if _, err := m.ckpts.save(true); err != nil {
			return err
		}
	}
	if m.summary != nil {
		return m.summary.close()
	}
	return nil
}
