// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package agent serves a model.Model to an external world process over
// a websocket, so that environments written in other languages can
// drive act / observe without linking against Go.  Values cross the
// wire as flat float64 slices in row-major order and are reshaped
// against the model's specs on arrival.
package agent

import (
	"fmt"
	"log"
	"net/http"

	"github.com/ccnlab/rlcore/model"
	"github.com/ccnlab/rlcore/specs"
	"github.com/gorilla/websocket"
)

// Request is one world-to-agent message.  Op selects the entry point;
// the remaining fields are op-specific.
type Request struct {
	Op string `json:"op"` // spec, act, independent_act, observe, reset

	States      map[string][]float64 `json:"states,omitempty"`
	Internals   map[string][]float64 `json:"internals,omitempty"`
	Auxiliaries map[string][]float64 `json:"auxiliaries,omitempty"` // masks as 0/1
	Parallel    []int                `json:"parallel,omitempty"`

	Terminal     []int     `json:"terminal,omitempty"`
	Reward       []float64 `json:"reward,omitempty"`
	ParallelSlot int       `json:"parallel_slot,omitempty"`
}

// Response is one agent-to-world message.
type Response struct {
	Actions   map[string][]float64 `json:"actions,omitempty"`
	Internals map[string][]float64 `json:"internals,omitempty"`

	Timesteps int  `json:"timesteps"`
	Episodes  int  `json:"episodes"`
	Updates   int  `json:"updates"`
	Updated   bool `json:"updated,omitempty"`

	StateSpecs     map[string]*specs.TensorSpec `json:"state_specs,omitempty"`
	ActionSpecs    map[string]*specs.TensorSpec `json:"action_specs,omitempty"`
	AuxiliarySpecs map[string]*specs.TensorSpec `json:"auxiliary_specs,omitempty"`

	Error string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SocketAgentServer exposes an initialized Model over a websocket
// endpoint.  One request is handled at a time per connection; the
// Model does no locking, so run one connection per server.
type SocketAgentServer struct {
	Model *model.Model
	Addr  string `desc:"listen address, e.g. :8080"`
}

// Handler returns the websocket upgrade handler, exported separately
// so tests and embedding servers can mount it on their own mux.
func (srv *SocketAgentServer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("agent server: upgrade failed: %v", err)
			return
		}
		defer ws.Close()
		for {
			var req Request
			if err := ws.ReadJSON(&req); err != nil {
				log.Printf("agent server: client disconnected: %v", err)
				return
			}
			resp := srv.handle(&req)
			if err := ws.WriteJSON(resp); err != nil {
				log.Printf("agent server: write failed: %v", err)
				return
			}
		}
	}
}

// StartServer blocks serving the agent endpoint at /agent.
func (srv *SocketAgentServer) StartServer() error {
	mux := http.NewServeMux()
	mux.Handle("/agent", srv.Handler())
	log.Printf("agent server listening on %s", srv.Addr)
	return http.ListenAndServe(srv.Addr, mux)
}

func (srv *SocketAgentServer) handle(req *Request) *Response {
	resp := &Response{}
	resp.Timesteps, resp.Episodes, resp.Updates = srv.Model.Reset()
	switch req.Op {
	case "spec":
		resp.StateSpecs = srv.Model.StatesSpec.Specs
		resp.ActionSpecs = srv.Model.ActionsSpec.Specs
		resp.AuxiliarySpecs = srv.Model.AuxiliariesSpec.Specs
	case "act":
		srv.act(req, resp)
	case "independent_act":
		srv.independentAct(req, resp)
	case "observe":
		srv.observe(req, resp)
	case "reset":
		// counters already filled in
	default:
		resp.Error = fmt.Sprintf("unknown op %q", req.Op)
	}
	return resp
}

func (srv *SocketAgentServer) act(req *Request, resp *Response) {
	states, err := unflatten(srv.Model.StatesSpec, req.States, len(req.Parallel))
	if err != nil {
		resp.Error = err.Error()
		return
	}
	aux, err := unflatten(srv.Model.AuxiliariesSpec, req.Auxiliaries, len(req.Parallel))
	if err != nil {
		resp.Error = err.Error()
		return
	}
	actions, timesteps, err := srv.Model.Act(states, aux, req.Parallel)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	resp.Actions = flatten(actions)
	resp.Timesteps = timesteps
}

func (srv *SocketAgentServer) independentAct(req *Request, resp *Response) {
	batch, err := wireBatch(srv.Model.StatesSpec, req.States)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	states, err := unflatten(srv.Model.StatesSpec, req.States, batch)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	internals, err := unflatten(srv.Model.InternalsSpec, req.Internals, batch)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	aux, err := unflatten(srv.Model.AuxiliariesSpec, req.Auxiliaries, batch)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	actions, next, err := srv.Model.IndependentAct(states, internals, aux)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	resp.Actions = flatten(actions)
	resp.Internals = flatten(next)
}

func (srv *SocketAgentServer) observe(req *Request, resp *Response) {
	updated, episodes, updates, err := srv.Model.Observe(req.Terminal, req.Reward, req.ParallelSlot)
	if err != nil {
		resp.Error = err.Error()
		return
	}
	resp.Updated = updated
	resp.Episodes = episodes
	resp.Updates = updates
}

// wireBatch infers the batch size of a wire value map from the first
// named spec's sample size.
func wireBatch(sp *specs.TensorsSpec, vals map[string][]float64) (int, error) {
	if sp.Len() == 0 {
		return 0, nil
	}
	nm := sp.Names[0]
	flat, ok := vals[nm]
	if !ok {
		return 0, fmt.Errorf("agent server: missing %s input", nm)
	}
	sz := sp.Specs[nm].Size()
	if sz == 0 || len(flat)%sz != 0 {
		return 0, fmt.Errorf("agent server: %s: %d values do not tile sample size %d", nm, len(flat), sz)
	}
	return len(flat) / sz, nil
}

// unflatten reshapes flat wire values into batched tensors per spec.
func unflatten(sp *specs.TensorsSpec, vals map[string][]float64, batch int) (specs.Tensors, error) {
	out := make(specs.Tensors, sp.Len())
	for _, nm := range sp.Names {
		spec := sp.Specs[nm]
		flat, ok := vals[nm]
		if !ok {
			return nil, fmt.Errorf("agent server: missing %s input", nm)
		}
		if len(flat) != batch*spec.Size() {
			return nil, fmt.Errorf("agent server: %s: got %d values, expected %d",
				nm, len(flat), batch*spec.Size())
		}
		tsr := spec.Zeros(batch)
		for i, v := range flat {
			tsr.SetFloat1D(i, v)
		}
		out[nm] = tsr
	}
	return out, nil
}

// flatten serializes batched tensors to flat wire values.
func flatten(vals specs.Tensors) map[string][]float64 {
	out := make(map[string][]float64, len(vals))
	for nm, tsr := range vals {
		flat := make([]float64, tsr.Len())
		for i := range flat {
			flat[i] = tsr.FloatVal1D(i)
		}
		out[nm] = flat
	}
	return out
}
