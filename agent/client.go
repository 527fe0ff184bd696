// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// WorldClient is the world-side counterpart of SocketAgentServer: it
// dials the agent endpoint and issues one request at a time.
type WorldClient struct {
	conn *websocket.Conn
}

// DialWorld connects to an agent server, e.g. ws://localhost:8080/agent.
func DialWorld(url string) (*WorldClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("world client: %w", err)
	}
	return &WorldClient{conn: conn}, nil
}

// Call sends one request and waits for its response.  A response
// carrying an Error field is returned as a Go error.
func (wc *WorldClient) Call(req *Request) (*Response, error) {
	if err := wc.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("world client: %w", err)
	}
	var resp Response
	if err := wc.conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("world client: %w", err)
	}
	if resp.Error != "" {
		return &resp, fmt.Errorf("world client: %s", resp.Error)
	}
	return &resp, nil
}

// Act requests actions for a batch of parallel slots.
func (wc *WorldClient) Act(states, auxiliaries map[string][]float64, parallel []int) (*Response, error) {
	return wc.Call(&Request{Op: "act", States: states, Auxiliaries: auxiliaries, Parallel: parallel})
}

// Observe submits a (terminal, reward) sequence for one slot.
func (wc *WorldClient) Observe(terminal []int, reward []float64, parallel int) (*Response, error) {
	return wc.Call(&Request{Op: "observe", Terminal: terminal, Reward: reward, ParallelSlot: parallel})
}

// Close closes the connection.
func (wc *WorldClient) Close() error {
	return wc.conn.Close()
}
