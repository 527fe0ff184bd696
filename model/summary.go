// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/goki/gi/gi"
)

// summarizer appends labeled scalar summaries to an etable log and
// flushes it as TSV into a timestamped summary subdirectory.
type summarizer struct {
	cfg       *SummarizerConfig
	logDir    string
	table     *etable.Table
	row       int
	lastFlush time.Time
}

// newSummarizer resolves the summary root, prunes the oldest summary
// subdirectories beyond max_summaries, and opens a fresh timestamped
// log directory.
func newSummarizer(cfg *SummarizerConfig) (*summarizer, error) {
	entries, err := os.ReadDir(cfg.Directory)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("summarizer: %w", err)
		}
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("summarizer: %w", err)
		}
		entries = nil
	}
	var dirs []string
	for _, ent := range entries {
		if ent.IsDir() && strings.HasPrefix(ent.Name(), "summary-") {
			dirs = append(dirs, ent.Name())
		}
	}
	sort.Strings(dirs)
	if len(dirs) > cfg.MaxSummaries-1 {
		for _, old := range dirs[:len(dirs)-cfg.MaxSummaries+1] {
			if err := os.RemoveAll(filepath.Join(cfg.Directory, old)); err != nil {
				return nil, fmt.Errorf("summarizer: %w", err)
			}
		}
	}
	sm := &summarizer{cfg: cfg}
	sm.logDir = filepath.Join(cfg.Directory, time.Now().Format("summary-20060102-150405"))
	if err := os.MkdirAll(sm.logDir, 0755); err != nil {
		return nil, fmt.Errorf("summarizer: %w", err)
	}
	sm.table = &etable.Table{}
	sm.table.SetFromSchema(etable.Schema{
		{"Label", etensor.STRING, nil, nil},
		{"Step", etensor.INT64, nil, nil},
		{"Value", etensor.FLOAT64, nil, nil},
	}, 0)
	sm.lastFlush = time.Now()
	return sm, nil
}

// record appends one summary row if the label is enabled.
func (sm *summarizer) record(label string, step int, value float64) {
	if sm == nil || !sm.cfg.enabled(label) {
		return
	}
	row := sm.row
	sm.table.SetNumRows(row + 1)
	sm.table.SetCellString("Label", row, label)
	sm.table.SetCellFloat("Step", row, float64(step))
	sm.table.SetCellFloat("Value", row, value)
	sm.row++
	if time.Since(sm.lastFlush).Seconds() >= sm.cfg.Flush {
		if err := sm.flush(); err != nil {
			log.Printf("summarizer: flush failed: %v", err)
		}
	}
}

// flush writes the accumulated summaries as TSV.
func (sm *summarizer) flush() error {
	if sm == nil {
		return nil
	}
	sm.lastFlush = time.Now()
	fnm := filepath.Join(sm.logDir, "summaries.tsv")
	return sm.table.SaveCSV(gi.FileName(fnm), etable.Tab, etable.Headers)
}

// writeTrace writes the one-shot structural trace captured while
// warming up the entry points.
func (sm *summarizer) writeTrace(steps []string) error {
	if sm == nil || !sm.cfg.enabled("graph") {
		return nil
	}
	fnm := filepath.Join(sm.logDir, "graph.txt")
	return os.WriteFile(fnm, []byte(strings.Join(steps, "\n")+"\n"), 0644)
}

// close flushes any pending summaries.
func (sm *summarizer) close() error {
	return sm.flush()
}
