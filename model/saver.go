// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ckptExt is the checkpoint file extension: gzipped JSON snapshot of
// the saved-variable tree.
const ckptExt = ".ckpt.json.gz"

// ckptManager writes periodic checkpoints named
// <filename>-<counter><ext> and rotates old ones.
type ckptManager struct {
	model         *Model
	cfg           *SaverConfig
	lastSaved     int       // unit-counter value at the last save, -1 = never
	kept          []string  // checkpoint paths in rotation, oldest first
	lastPreserved time.Time // last checkpoint kept out of rotation
}

func newCkptManager(m *Model, cfg *SaverConfig) *ckptManager {
	cm := &ckptManager{model: m, cfg: cfg, lastSaved: -1}
	if cm.cfg.Filename == "" {
		cm.cfg.Filename = m.Config.Name
	}
	return cm
}

// counter returns the current value of the configured unit counter.
func (cm *ckptManager) counter() int {
	return cm.model.counter(cm.cfg.Unit)
}

// save writes a checkpoint unless the unit counter advanced less than
// frequency since the last one (force overrides).  Returns the path,
// empty if skipped.
func (cm *ckptManager) save(force bool) (string, error) {
	c := cm.counter()
	if !force && cm.lastSaved >= 0 && c-cm.lastSaved < cm.cfg.Frequency {
		return "", nil
	}
	if err := os.MkdirAll(cm.cfg.Directory, 0755); err != nil {
		return "", fmt.Errorf("saver: %w", err)
	}
	path := filepath.Join(cm.cfg.Directory, fmt.Sprintf("%s-%d%s", cm.cfg.Filename, c, ckptExt))
	if err := cm.model.writeCheckpoint(path); err != nil {
		return "", err
	}
	cm.lastSaved = c

	// max_hour_frequency keeps one checkpoint per period out of rotation
	if cm.cfg.MaxHourFrequency > 0 &&
		time.Since(cm.lastPreserved).Hours() >= cm.cfg.MaxHourFrequency {
		cm.lastPreserved = time.Now()
		return path, nil
	}
	cm.kept = append(cm.kept, path)
	for len(cm.kept) > cm.cfg.MaxCheckpoints {
		old := cm.kept[0]
		cm.kept = cm.kept[1:]
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("saver: %w", err)
		}
	}
	return path, nil
}

// latest returns the checkpoint path with the highest counter in the
// saver directory, or an error if none exists.
func (cm *ckptManager) latest() (string, error) {
	return latestCheckpoint(cm.cfg.Directory, cm.cfg.Filename)
}

// latestCheckpoint scans directory for <filename>-<counter> checkpoint
// files and returns the one with the highest counter.  An empty
// filename matches any stem.
func latestCheckpoint(directory, filename string) (string, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return "", fmt.Errorf("saver: %w", err)
	}
	best := ""
	bestCtr := -1
	var names []string
	for _, ent := range entries {
		names = append(names, ent.Name())
	}
	sort.Strings(names)
	for _, nm := range names {
		if !strings.HasSuffix(nm, ckptExt) {
			continue
		}
		stem := strings.TrimSuffix(nm, ckptExt)
		di := strings.LastIndex(stem, "-")
		if di < 0 {
			continue
		}
		if filename != "" && stem[:di] != filename {
			continue
		}
		ctr, err := strconv.Atoi(stem[di+1:])
		if err != nil {
			continue
		}
		if ctr > bestCtr {
			bestCtr = ctr
			best = filepath.Join(directory, nm)
		}
	}
	if best == "" {
		return "", fmt.Errorf("saver: no checkpoint found in %s", directory)
	}
	return best, nil
}
