// Copyright (c) 2022, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"archive/zip"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ccnlab/rlcore"
	"github.com/ccnlab/rlcore/specs"
	"github.com/emer/etable/etensor"
	"github.com/goki/ki/kit"
	"github.com/sbinet/npyio"
	"gonum.org/v1/hdf5"
)

// SaveFormat selects the on-disk representation of a saved model.
type SaveFormat int32

const (
	// Checkpoint is the full training snapshot: variables plus
	// counters, gzipped JSON, restorable.
	Checkpoint SaveFormat = iota

	// SavedModel is a deployment export of the independent-act path.
	// It cannot be restored.
	SavedModel

	// Numpy stores the variable tree as an npz archive.
	Numpy

	// HDF5 stores the variable tree as an hdf5 file.
	HDF5

	SaveFormatN
)

var KiT_SaveFormat = kit.Enums.AddEnum(SaveFormatN, false, nil)

func (sf SaveFormat) String() string {
	switch sf {
	case Checkpoint:
		return "checkpoint"
	case SavedModel:
		return "saved-model"
	case Numpy:
		return "numpy"
	case HDF5:
		return "hdf5"
	}
	return "format-invalid"
}

// FormatFromString parses a save format name.
func FormatFromString(s string) (SaveFormat, error) {
	switch s {
	case "checkpoint":
		return Checkpoint, nil
	case "saved-model":
		return SavedModel, nil
	case "numpy":
		return Numpy, nil
	case "hdf5":
		return HDF5, nil
	}
	return Checkpoint, rlcore.Value("Model.save", "format", s,
		"not from {checkpoint,saved-model,numpy,hdf5}")
}

// savedVars returns the persisted variable tree in sorted name order:
// the per-slot internal buffers under internals/, plus the Core's own
// variables under core/ if it exposes any.  Counters are handled
// separately and the episode-reward accumulator is never saved.
func (m *Model) savedVars() ([]string, specs.Tensors) {
	vars := specs.Tensors{}
	for _, nm := range m.InternalsSpec.Names {
		vars["internals/"+nm+"-buffer"] = m.Internals[nm]
	}
	if vs, ok := m.Core.(VarSource); ok {
		for nm, tsr := range vs.Variables() {
			vars["core/"+nm] = tsr
		}
	}
	names := make([]string, 0, len(vars))
	for nm := range vars {
		names = append(names, nm)
	}
	sort.Strings(names)
	return names, vars
}

// ckptVar is one variable in the checkpoint JSON tree.
type ckptVar struct {
	Type   string    `json:"type"`
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
}

// ckptFile is the gzipped-JSON checkpoint layout.
type ckptFile struct {
	Name      string             `json:"name"`
	Timesteps int                `json:"timesteps"`
	Episodes  int                `json:"episodes"`
	Updates   int                `json:"updates"`
	Variables map[string]ckptVar `json:"variables"`
}

func tensorTypeName(tsr etensor.Tensor) string {
	switch tsr.(type) {
	case *etensor.Float32:
		return "float32"
	case *etensor.Int64:
		return "int64"
	case *etensor.Bits:
		return "bool"
	}
	return "float64"
}

func tensorValues(tsr etensor.Tensor) []float64 {
	vals := make([]float64, tsr.Len())
	for i := range vals {
		vals[i] = tsr.FloatVal1D(i)
	}
	return vals
}

func setTensorValues(tsr etensor.Tensor, vals []float64) error {
	if len(vals) != tsr.Len() {
		return rlcore.Assertf("restore: variable size mismatch: %d vs %d", len(vals), tsr.Len())
	}
	for i, v := range vals {
		tsr.SetFloat1D(i, v)
	}
	return nil
}

// writeCheckpoint saves the variable tree and counters as gzipped JSON.
func (m *Model) writeCheckpoint(path string) error {
	names, vars := m.savedVars()
	ck := ckptFile{
		Name:      m.Config.Name,
		Timesteps: m.Timesteps.Cur,
		Episodes:  m.Episodes.Cur,
		Updates:   m.Updates.Cur,
		Variables: make(map[string]ckptVar, len(names)),
	}
	for _, nm := range names {
		tsr := vars[nm]
		shp := make([]int, tsr.NumDims())
		for d := range shp {
			shp[d] = tsr.Dim(d)
		}
		ck.Variables[nm] = ckptVar{
			Type:   tensorTypeName(tsr),
			Shape:  shp,
			Values: tensorValues(tsr),
		}
	}
	fp, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	defer fp.Close()
	gz := gzip.NewWriter(fp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "\t")
	if err := enc.Encode(&ck); err != nil {
		gz.Close()
		return fmt.Errorf("checkpoint: %w", err)
	}
	return gz.Close()
}

// readCheckpoint restores the variable tree and counters from a
// checkpoint written by writeCheckpoint.
func (m *Model) readCheckpoint(path string) error {
	fp, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	defer fp.Close()
	gz, err := gzip.NewReader(fp)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	defer gz.Close()
	var ck ckptFile
	if err := json.NewDecoder(gz).Decode(&ck); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	names, vars := m.savedVars()
	for _, nm := range names {
		cv, ok := ck.Variables[nm]
		if !ok {
			return rlcore.Assertf("restore: checkpoint is missing variable %s", nm)
		}
		if err := setTensorValues(vars[nm], cv.Values); err != nil {
			return err
		}
	}
	m.Timesteps.Cur = ck.Timesteps
	m.Episodes.Cur = ck.Episodes
	m.Updates.Cur = ck.Updates
	return nil
}

// Save writes the model in the given format and returns the path
// written.  With an empty directory the configured saver is used and
// a checkpoint is forced.  filename defaults to the model name;
// appendUnit != NoAppend appends the current value of that counter.
func (m *Model) Save(directory, filename string, format SaveFormat, appendUnit Unit) (string, error) {
	if m.InitSt != Initialized {
		return "", rlcore.Assertf("Model.save: model is not initialized")
	}
	if directory == "" {
		if m.ckpts == nil {
			return "", rlcore.Required("Model.save", "directory")
		}
		return m.ckpts.save(true)
	}
	if filename == "" {
		filename = m.Config.Name
	}
	if appendUnit != NoAppend {
		filename = fmt.Sprintf("%s-%d", filename, m.counter(appendUnit))
	}
	if err := os.MkdirAll(directory, 0755); err != nil {
		return "", fmt.Errorf("Model.save: %w", err)
	}
	switch format {
	case Checkpoint:
		path := filepath.Join(directory, filename+ckptExt)
		return path, m.writeCheckpoint(path)
	case SavedModel:
		return m.exportSavedModel(filepath.Join(directory, filename))
	case Numpy:
		path := filepath.Join(directory, filename+".npz")
		return path, m.writeNumpy(path)
	case HDF5:
		path := filepath.Join(directory, filename+".hdf5")
		return path, m.writeHDF5(path)
	}
	return "", rlcore.Value("Model.save", "format", format.String(),
		"not from {checkpoint,saved-model,numpy,hdf5}")
}

// Restore loads a previously saved model and returns the restored
// counter values.  The saved-model format is export-only.  For
// checkpoints an empty directory falls back to the configured saver,
// and an empty filename selects the latest checkpoint.
func (m *Model) Restore(directory, filename string, format SaveFormat) (timesteps, episodes, updates int, err error) {
	if m.InitSt != Initialized {
		return 0, 0, 0, rlcore.Assertf("Model.restore: model is not initialized")
	}
	switch format {
	case SavedModel:
		return 0, 0, 0, rlcore.Value("Model.load", "format", format.String(),
			"saved-model is export-only")
	case Checkpoint:
		if directory == "" {
			if m.saverCfg == nil {
				return 0, 0, 0, rlcore.Required("Model.load", "directory")
			}
			directory = m.saverCfg.Directory
			if filename == "" {
				filename = m.saverCfg.Filename
			}
		}
		path := filepath.Join(directory, filename+ckptExt)
		if _, serr := os.Stat(path); serr != nil {
			path, err = latestCheckpoint(directory, filename)
			if err != nil {
				return 0, 0, 0, err
			}
		}
		if err = m.readCheckpoint(path); err != nil {
			return 0, 0, 0, err
		}
	case Numpy, HDF5:
		if directory == "" {
			return 0, 0, 0, rlcore.Required("Model.load", "directory")
		}
		if filename == "" {
			return 0, 0, 0, rlcore.Required("Model.load", "filename")
		}
		if format == Numpy {
			err = m.readNumpy(filepath.Join(directory, filename+".npz"))
		} else {
			path := filepath.Join(directory, filename+".hdf5")
			if _, serr := os.Stat(path); serr != nil {
				path = filepath.Join(directory, filename+".h5")
			}
			err = m.readHDF5(path)
		}
		if err != nil {
			return 0, 0, 0, err
		}
	default:
		return 0, 0, 0, rlcore.Value("Model.load", "format", format.String(),
			"not from {checkpoint,numpy,hdf5}")
	}
	timesteps, episodes, updates = m.Reset()
	return timesteps, episodes, updates, nil
}

// exportSavedModel writes a deployment export directory: the value
// specs of the independent-act signature as JSON, plus the variable
// tree as an npz archive.
func (m *Model) exportSavedModel(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("saved-model: %w", err)
	}
	sig := map[string]interface{}{
		"name":        m.Config.Name,
		"states":      m.StatesSpec,
		"internals":   m.InternalsSpec,
		"auxiliaries": m.AuxiliariesSpec,
		"actions":     m.ActionsSpec,
	}
	data, err := json.MarshalIndent(sig, "", "\t")
	if err != nil {
		return "", fmt.Errorf("saved-model: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model-spec.json"), data, 0644); err != nil {
		return "", fmt.Errorf("saved-model: %w", err)
	}
	if err := m.writeNumpy(filepath.Join(dir, "variables.npz")); err != nil {
		return "", err
	}
	return dir, nil
}

// npz is a zip archive of .npy entries, one per variable plus one per
// counter.

func npzWriteEntry(zw *zip.Writer, name string, tsr etensor.Tensor) error {
	w, err := zw.Create(name + ".npy")
	if err != nil {
		return err
	}
	switch t := tsr.(type) {
	case *etensor.Float32:
		return npyio.Write(w, t.Values)
	case *etensor.Int64:
		return npyio.Write(w, t.Values)
	default:
		bools := make([]bool, tsr.Len())
		for i := range bools {
			bools[i] = tsr.FloatVal1D(i) != 0
		}
		return npyio.Write(w, bools)
	}
}

func npzReadEntry(zr *zip.ReadCloser, name string, tsr etensor.Tensor) error {
	var file *zip.File
	for _, f := range zr.File {
		if f.Name == name+".npy" {
			file = f
			break
		}
	}
	if file == nil {
		return rlcore.Assertf("restore: archive is missing variable %s", name)
	}
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	switch t := tsr.(type) {
	case *etensor.Float32:
		var vals []float32
		if err := npyio.Read(rc, &vals); err != nil {
			return err
		}
		if len(vals) != len(t.Values) {
			return rlcore.Assertf("restore: variable size mismatch for %s", name)
		}
		copy(t.Values, vals)
	case *etensor.Int64:
		var vals []int64
		if err := npyio.Read(rc, &vals); err != nil {
			return err
		}
		if len(vals) != len(t.Values) {
			return rlcore.Assertf("restore: variable size mismatch for %s", name)
		}
		copy(t.Values, vals)
	default:
		var vals []bool
		if err := npyio.Read(rc, &vals); err != nil {
			return err
		}
		if len(vals) != tsr.Len() {
			return rlcore.Assertf("restore: variable size mismatch for %s", name)
		}
		for i, b := range vals {
			v := 0.0
			if b {
				v = 1
			}
			tsr.SetFloat1D(i, v)
		}
	}
	return nil
}

func (m *Model) writeNumpy(path string) error {
	fp, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("numpy: %w", err)
	}
	defer fp.Close()
	zw := zip.NewWriter(fp)
	names, vars := m.savedVars()
	for _, nm := range names {
		if err := npzWriteEntry(zw, nm, vars[nm]); err != nil {
			zw.Close()
			return fmt.Errorf("numpy: %w", err)
		}
	}
	for nm, c := range m.counterMap() {
		w, err := zw.Create(nm + ".npy")
		if err != nil {
			zw.Close()
			return fmt.Errorf("numpy: %w", err)
		}
		if err := npyio.Write(w, []int64{int64(c)}); err != nil {
			zw.Close()
			return fmt.Errorf("numpy: %w", err)
		}
	}
	return zw.Close()
}

func (m *Model) readNumpy(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("numpy: %w", err)
	}
	defer zr.Close()
	names, vars := m.savedVars()
	for _, nm := range names {
		if err := npzReadEntry(zr, nm, vars[nm]); err != nil {
			return fmt.Errorf("numpy: %w", err)
		}
	}
	cs := make(map[string]int, 3)
	for nm := range m.counterMap() {
		var file *zip.File
		for _, f := range zr.File {
			if f.Name == nm+".npy" {
				file = f
				break
			}
		}
		if file == nil {
			return rlcore.Assertf("restore: archive is missing counter %s", nm)
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("numpy: %w", err)
		}
		var vals []int64
		err = npyio.Read(rc, &vals)
		rc.Close()
		if err != nil {
			return fmt.Errorf("numpy: bad counter %s: %w", nm, err)
		}
		if len(vals) != 1 {
			return rlcore.Assertf("restore: counter %s has %d values, expected 1", nm, len(vals))
		}
		cs[nm] = int(vals[0])
	}
	m.setCounters(cs)
	return nil
}

func (m *Model) counterMap() map[string]int {
	return map[string]int{
		"timesteps": m.Timesteps.Cur,
		"episodes":  m.Episodes.Cur,
		"updates":   m.Updates.Cur,
	}
}

func (m *Model) setCounters(cs map[string]int) {
	m.Timesteps.Cur = cs["timesteps"]
	m.Episodes.Cur = cs["episodes"]
	m.Updates.Cur = cs["updates"]
}

// hdf5 dataset names cannot nest without groups, so slashes in
// variable names become dots.
func h5Name(nm string) string {
	return strings.ReplaceAll(nm, "/", ".")
}

func h5WriteDataset(f *hdf5.File, name string, data interface{}, dims []uint) error {
	dspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer dspace.Close()
	dtype, err := hdf5.NewDatatypeFromValue(elemOf(data))
	if err != nil {
		return err
	}
	defer dtype.Close()
	dset, err := f.CreateDataset(name, dtype, dspace)
	if err != nil {
		return err
	}
	defer dset.Close()
	return dset.Write(data)
}

// elemOf returns a zero element value for datatype construction.
func elemOf(data interface{}) interface{} {
	switch data.(type) {
	case *[]float32:
		return float32(0)
	case *[]int64:
		return int64(0)
	}
	return float64(0)
}

func (m *Model) writeHDF5(path string) error {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("hdf5: %w", err)
	}
	defer f.Close()
	names, vars := m.savedVars()
	for _, nm := range names {
		tsr := vars[nm]
		dims := make([]uint, tsr.NumDims())
		for d := range dims {
			dims[d] = uint(tsr.Dim(d))
		}
		var data interface{}
		switch t := tsr.(type) {
		case *etensor.Float32:
			data = &t.Values
		case *etensor.Int64:
			data = &t.Values
		default:
			ints := make([]int64, tsr.Len())
			for i := range ints {
				if tsr.FloatVal1D(i) != 0 {
					ints[i] = 1
				}
			}
			data = &ints
		}
		if err := h5WriteDataset(f, h5Name(nm), data, dims); err != nil {
			return fmt.Errorf("hdf5: %s: %w", nm, err)
		}
	}
	for nm, c := range m.counterMap() {
		vals := []int64{int64(c)}
		if err := h5WriteDataset(f, nm, &vals, []uint{1}); err != nil {
			return fmt.Errorf("hdf5: %s: %w", nm, err)
		}
	}
	return nil
}

func h5ReadInto(f *hdf5.File, name string, tsr etensor.Tensor) error {
	dset, err := f.OpenDataset(name)
	if err != nil {
		return err
	}
	defer dset.Close()
	switch t := tsr.(type) {
	case *etensor.Float32:
		vals := make([]float32, tsr.Len())
		if err := dset.Read(&vals); err != nil {
			return err
		}
		copy(t.Values, vals)
	case *etensor.Int64:
		vals := make([]int64, tsr.Len())
		if err := dset.Read(&vals); err != nil {
			return err
		}
		copy(t.Values, vals)
	default:
		vals := make([]int64, tsr.Len())
		if err := dset.Read(&vals); err != nil {
			return err
		}
		for i, v := range vals {
			fv := 0.0
			if v != 0 {
				fv = 1
			}
			tsr.SetFloat1D(i, fv)
		}
	}
	return nil
}

func (m *Model) readHDF5(path string) error {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return fmt.Errorf("hdf5: %w", err)
	}
	defer f.Close()
	names, vars := m.savedVars()
	for _, nm := range names {
		if err := h5ReadInto(f, h5Name(nm), vars[nm]); err != nil {
			return fmt.Errorf("hdf5: %s: %w", nm, err)
		}
	}
	cs := make(map[string]int, 3)
	for nm := range m.counterMap() {
		dset, err := f.OpenDataset(nm)
		if err != nil {
			return fmt.Errorf("hdf5: %s: %w", nm, err)
		}
		vals := make([]int64, 1)
		err = dset.Read(&vals)
		dset.Close()
		if err != nil {
			return fmt.Errorf("hdf5: %s: %w", nm, err)
		}
		cs[nm] = int(vals[0])
	}
	m.setCounters(cs)
	return nil
}
