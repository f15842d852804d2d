/*******************************************************************************
 * Copyright (c) 2024 Genome Research Ltd.
 *
 * Author: Sendu Bala <sb10@sanger.ac.uk>
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

// package writer implements the dataset write path (§4.5.4): per-slice and
// split writers, the hashlabel-based rehashing check, and the post-write
// merge policy that consolidates small per-slice column files into merged
// or fully-merged dataset files (§4.5.1).
package writer

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wtsi-ssg/batchjob/dataset"
	"github.com/wtsi-ssg/batchjob/dataset/column"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrSetSliceOnSplit is returned by SetSlice when called on a writer
	// built with Split=true (§4.5.4 "Split writers are incompatible with
	// setSlice").
	ErrSetSliceOnSplit = Error("writer: setSlice is incompatible with a split writer")

	// ErrWrongSlice is returned by WriteRow when a row's hashlabel value
	// doesn't belong in the writer's current slice and EnableHashDiscard
	// was not called.
	ErrWrongSlice = Error("writer: row's hashlabel value does not belong in this slice")

	// ErrDuplicateColumn means New was given two columns with the same name.
	ErrDuplicateColumn = Error("writer: duplicate column name")

	// ErrNoSliceSet means WriteRow was called before SetSlice (non-split
	// writers only).
	ErrNoSliceSet = Error("writer: no slice set")
)

const defaultGzipLevel = gzip.DefaultCompression

// ColumnDecl declares one column's type and compression before the first
// write (§4.5.4 "Columns and their types are declared before the first
// write").
type ColumnDecl struct {
	Name        string
	Type        column.Type
	Compression int // gzip level, 0 means use defaultGzipLevel
}

// perSliceState is the open file and running min/max/count for one
// column in one slice.
type perSliceState struct {
	file  *os.File
	gz    *gzip.Writer
	count int64
	min   interface{}
	max   interface{}
}

// Writer builds one dataset's on-disk column files during a job's
// analysis phase (§4.5.4). A Writer is either slice-bound (SetSlice
// called once per analysis worker) or a split writer (Split: true),
// never both.
type Writer struct {
	jobDir  string
	dsName  string
	slices  int
	columns []ColumnDecl

	hashlabel        string
	split             bool
	enableHashDiscard bool

	currentSlice int // -1 until SetSlice is called

	// state[sliceno][columnName]
	state map[int]map[string]*perSliceState

	// encoders holds one closure per declared column, specialised to its
	// type at construction time. This stands in for the source system's
	// runtime eval-generated split-write function (§9 "Split writer code
	// generation"): a closure built once per column configuration gives
	// the same no-dict-lookup hot path without runtime codegen.
	encoders map[string]func(v interface{}, buf *bytes.Buffer) error
}

// New returns a Writer for dataset dsName inside jobDir, declaring its
// columns up front. hashlabel may be empty. If split is true, WriteRow
// routes each row to the correct slice itself (via the hashlabel column,
// or round-robin if hashlabel is empty) and SetSlice must not be called.
func New(jobDir, dsName string, slices int, columns []ColumnDecl, hashlabel string, split bool) (*Writer, error) {
	seen := make(map[string]bool, len(columns))

	for _, c := range columns {
		if seen[c.Name] {
			return nil, ErrDuplicateColumn
		}

		seen[c.Name] = true
	}

	encoders := make(map[string]func(v interface{}, buf *bytes.Buffer) error, len(columns))
	for _, c := range columns {
		encoders[c.Name] = buildEncoder(c.Type)
	}

	return &Writer{
		jobDir:       jobDir,
		dsName:       dsName,
		slices:       slices,
		columns:      columns,
		hashlabel:    hashlabel,
		split:        split,
		currentSlice: -1,
		state:        make(map[int]map[string]*perSliceState),
		encoders:     encoders,
	}, nil
}

// buildEncoder returns the closure responsible for encoding one column's
// values, chosen once at writer-construction time based on t.
func buildEncoder(t column.Type) func(v interface{}, buf *bytes.Buffer) error {
	switch t {
	case column.Int32:
		return func(v interface{}, buf *bytes.Buffer) error {
			i, isNone := asInt32(v)
			b := column.EncodeInt32(i, isNone)
			_, err := buf.Write(b[:])

			return err
		}
	case column.Int64:
		return func(v interface{}, buf *bytes.Buffer) error {
			i, isNone := asInt64(v)
			b := column.EncodeInt64(i, isNone)
			_, err := buf.Write(b[:])

			return err
		}
	case column.Float32:
		return func(v interface{}, buf *bytes.Buffer) error {
			f, isNone := asFloat32(v)
			b := column.EncodeFloat32(f, isNone)
			_, err := buf.Write(b[:])

			return err
		}
	case column.Float64:
		return func(v interface{}, buf *bytes.Buffer) error {
			f, isNone := asFloat64(v)
			b := column.EncodeFloat64(f, isNone)
			_, err := buf.Write(b[:])

			return err
		}
	case column.Bool:
		return func(v interface{}, buf *bytes.Buffer) error {
			b, isNone := asBool(v)

			return buf.WriteByte(column.EncodeBool(b, isNone))
		}
	case column.ASCII, column.UTF8, column.Bytes, column.JSON:
		return func(v interface{}, buf *bytes.Buffer) error {
			data, isNone := asBytes(v)

			return column.EncodeBlob(buf, data, isNone)
		}
	case column.Number:
		return func(v interface{}, buf *bytes.Buffer) error {
			return column.EncodeNumber(buf, asNumber(v))
		}
	case column.DateTime:
		return func(v interface{}, buf *bytes.Buffer) error {
			sec, ns, isNone := asDateTime(v)
			b := column.EncodeDateTime(sec, ns, isNone)
			_, err := buf.Write(b[:])

			return err
		}
	default:
		return func(v interface{}, buf *bytes.Buffer) error {
			data, isNone := asBytes(v)

			return column.EncodeBlob(buf, data, isNone)
		}
	}
}

func asInt32(v interface{}) (int32, bool) {
	if v == nil {
		return 0, true
	}

	switch t := v.(type) {
	case int32:
		return t, false
	case int:
		return int32(t), false //nolint:gosec
	case int64:
		return int32(t), false //nolint:gosec
	default:
		return 0, true
	}
}

func asInt64(v interface{}) (int64, bool) {
	if v == nil {
		return 0, true
	}

	switch t := v.(type) {
	case int64:
		return t, false
	case int:
		return int64(t), false
	case int32:
		return int64(t), false
	default:
		return 0, true
	}
}

func asFloat32(v interface{}) (float32, bool) {
	if v == nil {
		return 0, true
	}

	f, ok := asFloat(v)
	if !ok {
		return 0, true
	}

	return float32(f), false
}

func asFloat64(v interface{}) (float64, bool) {
	if v == nil {
		return 0, true
	}

	f, ok := asFloat(v)
	if !ok {
		return 0, true
	}

	return f, false
}

func asBool(v interface{}) (bool, bool) {
	if v == nil {
		return false, true
	}

	b, ok := v.(bool)
	if !ok {
		return false, true
	}

	return b, false
}

func asBytes(v interface{}) ([]byte, bool) {
	if v == nil {
		return nil, true
	}

	switch t := v.(type) {
	case []byte:
		return t, false
	case string:
		return []byte(t), false
	default:
		return []byte(fmt.Sprintf("%v", t)), false
	}
}

func asDateTime(v interface{}) (seconds, nanos int64, isNone bool) {
	if v == nil {
		return 0, 0, true
	}

	t, ok := v.(time.Time)
	if !ok {
		return 0, 0, true
	}

	return t.Unix(), int64(t.Nanosecond()), false
}

func asNumber(v interface{}) column.Number {
	if v == nil {
		return column.Number{IsNone: true}
	}

	switch t := v.(type) {
	case column.Number:
		return t
	case int:
		return column.Number{Int64: int64(t)}
	case int64:
		return column.Number{Int64: t}
	case float64:
		return column.Number{IsFloat: true, Float: t}
	default:
		return column.Number{IsFloat: true, Float: 0}
	}
}

// SetSlice binds this writer instance to sliceno until SetSlice is called
// again (§4.5.4 "In analysis each slice owns one writer instance (set via
// setSlice(sliceno))"). Not valid on a split writer.
func (w *Writer) SetSlice(sliceno int) error {
	if w.split {
		return ErrSetSliceOnSplit
	}

	w.currentSlice = sliceno

	return w.ensureSlice(sliceno)
}

// EnableHashDiscard makes WriteRow silently discard (instead of erroring
// on) a row whose hashlabel value doesn't belong in the writer's current
// slice (§4.5.4 "enableHashDiscard makes wrong-slice writes silently
// discarded instead of failing").
func (w *Writer) EnableHashDiscard() {
	w.enableHashDiscard = true
}

// HashCheck reports whether value (the hashlabel column's value for some
// row) belongs in the writer's current slice (§4.5.4 "hashCheck(value)
// returns whether the row belongs in the current slice").
func (w *Writer) HashCheck(value interface{}) bool {
	return dataset.SliceFor(value, w.slices) == w.currentSlice
}

func (w *Writer) ensureSlice(sliceno int) error {
	if w.state[sliceno] != nil {
		return nil
	}

	dir := filepath.Join(w.jobDir, "DS", dataset.FSSafeName(w.dsName)+".d")
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		return err
	}

	cols := make(map[string]*perSliceState, len(w.columns))

	for _, c := range w.columns {
		path := filepath.Join(dir, fmt.Sprintf("%s%%%d.gz", c.Name, sliceno))

		f, err := os.Create(path) //nolint:gosec
		if err != nil {
			return err
		}

		level := c.Compression
		if level == 0 {
			level = defaultGzipLevel
		}

		gz, err := gzip.NewWriterLevel(f, level)
		if err != nil {
			return err
		}

		cols[c.Name] = &perSliceState{file: f, gz: gz}
	}

	w.state[sliceno] = cols

	return nil
}

// WriteRow encodes one row's values, keyed by column name, into the
// appropriate slice's column files. For a split writer the destination
// slice is computed from row[w.hashlabel] (or round-robin across
// previously-seen row counts if hashlabel is empty); for a slice-bound
// writer it is whatever SetSlice bound, subject to HashCheck/
// EnableHashDiscard when a hashlabel is declared.
func (w *Writer) WriteRow(row map[string]interface{}) error {
	sliceno, ok, err := w.destinationSlice(row)
	if err != nil {
		return err
	}

	if !ok {
		return nil // discarded by EnableHashDiscard
	}

	if err := w.ensureSlice(sliceno); err != nil {
		return err
	}

	cols := w.state[sliceno]

	for _, c := range w.columns {
		var buf bytes.Buffer

		v := row[c.Name]

		if err := w.encoders[c.Name](v, &buf); err != nil {
			return err
		}

		st := cols[c.Name]

		if _, err := st.gz.Write(buf.Bytes()); err != nil {
			return err
		}

		st.count++
		updateMinMax(st, v)
	}

	return nil
}

func (w *Writer) destinationSlice(row map[string]interface{}) (int, bool, error) {
	if !w.split {
		if w.currentSlice < 0 {
			return 0, false, ErrNoSliceSet
		}

		if w.hashlabel != "" {
			belongs := w.HashCheck(row[w.hashlabel])
			if !belongs {
				if w.enableHashDiscard {
					return 0, false, nil
				}

				return 0, false, ErrWrongSlice
			}
		}

		return w.currentSlice, true, nil
	}

	if w.hashlabel != "" {
		return dataset.SliceFor(row[w.hashlabel], w.slices), true, nil
	}

	return w.roundRobinSlice(), true, nil
}

func (w *Writer) roundRobinSlice() int {
	total := int64(0)

	for _, cols := range w.state {
		for _, st := range cols {
			total += st.count

			break
		}
	}

	if w.slices <= 0 {
		return 0
	}

	return int(total % int64(w.slices))
}

func updateMinMax(st *perSliceState, v interface{}) {
	if v == nil {
		return
	}

	if st.min == nil || less(v, st.min) {
		st.min = v
	}

	if st.max == nil || less(st.max, v) {
		st.max = v
	}
}

func less(a, b interface{}) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)

	if aok && bok {
		return af < bf
	}

	as, aok := a.(string)
	bs, bok := b.(string)

	if aok && bok {
		return as < bs
	}

	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// Finish closes every open column file across every slice this writer
// instance touched and returns the per-slice, per-column metadata the
// launcher needs to aggregate across workers (§4.4 "Dataset writers ...
// collects from each worker the metadata needed to finalise datasets").
func (w *Writer) Finish() (SliceResult, error) {
	result := SliceResult{Columns: make(map[string]ColumnSliceInfo)}

	for sliceno, cols := range w.state {
		for name, st := range cols {
			if err := st.gz.Close(); err != nil {
				return SliceResult{}, err
			}

			if err := st.file.Close(); err != nil {
				return SliceResult{}, err
			}

			info := result.Columns[name]
			info.PerSlice = append(info.PerSlice, SliceCount{Slice: sliceno, Count: st.count})

			if info.Min == nil || (st.min != nil && less(st.min, info.Min)) {
				info.Min = st.min
			}

			if info.Max == nil || (st.max != nil && less(info.Max, st.max)) {
				info.Max = st.max
			}

			result.Columns[name] = info
		}
	}

	return result, nil
}

// SliceCount is one slice's row count for a column.
type SliceCount struct {
	Slice int
	Count int64
}

// ColumnSliceInfo aggregates one column's per-slice counts and overall
// min/max, matching the aggregation-channel payload described in §4.4
// ("datasetWriterLengths, datasetWriterMinMax, datasetWriterCompressions").
type ColumnSliceInfo struct {
	PerSlice []SliceCount
	Min, Max interface{}
}

// SliceResult is what Finish returns: per-column aggregated slice info for
// everything this writer instance wrote.
type SliceResult struct {
	Columns map[string]ColumnSliceInfo
}
