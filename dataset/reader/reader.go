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

// package reader implements dataset.DatasetReader/dataset.RowReader against
// the on-disk layouts dataset/writer produces: per-slice column files,
// per-column merged files, and the fully-merged single dataset file (§4.5.1),
// decoding each column's bytes back out with dataset/column's Decode*
// functions, the mirror image of writer.Writer's buildEncoder dispatch.
package reader

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wtsi-ssg/batchjob/dataset"
	"github.com/wtsi-ssg/batchjob/dataset/column"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

// ErrUnknownColumn is returned by OpenSlice when a requested column isn't
// declared in the dataset's metadata.
const ErrUnknownColumn = Error("reader: unknown column")

// Reader implements dataset.DatasetReader. It carries no state of its own;
// every OpenSlice call loads the target dataset's metadata fresh, the way a
// short-lived worker or CLI query does.
type Reader struct{}

// New returns a Reader.
func New() *Reader { return &Reader{} }

// OpenSlice implements dataset.DatasetReader (§4.5.3). A nil columns slice
// means every declared column. The returned RowReader yields exactly
// meta.Lines[slice] rows, reading each requested column's None-ness and
// value per dataset/column's wire format.
func (*Reader) OpenSlice(jobPath, fsSafeName string, slice int, columns []string) (dataset.RowReader, error) {
	meta, err := dataset.LoadMetadata(filepath.Join(jobPath, "DS", fsSafeName+".p"))
	if err != nil {
		return nil, err
	}

	if columns == nil {
		columns = make([]string, 0, len(meta.Columns))
		for name := range meta.Columns {
			columns = append(columns, name)
		}
	}

	var rowCount int64
	if slice >= 0 && slice < len(meta.Lines) {
		rowCount = meta.Lines[slice]
	}

	streams := make(map[string]io.ReadCloser, len(columns))
	types := make(map[string]column.Type, len(columns))

	for _, name := range columns {
		cm, ok := meta.Columns[name]
		if !ok {
			closeStreams(streams)

			return nil, ErrUnknownColumn
		}

		types[name] = cm.Type

		rc, err := openColumnSlice(jobPath, fsSafeName, name, slice, cm)
		if err != nil {
			closeStreams(streams)

			return nil, err
		}

		streams[name] = rc
	}

	return &rowReader{columns: columns, types: types, streams: streams, remaining: rowCount}, nil
}

func closeStreams(streams map[string]io.ReadCloser) {
	for _, rc := range streams {
		rc.Close() //nolint:errcheck
	}
}

// openColumnSlice opens the gzip-decompressing stream holding one column's
// data for one slice, whichever of the three §4.5.1 layouts it's stored in.
func openColumnSlice(jobPath, fsSafeName, col string, slice int, cm dataset.ColumnMeta) (io.ReadCloser, error) {
	if cm.Location == "" {
		path := filepath.Join(jobPath, "DS", fsSafeName+".d", fmt.Sprintf("%s%%%d.gz", col, slice))

		return openGzipAt(path, 0)
	}

	offset := dataset.OffsetAbsent
	if slice >= 0 && slice < len(cm.Offsets) {
		offset = cm.Offsets[slice]
	}

	if offset == dataset.OffsetAbsent {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	return openGzipAt(cm.Location, offset)
}

// openGzipAt opens path and returns a ReadCloser positioned at a single
// gzip member starting at offset (0 meaning "from the start"). Multistream
// decoding is disabled so reading stops at that member's end rather than
// continuing into a sibling slice's data concatenated after it in a merged
// file (§4.5.1 "merged file... per-slice offsets").
func openGzipAt(path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()

			return nil, err
		}
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()

		return nil, err
	}

	gz.Multistream(false)

	return &gzipStream{gz: gz, f: f}, nil
}

type gzipStream struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipStream) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipStream) Close() error {
	err := g.gz.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}

	return err
}

// rowReader implements dataset.RowReader over one dataset's one slice,
// decoding every requested column's stream in lockstep for exactly
// `remaining` rows.
type rowReader struct {
	columns   []string
	types     map[string]column.Type
	streams   map[string]io.ReadCloser
	remaining int64
}

func (r *rowReader) Next() (dataset.Row, bool, error) {
	if r.remaining <= 0 {
		return nil, false, nil
	}

	row := make(dataset.Row, len(r.columns))

	for _, name := range r.columns {
		v, err := decodeValue(r.streams[name], r.types[name])
		if err != nil {
			return nil, false, fmt.Errorf("reader: column %q: %w", name, err)
		}

		row[name] = v
	}

	r.remaining--

	return row, true, nil
}

func (r *rowReader) Close() error {
	var first error

	for _, rc := range r.streams {
		if err := rc.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// decodeValue reads one value of type t from r, the mirror image of
// writer.buildEncoder's per-type dispatch.
func decodeValue(r io.Reader, t column.Type) (interface{}, error) {
	switch t {
	case column.Int32:
		var b [4]byte
		if err := readFull(r, b[:]); err != nil {
			return nil, err
		}

		v, isNone := column.DecodeInt32(b[:])
		if isNone {
			return nil, nil
		}

		return v, nil
	case column.Int64:
		var b [8]byte
		if err := readFull(r, b[:]); err != nil {
			return nil, err
		}

		v, isNone := column.DecodeInt64(b[:])
		if isNone {
			return nil, nil
		}

		return v, nil
	case column.Float32:
		var b [4]byte
		if err := readFull(r, b[:]); err != nil {
			return nil, err
		}

		v, isNone := column.DecodeFloat32(b[:])
		if isNone {
			return nil, nil
		}

		return v, nil
	case column.Float64:
		var b [8]byte
		if err := readFull(r, b[:]); err != nil {
			return nil, err
		}

		v, isNone := column.DecodeFloat64(b[:])
		if isNone {
			return nil, nil
		}

		return v, nil
	case column.Bool:
		var b [1]byte
		if err := readFull(r, b[:]); err != nil {
			return nil, err
		}

		v, isNone := column.DecodeBool(b[0])
		if isNone {
			return nil, nil
		}

		return v, nil
	case column.ASCII, column.UTF8:
		data, isNone, err := column.DecodeBlob(r)
		if err != nil {
			return nil, err
		}

		if isNone {
			return nil, nil
		}

		return string(data), nil
	case column.Bytes:
		data, isNone, err := column.DecodeBlob(r)
		if err != nil {
			return nil, err
		}

		if isNone {
			return nil, nil
		}

		return data, nil
	case column.JSON:
		data, isNone, err := column.DecodeBlob(r)
		if err != nil {
			return nil, err
		}

		if isNone {
			return nil, nil
		}

		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}

		return v, nil
	case column.Number:
		n, err := column.DecodeNumber(r)
		if err != nil {
			return nil, err
		}

		return numberValue(n), nil
	case column.DateTime:
		var b [16]byte
		if err := readFull(r, b[:]); err != nil {
			return nil, err
		}

		sec, ns, isNone := column.DecodeDateTime(b[:])
		if isNone {
			return nil, nil
		}

		return time.Unix(sec, ns).UTC(), nil
	default:
		// Complex64/Complex128/Object/Date/Time: writer's buildEncoder
		// falls back to the blob encoding of fmt.Sprintf(v) for these, so
		// decode the same way.
		data, isNone, err := column.DecodeBlob(r)
		if err != nil {
			return nil, err
		}

		if isNone {
			return nil, nil
		}

		return string(data), nil
	}
}

func numberValue(n column.Number) interface{} {
	switch {
	case n.IsNone:
		return nil
	case n.IsFloat:
		return n.Float
	case n.Big != nil:
		return n.Big
	default:
		return n.Int64
	}
}

func readFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)

	return err
}
