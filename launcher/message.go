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

// package launcher executes one job across its prepare/analysis/synthesis
// phases and slices (§4.4), respecting the concurrency contract, capturing
// per-slice output, and aggregating the results needed to finalise a job's
// datasets and write post.json.
package launcher

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"time"

	"github.com/wtsi-ssg/batchjob/dataset/column"
	"github.com/wtsi-ssg/batchjob/dataset/writer"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrDisagreement means analysis slices disagreed about finishing
	// early (§4.4 "All slices must agree; disagreement is a fatal error").
	ErrDisagreement = Error("launcher: analysis slices disagreed about finishing early")

	// ErrWorkerDied means a worker process exited without sending a
	// WorkerMessage (§4.4 "Worker exit without a message -> fatal").
	ErrWorkerDied = Error("launcher: worker exited without reporting")
)

// WorkerMessage is what an analysis worker sends the launcher on
// completion (§4.4 "Aggregation channel"). Per §9's design note ("replace
// [pickles] with a length-prefixed binary message containing the fields
// enumerated in §4.4; avoid a general serialisation format") the envelope
// itself is hand-rolled length-prefixed binary built from the same
// column.EncodeBlob/DecodeBlob primitives the dataset engine uses for its
// variable-size columns, rather than gob/JSON-encoding the whole struct.
// The few fields whose shape is inherently dynamic (the produced-files
// list, per-dataset writer stats, and a method's own early-finish result
// value) are still carried as JSON *inside* one of those blobs - a
// pragmatic middle ground between "no framework at all" and reinventing a
// general object codec for values that are already small and rare.
type WorkerMessage struct {
	SliceNo     int
	Elapsed     time.Duration
	Traceback   string // non-empty means the slice failed
	FinishEarly bool
	Result      interface{} // only meaningful when FinishEarly

	// ProducedFiles are job-relative paths this slice wrote.
	ProducedFiles []string

	// Datasets maps a dataset name to what this slice wrote for it, ready
	// for the launcher to fold into that dataset's finished metadata
	// (§4.4 "Dataset writers").
	Datasets map[string]DatasetReport
}

// ColumnReport is one column's contribution from a single slice, matching
// the "datasetWriterLengths, datasetWriterMinMax, datasetWriterCompressions"
// aggregation-channel fields of §4.4. It carries writer.ColumnSliceInfo's
// per-slice counts/min/max plus the static type/compression the launcher
// needs to write a ColumnMeta, since a worker process is the only place
// that knows the column declarations it used.
type ColumnReport struct {
	Type        column.Type
	Compression int
	writer.ColumnSliceInfo
}

// DatasetReport is one dataset's contribution from a single slice.
type DatasetReport struct {
	Hashlabel string
	Caption   string
	Previous  string
	Parent    string
	Columns   map[string]ColumnReport
}

// WriteMessage encodes msg to w.
func WriteMessage(w io.Writer, msg WorkerMessage) error {
	var hdr [13]byte

	binary.LittleEndian.PutUint32(hdr[0:4], uint32(msg.SliceNo)) //nolint:gosec
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(msg.Elapsed))
	if msg.FinishEarly {
		hdr[12] = 1
	}

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	if err := column.EncodeBlob(w, []byte(msg.Traceback), msg.Traceback == ""); err != nil {
		return err
	}

	filesJSON, err := json.Marshal(msg.ProducedFiles)
	if err != nil {
		return err
	}

	if err := column.EncodeBlob(w, filesJSON, false); err != nil {
		return err
	}

	statsJSON, err := json.Marshal(msg.Datasets)
	if err != nil {
		return err
	}

	if err := column.EncodeBlob(w, statsJSON, false); err != nil {
		return err
	}

	resultJSON, err := json.Marshal(msg.Result)
	if err != nil {
		return err
	}

	return column.EncodeBlob(w, resultJSON, msg.Result == nil)
}

// ReadMessage decodes a WorkerMessage previously written by WriteMessage.
func ReadMessage(r io.Reader) (WorkerMessage, error) {
	var (
		msg WorkerMessage
		hdr [13]byte
	)

	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return msg, err
	}

	msg.SliceNo = int(int32(binary.LittleEndian.Uint32(hdr[0:4])))
	msg.Elapsed = time.Duration(binary.LittleEndian.Uint64(hdr[4:12])) //nolint:gosec
	msg.FinishEarly = hdr[12] == 1

	traceback, isNone, err := column.DecodeBlob(r)
	if err != nil {
		return msg, err
	}

	if !isNone {
		msg.Traceback = string(traceback)
	}

	filesJSON, _, err := column.DecodeBlob(r)
	if err != nil {
		return msg, err
	}

	if err := json.Unmarshal(filesJSON, &msg.ProducedFiles); err != nil {
		return msg, err
	}

	statsJSON, _, err := column.DecodeBlob(r)
	if err != nil {
		return msg, err
	}

	if err := json.Unmarshal(statsJSON, &msg.Datasets); err != nil {
		return msg, err
	}

	resultJSON, isNone, err := column.DecodeBlob(r)
	if err != nil {
		return msg, err
	}

	if !isNone {
		if err := json.Unmarshal(resultJSON, &msg.Result); err != nil {
			return msg, err
		}
	}

	return msg, nil
}

// EncodeMessage is a convenience wrapper returning the encoded bytes
// directly, used by worker processes writing a single message to stdout.
func EncodeMessage(msg WorkerMessage) ([]byte, error) {
	var buf bytes.Buffer

	if err := WriteMessage(&buf, msg); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
