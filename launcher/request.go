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

package launcher

import (
	"encoding/json"
	"io"

	"github.com/wtsi-ssg/batchjob/dataset/column"
	"github.com/wtsi-ssg/batchjob/method"
)

// WorkerRequest is everything a worker process needs to execute one phase
// of one job (§4.4 "Parameter injection"). It crosses the fork/exec
// boundary in place of the live Go closures and resolved handles a
// same-process call would use: the worker is the same compiled binary,
// re-invoked for this one phase/slice, and reconstructs what it needs
// (dataset handles, job records) from the locators carried here rather
// than receiving them over the wire, since those are not things that
// serialise meaningfully across a process boundary.
type WorkerRequest struct {
	JobID   string
	JobPath string
	Method  string
	Phase   method.Phase
	SliceNo int // -1 for prepare/synthesis
	Slices  int

	Options  map[string]interface{}
	Datasets map[string]interface{} // name -> locator, or []interface{} of locators
	Jobs     map[string]interface{} // name -> job id, or []interface{} of job ids

	// Prepare is the prepare phase's returned value, threaded into
	// analysis and synthesis requests.
	Prepare interface{}
}

// WriteRequest encodes req to w using the same envelope style as
// WriteMessage: a fixed binary header plus one JSON blob per dynamic
// field.
func WriteRequest(w io.Writer, req WorkerRequest) error {
	hdr := struct {
		SliceNo int32
		Slices  int32
		Phase   byte
	}{
		SliceNo: int32(req.SliceNo), //nolint:gosec
		Slices:  int32(req.Slices),  //nolint:gosec
		Phase:   byte(req.Phase),
	}

	if err := writeFixed(w, hdr); err != nil {
		return err
	}

	for _, s := range []string{req.JobID, req.JobPath, req.Method} {
		if err := column.EncodeBlob(w, []byte(s), false); err != nil {
			return err
		}
	}

	for _, v := range []interface{}{req.Options, req.Datasets, req.Jobs, req.Prepare} {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}

		if err := column.EncodeBlob(w, data, v == nil); err != nil {
			return err
		}
	}

	return nil
}

// ReadRequest decodes a WorkerRequest previously written by WriteRequest.
func ReadRequest(r io.Reader) (WorkerRequest, error) {
	var (
		req WorkerRequest
		hdr struct {
			SliceNo int32
			Slices  int32
			Phase   byte
		}
	)

	if err := readFixed(r, &hdr); err != nil {
		return req, err
	}

	req.SliceNo = int(hdr.SliceNo)
	req.Slices = int(hdr.Slices)
	req.Phase = method.Phase(hdr.Phase)

	strs := make([]string, 3)

	for i := range strs {
		b, _, err := column.DecodeBlob(r)
		if err != nil {
			return req, err
		}

		strs[i] = string(b)
	}

	req.JobID, req.JobPath, req.Method = strs[0], strs[1], strs[2]

	targets := []interface{}{&req.Options, &req.Datasets, &req.Jobs, &req.Prepare}

	for _, t := range targets {
		data, isNone, err := column.DecodeBlob(r)
		if err != nil {
			return req, err
		}

		if isNone {
			continue
		}

		if err := json.Unmarshal(data, t); err != nil {
			return req, err
		}
	}

	return req, nil
}
