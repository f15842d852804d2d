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
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"time"

	"github.com/wtsi-ssg/batchjob/method"
)

// DatasetResolver turns a dataset locator (as recorded in setup.json's
// "datasets" map) into the live handle a phase function's Params.Datasets
// expects. JobResolver is called once per job id only to check that it
// resolves: its result is discarded, and Params.Jobs carries the ids
// themselves. Both are supplied by
// the process that calls RunWorker (cmd's hidden worker subcommand), which
// has access to the dataset and jobdb packages; this package only needs
// their result, not how it's produced, to avoid every worker invocation
// depending on the full server-side wiring.
type DatasetResolver func(locator string) (interface{}, error)
type JobResolver func(jobID string) (interface{}, error)

// RunWorker executes one phase of one job in the current process: it is
// the body of the hidden worker subcommand a spawned process re-enters
// with. It reads nothing itself - req is already decoded - builds the
// phase's Params, invokes it with panic recovery, snapshots which files
// under req.JobPath are new since invocation, and writes the resulting
// WorkerMessage to result.
func RunWorker(ctx context.Context, def *method.Definition, resolveDataset DatasetResolver,
	resolveJob JobResolver, req WorkerRequest, preamble, result io.Writer,
) error {
	if err := writeWorkerPreamble(preamble); err != nil {
		return err
	}

	before, err := snapshotFiles(req.JobPath)
	if err != nil {
		return err
	}

	msg := runPhase(ctx, def, resolveDataset, resolveJob, req)

	after, err := snapshotFiles(req.JobPath)
	if err == nil {
		msg.ProducedFiles = diffFiles(before, after)
	}

	return WriteMessage(result, msg)
}

// runPhase invokes the declared phase function for req.Phase, recovering
// from a panic the same way a failed slice is reported via Traceback
// (§4.4 "Exception in ... -> job fails").
func runPhase(ctx context.Context, def *method.Definition, resolveDataset DatasetResolver,
	resolveJob JobResolver, req WorkerRequest,
) (msg WorkerMessage) {
	msg.SliceNo = req.SliceNo

	fn := phaseFunc(def, req.Phase)
	if fn == nil {
		msg.Traceback = fmt.Sprintf("method %q declares no %s phase", req.Method, req.Phase)

		return msg
	}

	params, err := buildParams(req, resolveDataset, resolveJob)
	if err != nil {
		msg.Traceback = err.Error()

		return msg
	}

	start := time.Now()

	defer func() {
		msg.Elapsed = time.Since(start)

		if r := recover(); r != nil {
			msg.Traceback = fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	res, err := fn(ctx, params)
	if err != nil {
		msg.Traceback = err.Error()

		return msg
	}

	msg.Result = res.Value
	msg.FinishEarly = res.FinishEarly
	msg.Datasets = toDatasetReports(res.Datasets)

	return msg
}

func phaseFunc(def *method.Definition, phase method.Phase) method.PhaseFunc {
	switch phase {
	case method.PhasePrepare:
		return def.Prepare
	case method.PhaseAnalysis:
		return def.Analysis
	case method.PhaseSynthesis:
		return def.Synthesis
	default:
		return nil
	}
}

func buildParams(req WorkerRequest, resolveDataset DatasetResolver, resolveJob JobResolver) (method.Params, error) {
	params := method.Params{
		Slices:  req.Slices,
		SliceNo: req.SliceNo,
		Options: req.Options,
		Job:     req.JobID,
		Prepare: req.Prepare,
	}

	datasets := make(map[string]interface{}, len(req.Datasets))

	for name, v := range req.Datasets {
		switch t := v.(type) {
		case string:
			handle, err := resolveDataset(t)
			if err != nil {
				return method.Params{}, fmt.Errorf("resolving dataset %q: %w", name, err)
			}

			datasets[name] = handle
		case []interface{}:
			handles := make([]interface{}, 0, len(t))

			for _, item := range t {
				locator, ok := item.(string)
				if !ok {
					continue
				}

				handle, err := resolveDataset(locator)
				if err != nil {
					return method.Params{}, fmt.Errorf("resolving dataset %q: %w", name, err)
				}

				handles = append(handles, handle)
			}

			datasets[name] = handles
		}
	}

	params.Datasets = datasets

	jobs := make(map[string]string, len(req.Jobs))

	for name, v := range req.Jobs {
		if s, ok := v.(string); ok {
			jobs[name] = s
		}
	}

	params.Jobs = jobs

	if resolveJob != nil {
		for _, jobID := range jobs {
			if _, err := resolveJob(jobID); err != nil {
				return method.Params{}, fmt.Errorf("resolving job %q: %w", jobID, err)
			}
		}
	}

	return params, nil
}

func toDatasetReports(outputs []method.DatasetOutput) map[string]DatasetReport {
	if len(outputs) == 0 {
		return nil
	}

	out := make(map[string]DatasetReport, len(outputs))

	for _, d := range outputs {
		cols := make(map[string]ColumnReport, len(d.Columns))

		for _, c := range d.Columns {
			cols[c.Name] = ColumnReport{
				Type:            c.Type,
				Compression:     c.Compression,
				ColumnSliceInfo: c.Result,
			}
		}

		out[d.Name] = DatasetReport{
			Hashlabel: d.Hashlabel,
			Caption:   d.Caption,
			Previous:  d.Previous,
			Parent:    d.Parent,
			Columns:   cols,
		}
	}

	return out
}

// snapshotFiles lists every regular file under dir, relative to dir.
func snapshotFiles(dir string) (map[string]bool, error) {
	out := make(map[string]bool)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return rerr
		}

		out[rel] = true

		return nil
	})

	return out, err
}

func diffFiles(before, after map[string]bool) []string {
	var out []string

	for name := range after {
		if !before[name] {
			out = append(out, name)
		}
	}

	sort.Strings(out)

	return out
}
