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
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/wtsi-ssg/batchjob/dataset"
	"github.com/wtsi-ssg/batchjob/dataset/writer"
	"github.com/wtsi-ssg/batchjob/jobdb"
)

// mergeDatasetReports folds one worker's DatasetReport map into outcome's
// running aggregate, combining per-slice column counts/min/max across
// every worker that touched the same dataset (§4.4 "the launcher collects
// from each worker the metadata needed to finalise datasets").
func mergeDatasetReports(outcome *Outcome, reports map[string]DatasetReport) error {
	for name, report := range reports {
		existing, ok := outcome.Datasets[name]
		if !ok {
			existing = DatasetReport{
				Hashlabel: report.Hashlabel,
				Caption:   report.Caption,
				Previous:  report.Previous,
				Parent:    report.Parent,
				Columns:   make(map[string]ColumnReport),
			}
		}

		for colName, col := range report.Columns {
			cur, ok := existing.Columns[colName]
			if !ok {
				existing.Columns[colName] = col

				continue
			}

			cur.PerSlice = append(cur.PerSlice, col.PerSlice...)

			if cur.Min == nil || (col.Min != nil && lessValue(col.Min, cur.Min)) {
				cur.Min = col.Min
			}

			if cur.Max == nil || (col.Max != nil && lessValue(cur.Max, col.Max)) {
				cur.Max = col.Max
			}

			existing.Columns[colName] = cur
		}

		outcome.Datasets[name] = existing
	}

	return nil
}

func lessValue(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)

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

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// FinalizeDatasets writes DS/<name>.p for every dataset the job's workers
// reported, applying the §4.5.4 merge policy to their column files, in
// ancestor-first order so a dataset chained to a sibling produced by the
// same job is only finished after that sibling (§4.4 "Dataset writers").
func FinalizeDatasets(jobPath string, slices int, reports map[string]DatasetReport) error {
	order := topoOrder(reports)

	for _, name := range order {
		report := reports[name]

		if err := finalizeOne(jobPath, slices, name, report); err != nil {
			return err
		}
	}

	return nil
}

func finalizeOne(jobPath string, slices int, name string, report DatasetReport) error {
	dsDir := filepath.Join(jobPath, "DS", dataset.FSSafeName(name)+".d")

	colNames := make([]string, 0, len(report.Columns))
	for colName := range report.Columns {
		colNames = append(colNames, colName)
	}

	sort.Strings(colNames)

	mergeInputs := make([]writer.ColumnFileInfo, 0, len(colNames))

	for _, colName := range colNames {
		col := report.Columns[colName]
		paths := make([]string, slices)

		present := make(map[int]bool, len(col.PerSlice))
		for _, sc := range col.PerSlice {
			present[sc.Slice] = true
		}

		for sliceno := 0; sliceno < slices; sliceno++ {
			if present[sliceno] {
				paths[sliceno] = filepath.Join(dsDir, colName+"%"+strconv.Itoa(sliceno)+".gz")
			}
		}

		mergeInputs = append(mergeInputs, writer.ColumnFileInfo{
			Name:        colName,
			SlicePaths:  paths,
			Compression: col.Compression,
		})
	}

	merged, err := writer.Merge(dsDir, mergeInputs)
	if err != nil {
		return err
	}

	m := dataset.NewMetadata(name)
	m.Hashlabel = report.Hashlabel
	m.Caption = report.Caption
	m.Previous = report.Previous
	m.Parent = report.Parent
	m.Lines = make([]int64, slices)

	for _, colName := range colNames {
		col := report.Columns[colName]

		for _, sc := range col.PerSlice {
			if sc.Count > m.Lines[sc.Slice] {
				m.Lines[sc.Slice] = sc.Count
			}
		}

		mr := merged[colName]

		m.Columns[colName] = dataset.ColumnMeta{
			Type:        col.Type,
			Compression: col.Compression,
			Location:    mr.Location,
			Min:         col.Min,
			Max:         col.Max,
			Offsets:     mr.Offsets,
		}
	}

	return dataset.Save(filepath.Join(jobPath, "DS", dataset.FSSafeName(name)+".p"), m)
}

// topoOrder returns dataset names such that a dataset whose Previous names
// another dataset in the same report set comes after it (§4.4 "finishing a
// dataset whose previous points into the same job only after that
// previous is finished").
func topoOrder(reports map[string]DatasetReport) []string {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}

	sort.Strings(names)

	var (
		order   []string
		visited = make(map[string]bool, len(names))
	)

	var visit func(name string)

	visit = func(name string) {
		if visited[name] {
			return
		}

		visited[name] = true

		if report, ok := reports[name]; ok && report.Previous != "" {
			if _, ok := reports[report.Previous]; ok {
				visit(report.Previous)
			}
		}

		order = append(order, name)
	}

	for _, name := range names {
		visit(name)
	}

	return order
}

// WritePost writes post.json for a completed job (§6.2).
func WritePost(jobPath string, startTime, endTime time.Time, outcome *Outcome) error {
	post := jobdb.PostFile{
		Version:   1,
		StartTime: float64(startTime.UnixNano()) / float64(time.Second),
		EndTime:   float64(endTime.UnixNano()) / float64(time.Second),
		ExecTime: jobdb.ExecTime{
			Total:     endTime.Sub(startTime).Seconds(),
			Prepare:   outcome.Prepare.Seconds(),
			Analysis:  outcome.Analysis.Seconds(),
			Synthesis: outcome.Synthesis.Seconds(),
			PerSlice:  durationsToSeconds(outcome.PerSlice),
		},
		Files:   outcome.ProducedFiles,
		Subjobs: outcome.Subjobs,
	}

	data, err := json.Marshal(post)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(jobPath, "post.json"), data, 0o644) //nolint:gosec
}

func durationsToSeconds(ds []time.Duration) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = d.Seconds()
	}

	return out
}
