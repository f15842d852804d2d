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

package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wtsi-ssg/batchjob/dataset"
)

// Merge thresholds from §4.5.4 "Merge policy": a column whose mean
// per-slice size is below mergeColumnThreshold is merged into one file
// with an offset table; if the resulting dataset's total size is then
// below mergeDatasetThreshold and every column was merged with the same
// compression level, all columns are concatenated into one
// fully-merged dataset file (§4.5.1).
const (
	mergeColumnThreshold  = 512 * 1024
	mergeDatasetThreshold = 4 * 1024 * 1024
)

// ColumnFileInfo is what Merge needs for one column: its per-slice file
// paths (index = sliceno, empty string for a slice with no rows) and
// compression level.
type ColumnFileInfo struct {
	Name       string
	SlicePaths []string // index = sliceno; "" if that slice wrote nothing
	Compression int
}

// MergeResult records, for one column, whether it ended up merged and if
// so at what path with what per-slice offsets (matching
// dataset.ColumnMeta.Offsets/OffsetAbsent).
type MergeResult struct {
	Location string
	Offsets  []int64 // nil if not merged (still per-slice)
}

// Merge applies the §4.5.4 merge policy to dsDir (a dataset's `.d`
// directory) for the given columns, run once after every analysis slice
// has finished writing (§4.5.4 "Merge policy runs after all slices
// finish").
func Merge(dsDir string, columns []ColumnFileInfo) (map[string]MergeResult, error) {
	results := make(map[string]MergeResult, len(columns))

	var toFullyMerge []string

	totalSize := int64(0)
	sameCompression := true

	for _, c := range columns {
		if c.Compression != columns[0].Compression {
			sameCompression = false
		}

		size, mergedPath, offsets, err := mergeColumnIfSmall(dsDir, c)
		if err != nil {
			return nil, err
		}

		totalSize += size

		if offsets != nil {
			results[c.Name] = MergeResult{Location: mergedPath, Offsets: offsets}

			toFullyMerge = append(toFullyMerge, c.Name)
		} else {
			results[c.Name] = MergeResult{Location: ""}
		}
	}

	if totalSize > 0 && totalSize < mergeDatasetThreshold && len(toFullyMerge) == len(columns) && sameCompression {
		fullPath, offsetsByCol, err := fullyMerge(dsDir, results)
		if err != nil {
			return nil, err
		}

		for name, offsets := range offsetsByCol {
			results[name] = MergeResult{Location: fullPath, Offsets: offsets}
		}
	}

	return results, nil
}

func mergeColumnIfSmall(dsDir string, c ColumnFileInfo) (int64, string, []int64, error) {
	var (
		total    int64
		nPresent int
	)

	sizes := make([]int64, len(c.SlicePaths))

	for i, p := range c.SlicePaths {
		if p == "" {
			continue
		}

		info, err := os.Stat(p)
		if err != nil {
			return 0, "", nil, err
		}

		sizes[i] = info.Size()
		total += info.Size()
		nPresent++
	}

	if nPresent == 0 {
		return 0, "", nil, nil
	}

	mean := total / int64(nPresent)
	if mean >= mergeColumnThreshold {
		return total, "", nil, nil
	}

	mergedPath := filepath.Join(dsDir, c.Name+"m.gz")

	offsets, err := concatFiles(mergedPath, c.SlicePaths)
	if err != nil {
		return 0, "", nil, err
	}

	return total, mergedPath, offsets, nil
}

// concatFiles concatenates src (skipping empty entries, recording
// dataset.OffsetAbsent for them) into a single file at dest, returning the
// byte offset of the start of each slice's data.
func concatFiles(dest string, src []string) ([]int64, error) {
	out, err := os.Create(dest) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer out.Close()

	offsets := make([]int64, len(src))

	var pos int64

	for i, p := range src {
		if p == "" {
			offsets[i] = dataset.OffsetAbsent

			continue
		}

		offsets[i] = pos

		n, err := copyFileInto(out, p)
		if err != nil {
			return nil, err
		}

		pos += n
	}

	return offsets, nil
}

func copyFileInto(dst io.Writer, path string) (int64, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return io.Copy(dst, f)
}

// fullyMerge concatenates every already-merged column file in dsDir into
// one `dataset.m` file in dsDir, per §4.5.1 ("Fully-merged dataset file: when
// all columns in a dataset are small and share compression, they are
// concatenated into one file with per-column, per-slice offsets").
func fullyMerge(dsDir string, merged map[string]MergeResult) (string, map[string][]int64, error) {
	fullPath := filepath.Join(dsDir, "dataset.m")

	out, err := os.Create(fullPath) //nolint:gosec
	if err != nil {
		return "", nil, err
	}
	defer out.Close()

	offsetsByCol := make(map[string][]int64, len(merged))

	var pos int64

	for name, mr := range merged {
		src, err := os.Open(mr.Location) //nolint:gosec
		if err != nil {
			return "", nil, err
		}

		n, err := io.Copy(out, src)

		src.Close()

		if err != nil {
			return "", nil, err
		}

		rebased := make([]int64, len(mr.Offsets))

		for i, off := range mr.Offsets {
			if off == dataset.OffsetAbsent {
				rebased[i] = dataset.OffsetAbsent
			} else {
				rebased[i] = off + pos
			}
		}

		offsetsByCol[name] = rebased
		pos += n

		if err := os.Remove(mr.Location); err != nil {
			return "", nil, fmt.Errorf("removing intermediate merged file: %w", err)
		}
	}

	return fullPath, offsetsByCol, nil
}
