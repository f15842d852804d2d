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

// package methods registers the small set of built-in methods a freshly
// configured server can run without any external method package: the §8
// "Testable Properties" scenarios need concrete methods to exercise
// (test_build_kws for reuse, a sliceno-summing method for parallel
// analysis correctness, and a finish-early probe), and Go has no
// equivalent of the original system's "methods live in configured
// directories, discovered at server start" dynamic loading - a Go method
// is a compiled-in Definition, so "discovery" here means "imported and
// registered", the same way a caller of this package would register its
// own domain methods alongside these.
package methods

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wtsi-ssg/batchjob/method"
)

// sourcePath is recorded as every built-in method's SourcePath for
// hashing/packaging (§2 "Method... content hash of its source", §9
// "Method source packaging"). Built-ins ship inside this module, so their
// source lives at this package's own directory rather than a configured
// external method package directory.
const sourcePath = "methods"

// Register adds every built-in method to reg. A production server calls
// this once at startup alongside registration of its own configured
// method packages (§2 "Methods live in configured directories and are
// discovered at server start").
func Register(reg *method.Registry) {
	reg.Register(testBuildKws())
	reg.Register(slicenoSum())
	reg.Register(finishEarlyProbe())
}

// testBuildKws is the §8 scenario 1 "Reuse" method: build with
// {foo:"foo", a:"a"}, rebuild with identical options, expect make=false
// the second time. It does no real work - prepare alone is enough for the
// resolver's fingerprint-matching to be exercised.
func testBuildKws() *method.Definition {
	return &method.Definition{
		Name: "test_build_kws",
		Options: &method.Schema{Specs: []method.Spec{
			{Name: "foo", Kind: method.KindString, Default: ""},
			{Name: "a", Kind: method.KindString, Default: ""},
		}},
		SourcePath: sourcePath,
		Prepare: func(_ context.Context, p method.Params) (method.Result, error) {
			return method.Result{Value: fmt.Sprintf("%v/%v", p.Options["foo"], p.Options["a"])}, nil
		},
	}
}

// slicenoSum is the §8 scenario 4 "Parallel analysis correctness" method:
// analysis returns its own sliceno, and synthesis sums every slice's
// contribution and prints "Sum of all sliceno: S*(S-1)/2". Each analysis
// worker records its sliceno in a small per-slice file under the job
// directory (the worker's current directory, per the launcher's
// job-directory-as-cwd convention - see cmd's worker subcommand) since
// synthesis runs in a separate process with no shared memory (§4.4
// "within a single process all analysis workers share no mutable state;
// communication is solely via the aggregation channel... and the
// filesystem").
func slicenoSum() *method.Definition {
	return &method.Definition{
		Name:       "sliceno_sum",
		Options:    &method.Schema{},
		SourcePath: sourcePath,
		Analysis: func(_ context.Context, p method.Params) (method.Result, error) {
			if err := writeSliceFile(p.SliceNo); err != nil {
				return method.Result{}, err
			}

			return method.Result{Value: p.SliceNo}, nil
		},
		Synthesis: func(_ context.Context, p method.Params) (method.Result, error) {
			sum, err := sumSliceFiles(p.Slices)
			if err != nil {
				return method.Result{}, err
			}

			msg := fmt.Sprintf("Sum of all sliceno: %d", sum)
			fmt.Println(msg) //nolint:forbidigo

			return method.Result{Value: sum}, nil
		},
	}
}

func sliceFileName(sliceno int) string {
	return "slice-" + strconv.Itoa(sliceno)
}

func writeSliceFile(sliceno int) error {
	return os.WriteFile(sliceFileName(sliceno), []byte(strconv.Itoa(sliceno)), 0o644) //nolint:gosec
}

func sumSliceFiles(slices int) (int, error) {
	sum := 0

	for i := 0; i < slices; i++ {
		data, err := os.ReadFile(sliceFileName(i)) //nolint:gosec
		if err != nil {
			return 0, err
		}

		n, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return 0, err
		}

		sum += n
	}

	return sum, nil
}

// finishEarlyProbe is the §8 scenario 6 "Finish-early" method: prepare
// raises (returns) a finish-early result of 42 and neither analysis nor
// synthesis run.
func finishEarlyProbe() *method.Definition {
	return &method.Definition{
		Name:       "finish_early_probe",
		Options:    &method.Schema{},
		SourcePath: sourcePath,
		Prepare: func(_ context.Context, _ method.Params) (method.Result, error) {
			return method.Result{Value: 42, FinishEarly: true}, nil
		},
		Analysis: func(_ context.Context, _ method.Params) (method.Result, error) {
			return method.Result{}, fmt.Errorf("finish_early_probe: analysis must not run")
		},
	}
}
