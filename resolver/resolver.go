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

// package resolver implements the dependency resolver (§4.3): decide
// build-vs-reuse, type and default a submission's options against its
// method's schema, compute the canonical fingerprint, and either return an
// existing job or allocate and stage a new one.
package resolver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wtsi-ssg/batchjob/jobdb"
	"github.com/wtsi-ssg/batchjob/method"
	"github.com/wtsi-ssg/batchjob/workdir"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrWorkdirFull means no new id could be allocated in the target
	// workdir (§4.3 "WorkdirFull (allocation failure; fatal)").
	ErrWorkdirFull = Error("resolver: workdir full")

	setupVersion  = 4
	setupBasename = "setup.json"
)

// Submission is the caller-facing request to build or reuse a job (§4.3
// "Input"). Options/Datasets/Jobs are raw, pre-typed values as a client
// would supply them (e.g. decoded from the /submit JSON body).
type Submission struct {
	Method     string
	Options    map[string]interface{}
	Datasets   map[string]interface{} // name -> locator string, or []string for Multi inputs
	Jobs       map[string]interface{} // name -> job id, or []string for Multi inputs
	Caption    string
	ForceBuild bool
	Workdir    string
	Versions   map[string]string
}

// Result is what Submit returns: which job id answers the submission, and
// whether a new build was needed.
type Result struct {
	JobID     string
	Make      bool
	TotalTime time.Duration
}

// Resolver ties together the method registry, the job database, and the
// workdir store to implement §4.3's four-step decision process.
type Resolver struct {
	registry *method.Registry
	db       *jobdb.DB
	store    *workdir.Store
}

// New returns a Resolver.
func New(registry *method.Registry, db *jobdb.DB, store *workdir.Store) *Resolver {
	return &Resolver{registry: registry, db: db, store: store}
}

// Submit implements §4.3 steps 1-4.
func (r *Resolver) Submit(sub Submission) (*Result, error) {
	def, ok := r.registry.Lookup(sub.Method)
	if !ok {
		return nil, method.ErrUnknownMethod
	}

	typedOptions, _, err := method.Convert(def.Options, sub.Options)
	if err != nil {
		return nil, err
	}

	datasetLocators, err := validateInputs(def.DatasetInputs, sub.Datasets)
	if err != nil {
		return nil, err
	}

	jobLocators, err := validateInputs(def.JobInputs, sub.Jobs)
	if err != nil {
		return nil, err
	}

	sourceHash, err := method.Hash(def.SourcePath)
	if err != nil {
		return nil, err
	}

	fingerprint := method.Fingerprint(def.Options, method.Submission{
		Method:        sub.Method,
		Options:       typedOptions,
		DatasetInputs: joinMap(sub.Datasets),
		JobInputs:     joinMap(sub.Jobs),
	})

	if !sub.ForceBuild {
		if id, hit := r.db.MatchExact(sub.Method, fingerprint); hit {
			rec, err := r.db.Record(id)
			if err != nil {
				return nil, err
			}

			return &Result{JobID: id, Make: false, TotalTime: rec.TotalTime}, nil
		}
	}

	return r.build(sub, def, typedOptions, datasetLocators, jobLocators, sourceHash, fingerprint)
}

// build implements §4.3 step 4: allocate a new job id and write its
// setup.json. Per §4.3's failure semantics, an I/O error here leaves the
// allocated directory behind as a leaked id for a separate GC pass to
// reclaim - the workdir store never deletes directories itself (§4.1).
func (r *Resolver) build(sub Submission, def *method.Definition, typedOptions map[string]interface{},
	datasetLocators, jobLocators map[string]interface{}, sourceHash, fingerprint string,
) (*Result, error) {
	wd, err := r.store.Lookup(sub.Workdir)
	if err != nil {
		return nil, err
	}

	jobID, jobPath, err := r.store.Allocate(wd)
	if err != nil {
		return nil, ErrWorkdirFull
	}

	setup := jobdb.SetupFile{
		Version:     setupVersion,
		Method:      sub.Method,
		Options:     typedOptions,
		Datasets:    datasetLocators,
		Jobs:        jobLocators,
		StartTime:   float64(nowFunc().UnixNano()) / float64(time.Second),
		Slices:      wd.Slices,
		Hash:        sourceHash,
		JobID:       jobID,
		Versions:    sub.Versions,
		Caption:     sub.Caption,
		Fingerprint: fingerprint,
	}

	data, err := json.Marshal(setup)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(jobPath, setupBasename), data, 0o644); err != nil { //nolint:gosec
		return nil, err
	}

	return &Result{JobID: jobID, Make: true}, nil
}

// nowFunc exists so tests can pin submission time; production always uses
// time.Now.
var nowFunc = time.Now

// validateInputs checks a submission's dataset/job input map against a
// method's declared InputSpecs (§4.3 step 1 "reject unknown
// options/datasets/jobs... required... must be present").
func validateInputs(specs []method.InputSpec, given map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(given))

	bySpec := make(map[string]method.InputSpec, len(specs))
	for _, s := range specs {
		bySpec[s.Name] = s
	}

	for name, v := range given {
		spec, ok := bySpec[name]
		if !ok {
			return nil, &method.BadOptionError{Path: name, Err: method.ErrUnknownOption}
		}

		if _, isList := v.([]interface{}); isList && !spec.Multi {
			return nil, &method.BadOptionError{Path: name, Err: method.ErrBadType}
		}

		out[name] = v
	}

	for _, spec := range specs {
		if spec.Required {
			if _, ok := given[spec.Name]; !ok {
				return nil, &method.BadOptionError{Path: spec.Name, Err: method.ErrMissingRequired}
			}
		}
	}

	return out, nil
}

// joinMap flattens a dataset/job input map (string or []interface{} of
// strings per entry) into the map[string]string shape method.Fingerprint
// expects, joining multi-valued entries with a separator that can't appear
// in a job id or dataset name.
func joinMap(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))

	for k, v := range m {
		switch t := v.(type) {
		case string:
			out[k] = t
		case []interface{}:
			parts := make([]string, 0, len(t))

			for _, item := range t {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
				}
			}

			sort.Strings(parts)

			joined := ""
			for i, p := range parts {
				if i > 0 {
					joined += "\x1f"
				}

				joined += p
			}

			out[k] = joined
		}
	}

	return out
}
