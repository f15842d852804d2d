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

// package jobdb implements the indexed reuse-lookup job database (§4.2
// "Job database"): an in-memory index of every job on disk, rebuilt by a
// begin/refresh/finish scan protocol, queried by fingerprint match and
// method-relative lookup.
package jobdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrNoSuchJob means a job id isn't known to the database.
	ErrNoSuchJob = Error("jobdb: no such job")

	setupBasename = "setup.json"
	postBasename  = "post.json"
)

// SetupFile mirrors setup.json (§6.1), version 4.
type SetupFile struct {
	Version   int                    `json:"version"`
	Method    string                 `json:"method"`
	Options   map[string]interface{} `json:"options"`
	Datasets  map[string]interface{} `json:"datasets"`
	Jobs      map[string]interface{} `json:"jobs"`
	StartTime float64                `json:"starttime"`
	Slices    int                    `json:"slices"`
	Hash      string                 `json:"hash"`
	JobID     string                 `json:"jobid"`
	Versions  map[string]string      `json:"versions"`
	Caption   string                 `json:"caption"`
	Typing    [][2]string            `json:"_typing,omitempty"`

	// Fingerprint is not one of §6.1's required keys, but the resolver
	// writes it anyway (method.Fingerprint's schema-aware canonical
	// form, computed once at submission time) so the database never has
	// to reconstruct type-normalised canonicalisation rules from bare
	// JSON on load. When absent (e.g. a setup.json written by something
	// else) the database falls back to its own schema-agnostic
	// approximation - see fingerprintOf.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ExecTime mirrors post.json's "exectime" object.
type ExecTime struct {
	Total     float64   `json:"total"`
	Prepare   float64   `json:"prepare"`
	Analysis  float64   `json:"analysis"`
	Synthesis float64   `json:"synthesis"`
	PerSlice  []float64 `json:"per_slice"`
}

// PostFile mirrors post.json (§6.2), version 1.
type PostFile struct {
	Version   int             `json:"version"`
	StartTime float64         `json:"starttime"`
	EndTime   float64         `json:"endtime"`
	ExecTime  ExecTime        `json:"exectime"`
	Files     []string        `json:"files"`
	Subjobs   map[string]bool `json:"subjobs"`
}

// Record is the database's per-job cached summary (§4.2 "byId"): just
// enough of setup.json/post.json to drive reuse lookups and fixed-point
// validity pruning, without re-reading the full files on every query.
type Record struct {
	JobID       string
	Workdir     string
	Method      string
	Fingerprint string
	Options     map[string]string // per-option canonical value, for matchSubset
	SourceHash  string
	StartTime   time.Time
	TotalTime   time.Duration
	Subjobs     []string // job ids this job depends on (setup.json "jobs")
	HasPost     bool     // post.json existed: the job completed successfully
}

// loadRecord reads setup.json (and post.json if present) out of jobPath and
// builds the Record the database caches for jobID.
func loadRecord(workdirName, jobID, jobPath string) (*Record, error) {
	setup, err := loadSetup(filepath.Join(jobPath, setupBasename))
	if err != nil {
		return nil, err
	}

	rec := &Record{
		JobID:      jobID,
		Workdir:    workdirName,
		Method:     setup.Method,
		SourceHash: setup.Hash,
		StartTime:  time.Unix(0, int64(setup.StartTime*float64(time.Second))),
		Options:    canonicalizeOptions(setup.Options),
		Subjobs:    jobIDsOf(setup.Jobs),
	}

	if setup.Fingerprint != "" {
		rec.Fingerprint = setup.Fingerprint
	} else {
		rec.Fingerprint = fingerprintOf(setup.Method, rec.Options, setup.Datasets, setup.Jobs)
	}

	post, err := loadPost(filepath.Join(jobPath, postBasename))
	if err != nil {
		if os.IsNotExist(err) {
			return rec, nil
		}

		return nil, err
	}

	rec.HasPost = true
	rec.TotalTime = time.Duration(post.ExecTime.Total * float64(time.Second))

	return rec, nil
}

func loadSetup(path string) (*SetupFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, err
	}

	var s SetupFile

	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	return &s, nil
}

func loadPost(path string) (*PostFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, err
	}

	var p PostFile

	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

// jobIDsOf flattens setup.json's "jobs" object (name -> jobid, or name ->
// list of jobids) into the plain list of referenced job ids used for
// fixed-point subjob validity pruning (§4.2 step 3).
func jobIDsOf(jobs map[string]interface{}) []string {
	var ids []string

	for _, v := range jobs {
		switch val := v.(type) {
		case string:
			ids = append(ids, val)
		case []interface{}:
			for _, item := range val {
				if s, ok := item.(string); ok {
					ids = append(ids, s)
				}
			}
		}
	}

	sort.Strings(ids)

	return ids
}

// canonicalizeOptions produces a per-key canonical string form of a
// setup.json "options" object, used only for matchSubset's key-by-key
// comparison. Unlike method.Canonicalize (which needs a method's option
// Schema to apply type-normalisation rules) these values are already the
// fully-typed JSON the resolver wrote into setup.json, so a plain
// marshal suffices - encoding/json already emits map keys in sorted
// order, which is all the determinism matchSubset needs.
func canonicalizeOptions(options map[string]interface{}) map[string]string {
	out := make(map[string]string, len(options))

	for k, v := range options {
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}

		out[k] = string(b)
	}

	return out
}

func fingerprintOf(method string, options map[string]string, datasets, jobs map[string]interface{}) string {
	b, _ := json.Marshal(struct { //nolint:errchkjson
		Method   string            `json:"method"`
		Options  map[string]string `json:"options"`
		Datasets map[string]interface{} `json:"datasets"`
		Jobs     map[string]interface{} `json:"jobs"`
	}{method, options, datasets, jobs})

	return string(b)
}
