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

package dataset

import (
	"path/filepath"
	"strings"

	"github.com/wtsi-ssg/batchjob/workdir"
)

// ErrBadLocator means a dataset locator wasn't of the expected
// "jobid/name" form (§4.2's "datasets" map values, §4.4 "Parameter
// injection").
const ErrBadLocator = Error("dataset: locator is not of the form jobid/name")

// FSStore is the production Store (chain.go): it resolves a "jobid/name"
// locator to an on-disk job directory via a workdir.Store, and loads
// metadata straight off disk. This is what the worker subcommand hands
// Chain/Iterate when a method asks for a dataset input or a Previous/
// Parent chain link (§4.4 "resolved dataset handles").
type FSStore struct {
	store *workdir.Store
}

// NewFSStore returns an FSStore backed by store.
func NewFSStore(store *workdir.Store) *FSStore {
	return &FSStore{store: store}
}

// JobPathOf implements Store.
func (f *FSStore) JobPathOf(locator string) (jobPath, fsSafeName string, err error) {
	idx := strings.LastIndex(locator, "/")
	if idx < 0 {
		return "", "", ErrBadLocator
	}

	jobID, name := locator[:idx], locator[idx+1:]

	wdName, _, err := workdir.ParseJobID(jobID)
	if err != nil {
		return "", "", err
	}

	wd, err := f.store.Lookup(wdName)
	if err != nil {
		return "", "", err
	}

	jp, err := workdir.JobPath(wd, jobID)
	if err != nil {
		return "", "", err
	}

	return jp, FSSafeName(name), nil
}

// Load implements Store.
func (f *FSStore) Load(jobPath, fsSafeName string) (Metadata, error) {
	return LoadMetadata(filepath.Join(jobPath, "DS", fsSafeName+".p"))
}

// OpenHandle resolves locator all the way to a loaded Handle, the
// combination JobPathOf+Load callers usually want in one step.
func (f *FSStore) OpenHandle(locator string) (Handle, error) {
	jobPath, name, err := f.JobPathOf(locator)
	if err != nil {
		return Handle{}, err
	}

	meta, err := f.Load(jobPath, name)
	if err != nil {
		return Handle{}, err
	}

	return Handle{JobPath: jobPath, Name: name, Meta: meta}, nil
}
