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
)

// Store resolves a dataset's Previous/Parent FSSafeName references to
// their on-disk metadata, given the job directory each dataset lives
// under. A production server backs this with the job database's job-id
// lookup and workdir paths; tests can supply an in-memory stub.
type Store interface {
	// Load returns the Metadata for the dataset named fsSafeName living
	// in the job directory jobPath, or an error if it can't be found.
	Load(jobPath, fsSafeName string) (Metadata, error)

	// JobPathOf resolves a dataset locator of the form "jobid/name" to
	// the job directory and FSSafeName to pass to Load.
	JobPathOf(locator string) (jobPath, fsSafeName string, err error)
}

// Handle identifies one dataset: which job directory it lives in, its
// FSSafeName, and its already-loaded Metadata.
type Handle struct {
	JobPath string
	Name    string
	Meta    Metadata
}

// Chain walks Previous pointers starting at h, at most length steps,
// stopping early if it reaches stopAt or a dataset with no Previous
// (§4.5.3 "chain(length, stopAt) walks previous pointers at most length
// steps, stopping when current == stopAt or previous is none").
//
// It returns at most length datasets (no limit when length is negative),
// oldest first and ending with h; stopAt itself is not included. Where a
// dataset carries a cached ancestor snapshot (see Metadata.Cache) that is
// still within length/stopAt's bounds, the walk jumps straight to it
// instead of walking one hop at a time.
func Chain(store Store, h Handle, length int, stopAt string) ([]Handle, error) {
	var out []Handle

	current := h

	for length < 0 || len(out) < length {
		if current.Name == stopAt || current.JobPath+"/"+current.Name == stopAt {
			break
		}

		out = append(out, current)

		if length >= 0 && len(out) >= length {
			break
		}

		next, ok, err := nextAncestor(store, current, length-len(out), stopAt)
		if err != nil {
			return nil, err
		}

		if !ok {
			break
		}

		current = next
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}

// nextAncestor returns current's immediate predecessor, preferring a
// cached snapshot (skipping CacheDistance hops at once) when one exists
// and doing so would not overshoot the remaining length budget or stopAt.
// A Previous with no '/' names a dataset in current's own job directory;
// otherwise it is a "jobid/name" locator resolved by store.JobPathOf.
func nextAncestor(store Store, current Handle, remaining int, stopAt string) (Handle, bool, error) {
	if current.Meta.Cache != nil && current.Meta.CacheDistance > 0 &&
		(remaining < 0 || current.Meta.CacheDistance <= remaining) &&
		current.Meta.Cache.Filename != stopAt {
		cached := *current.Meta.Cache

		return Handle{
			JobPath: filepath.Dir(current.JobPath),
			Name:    cached.Filename,
			Meta:    cached,
		}, true, nil
	}

	if current.Meta.Previous == "" {
		return Handle{}, false, nil
	}

	jobPath, name := current.JobPath, current.Meta.Previous
	if strings.Contains(name, "/") {
		var err error

		jobPath, name, err = store.JobPathOf(current.Meta.Previous)
		if err != nil {
			return Handle{}, false, err
		}
	}

	meta, err := store.Load(jobPath, name)
	if err != nil {
		return Handle{}, false, err
	}

	return Handle{JobPath: jobPath, Name: name, Meta: meta}, true, nil
}

// shouldCache reports whether the dataset at chain depth distance-from-tip
// `depth` should carry a cached snapshot of its ancestor `cacheEvery` steps
// back, per the "every 64 predecessors" cadence.
func shouldCache(depth int) bool {
	return depth > 0 && depth%cacheEvery == 0
}
