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

package jobdb

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/wtsi-ssg/batchjob/workdir"
)

// WorkdirEntry is one line of the §4.2 "byWorkdir" index: a job's method,
// total time and whether it's still a valid (current source, fixed-point
// surviving) job.
type WorkdirEntry struct {
	Method    string
	TotalTime int64 // nanoseconds, avoids importing time into the bolt-cached value
	Current   bool
}

// DB is the process-wide job database (§4.2). It holds an in-memory index
// rebuilt by the Begin/Refresh/Finish scan protocol, optionally backed by
// a persisted Cache so a restart doesn't require re-parsing every job's
// setup.json and post.json.
type DB struct {
	mu sync.RWMutex

	store *workdir.Store
	cache *Cache

	byID            map[string]*Record
	byMethodAll     map[string][]string // newest-first
	byMethodCurrent map[string][]string // newest-first, current-source survivors only
	byWorkdir       map[string]map[string]*WorkdirEntry

	knownIDs map[string]bool
}

// New returns a DB that resolves job directories via store, optionally
// persisting its index to cache (pass nil to run purely in-memory).
func New(store *workdir.Store, cache *Cache) *DB {
	return &DB{
		store:           store,
		cache:           cache,
		byID:            make(map[string]*Record),
		byMethodAll:     make(map[string][]string),
		byMethodCurrent: make(map[string][]string),
		byWorkdir:       make(map[string]map[string]*WorkdirEntry),
	}
}

// Begin starts an update cycle by clearing the known-filesystem-ids set
// (§4.2 step 1). Call Refresh once per workdir that should be rescanned,
// then Finish to commit the result.
func (d *DB) Begin() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.knownIDs = make(map[string]bool)
}

// Refresh scans wd's filesystem for candidate job ids (§4.2 step 2); any
// id not already cached has its setup.json/post.json loaded, concurrently,
// via a worker pool bounded by concurrency. Every id found, new or
// previously cached, is added to the known-ids set that Finish will use to
// evict stale entries.
func (d *DB) Refresh(wd *workdir.Workdir, concurrency int) error {
	ids, err := d.store.ListJobs(wd)
	if err != nil {
		return err
	}

	if concurrency < 1 {
		concurrency = 1
	}

	d.mu.Lock()
	var toLoad []string

	for _, id := range ids {
		d.knownIDs[id] = true

		if _, ok := d.byID[id]; !ok {
			toLoad = append(toLoad, id)
		}
	}
	d.mu.Unlock()

	if len(toLoad) == 0 {
		return nil
	}

	return d.loadAll(wd, toLoad, concurrency)
}

func (d *DB) loadAll(wd *workdir.Workdir, ids []string, concurrency int) error {
	sem := make(chan struct{}, concurrency)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errm    *multierror.Error
		records []*Record
	)

	for _, id := range ids {
		wg.Add(1)

		sem <- struct{}{}

		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			rec, err := d.loadOne(wd, id)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errm = multierror.Append(errm, err)

				return
			}

			if rec != nil {
				records = append(records, rec)
			}
		}(id)
	}

	wg.Wait()

	d.mu.Lock()
	for _, rec := range records {
		d.byID[rec.JobID] = rec
	}
	d.mu.Unlock()

	return errm.ErrorOrNil()
}

// loadOne loads a single job, preferring the persisted cache over
// re-parsing setup.json/post.json when present.
func (d *DB) loadOne(wd *workdir.Workdir, id string) (*Record, error) {
	if d.cache != nil {
		if rec, ok, err := d.cache.Get(id); err == nil && ok {
			return rec, nil
		}
	}

	jobPath, err := workdir.JobPath(wd, id)
	if err != nil {
		return nil, err
	}

	rec, err := loadRecord(wd.Name, id, jobPath)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if err := d.cache.Put(rec); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

// Finish commits an update cycle (§4.2 step 3): cached entries for ids no
// longer found on disk are dropped, survivors are partitioned by whether
// their sourceHash matches currentHashes[method], the fixed point over
// subjob validity is taken, and byMethodCurrent/byMethodAll/byWorkdir are
// rebuilt.
func (d *DB) Finish(currentHashes map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id := range d.byID {
		if !d.knownIDs[id] {
			delete(d.byID, id)

			if d.cache != nil {
				d.cache.Delete(id) //nolint:errcheck
			}
		}
	}

	survivors := d.fixedPointSurvivors(currentHashes)

	d.rebuildIndexes(survivors)
}

// fixedPointSurvivors implements the §4.2 step 3 iteration: start from
// jobs whose sourceHash matches the currently loaded method, then
// repeatedly drop any job whose recorded subjobs are not all still
// surviving, until nothing more is dropped. This mirrors the original's
// database update loop of pruning jobs transitively invalidated by a
// changed dependency.
func (d *DB) fixedPointSurvivors(currentHashes map[string]string) map[string]bool {
	survivors := make(map[string]bool, len(d.byID))

	for id, rec := range d.byID {
		if currentHashes[rec.Method] == rec.SourceHash {
			survivors[id] = true
		}
	}

	for {
		changed := false

		for id := range survivors {
			rec := d.byID[id]

			for _, sub := range rec.Subjobs {
				if !survivors[sub] {
					delete(survivors, id)
					changed = true

					break
				}
			}
		}

		if !changed {
			break
		}
	}

	return survivors
}

func (d *DB) rebuildIndexes(survivors map[string]bool) {
	d.byMethodAll = make(map[string][]string)
	d.byMethodCurrent = make(map[string][]string)
	d.byWorkdir = make(map[string]map[string]*WorkdirEntry)

	for id, rec := range d.byID {
		d.byMethodAll[rec.Method] = append(d.byMethodAll[rec.Method], id)

		if survivors[id] {
			d.byMethodCurrent[rec.Method] = append(d.byMethodCurrent[rec.Method], id)
		}

		if d.byWorkdir[rec.Workdir] == nil {
			d.byWorkdir[rec.Workdir] = make(map[string]*WorkdirEntry)
		}

		d.byWorkdir[rec.Workdir][id] = &WorkdirEntry{
			Method:    rec.Method,
			TotalTime: int64(rec.TotalTime),
			Current:   survivors[id],
		}
	}

	for method := range d.byMethodAll {
		d.sortNewestFirst(d.byMethodAll[method])
	}

	for method := range d.byMethodCurrent {
		d.sortNewestFirst(d.byMethodCurrent[method])
	}
}

func (d *DB) sortNewestFirst(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return d.byID[ids[i]].StartTime.After(d.byID[ids[j]].StartTime)
	})
}

// MatchExact implements §4.2 matchExact: the newest current-source job
// whose fingerprint equals fingerprint, or "", false.
func (d *DB) MatchExact(method, fingerprint string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.byMethodCurrent[method] {
		if d.byID[id].Fingerprint == fingerprint {
			return id, true
		}
	}

	return "", false
}

// MatchSubset implements §4.2 matchSubset: the newest current-source job
// whose option-set is a superset of subset (every key in subset present
// with an identical canonical value). Used by the resolver's why_build
// explanation.
func (d *DB) MatchSubset(method string, subset map[string]string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.byMethodCurrent[method] {
		rec := d.byID[id]

		if isSuperset(rec.Options, subset) {
			return id, true
		}
	}

	return "", false
}

func isSuperset(options, subset map[string]string) bool {
	for k, v := range subset {
		if options[k] != v {
			return false
		}
	}

	return true
}

// LatestByMethod implements the §9/SUPPLEMENTED-FEATURES relative
// job-specifier lookup ("method~N"): the job `offset` steps back from the
// newest (offset 0 = newest), drawn from byMethodCurrent when current is
// true, byMethodAll otherwise.
func (d *DB) LatestByMethod(method string, offset int, current bool) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := d.byMethodAll[method]
	if current {
		ids = d.byMethodCurrent[method]
	}

	if offset < 0 || offset >= len(ids) {
		return "", false
	}

	return ids[offset], true
}

// Record returns the cached record for jobID.
func (d *DB) Record(jobID string) (*Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.byID[jobID]
	if !ok {
		return nil, ErrNoSuchJob
	}

	return rec, nil
}

// WorkdirEntries returns the §4.2 byWorkdir listing for wd.
func (d *DB) WorkdirEntries(workdirName string) map[string]*WorkdirEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.byWorkdir[workdirName]
}
