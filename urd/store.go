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

package urd

import (
	"reflect"
	"sync"
)

// AddFlags are the optional behaviour flags a /add request may set (§6.5
// "flags:[\"update\"]").
type AddFlags struct {
	Update bool
}

// AddResult is what Add returns (§6.5 "{new, changed, is_ghost, deps?}").
type AddResult struct {
	New     bool
	Changed bool
	IsGhost bool
	Deps    int
}

// Store is the in-memory index of every (user, list)'s entries, backed by
// an append-only File for durability.
type Store struct {
	mu      sync.Mutex
	log     *File
	entries map[key][]*Entry
}

// NewStore returns a Store that appends to log (nil for an in-memory-only
// store, e.g. in tests).
func NewStore(log *File) *Store {
	return &Store{log: log, entries: make(map[key][]*Entry)}
}

// Load replays entries (as produced by ReadAll) into the Store's index,
// for populating a Store from an existing on-disk log at startup. A later
// line for an already-loaded (user, list, timestamp) replaces the earlier
// one, the way Add's update does.
func (s *Store) Load(entries []*Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		k := key{User: e.User, List: e.List}

		if _, existing := findByTimestamp(s.entries[k], e.Timestamp); existing != nil {
			*existing = *e

			continue
		}

		s.entries[k] = append(s.entries[k], e)
	}

	for k := range s.entries {
		sortByTimestamp(s.entries[k])
	}
}

// Add implements §6.5 POST /add and the ghost-semantics supplement
// (SPEC_FULL.md SUPPLEMENTED FEATURES #4): insert or update the
// (user,list,timestamp) entry, then re-validate every later entry in the
// same list against its recorded Deps snapshot, ghosting those that no
// longer match and un-ghosting those whose snapshot is reproduced
// byte-identical by this add.
func (s *Store) Add(authUser string, e *Entry, flags AddFlags) (*AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if authUser != e.User {
		return nil, ErrPermission
	}

	k := key{User: e.User, List: e.List}
	list := s.entries[k]

	_, existing := findByTimestamp(list, e.Timestamp)

	result := &AddResult{Deps: len(e.Deps)}

	switch {
	case existing == nil:
		if !flags.Update && len(list) > 0 && latestTimestamp(list) >= e.Timestamp {
			return nil, ErrNotIncreasing
		}

		result.New = true

		s.entries[k] = insertSorted(list, e)
	case sameContent(existing, e):
		// idempotent resubmission: nothing changes.
	case flags.Update:
		result.Changed = true
		*existing = *e
	default:
		return nil, ErrConflict
	}

	if err := s.persist(e); err != nil {
		return nil, err
	}

	s.revalidate(k)

	if _, stored := findByTimestamp(s.entries[k], e.Timestamp); stored != nil {
		result.IsGhost = stored.Ghost
	}

	return result, nil
}

func (s *Store) persist(e *Entry) error {
	if s.log == nil {
		return nil
	}

	return s.log.Append(e)
}

func findByTimestamp(list []*Entry, ts string) (int, *Entry) {
	for i, e := range list {
		if e.Timestamp == ts {
			return i, e
		}
	}

	return -1, nil
}

func latestTimestamp(list []*Entry) string {
	if len(list) == 0 {
		return ""
	}

	return list[len(list)-1].Timestamp
}

func insertSorted(list []*Entry, e *Entry) []*Entry {
	list = append(list, e)
	sortByTimestamp(list)

	return list
}

func sameContent(a, b *Entry) bool {
	return reflect.DeepEqual(a.Joblist, b.Joblist) &&
		reflect.DeepEqual(a.Deps, b.Deps) &&
		a.Caption == b.Caption &&
		a.BuildJob == b.BuildJob
}

// revalidate walks k's entries in timestamp order and applies the ghost /
// un-ghost fixed point described in SPEC_FULL.md SUPPLEMENTED FEATURES #4:
// an entry is ghosted once any dependency snapshot it recorded no longer
// matches the current entry at that dependency's (listKey, timestamp), and
// un-ghosted once every recorded snapshot matches again exactly.
func (s *Store) revalidate(k key) {
	for _, e := range s.entries[k] {
		e.Ghost = !s.depsStillValid(e)
	}
}

func (s *Store) depsStillValid(e *Entry) bool {
	for depKey, snap := range e.Deps {
		depUser, depList := splitListKey(depKey)
		depEntries := s.entries[key{User: depUser, List: depList}]

		_, current := findByTimestamp(depEntries, snap.Timestamp)
		if current == nil {
			return false
		}

		if current.Ghost {
			return false
		}

		if !equalSnapshot(snap, DepSnapshot{
			Timestamp: current.Timestamp,
			Joblist:   current.Joblist,
			Caption:   current.Caption,
		}) {
			return false
		}
	}

	return true
}

func splitListKey(k string) (user, list string) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			return k[:i], k[i+1:]
		}
	}

	return k, ""
}

// Since returns every non-ghost entry for (user, list) with timestamp
// strictly after ts (§6.5 "GET /<user>/<list>/since/<ts>"). A ghosted entry
// no longer reflects valid dependencies (SPEC_FULL.md SUPPLEMENTED FEATURES
// #4) and so is excluded, the same as it would be from a fresh listing.
func (s *Store) Since(user, list, ts string) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.entries[key{User: user, List: list}]
	if !ok {
		return nil, ErrNoSuchList
	}

	var out []*Entry

	for _, e := range entries {
		if e.Timestamp > ts && !e.Ghost {
			out = append(out, e)
		}
	}

	return out, nil
}

// Get returns one entry: ts may be a literal timestamp, "first" (earliest)
// or "latest" (most recent) (§6.5 "GET /<user>/<list>/<ts|first|latest>").
// "first"/"latest" skip ghosted entries, the same as Since does; a literal
// timestamp lookup returns the entry regardless of its ghost status, since
// the caller asked for that exact one.
func (s *Store) Get(user, list, ts string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.entries[key{User: user, List: list}]
	if !ok || len(entries) == 0 {
		return nil, ErrNoSuchList
	}

	switch ts {
	case "first":
		for _, e := range entries {
			if !e.Ghost {
				return e, nil
			}
		}

		return nil, ErrNoSuchEntry
	case "latest":
		for i := len(entries) - 1; i >= 0; i-- {
			if !entries[i].Ghost {
				return entries[i], nil
			}
		}

		return nil, ErrNoSuchEntry
	default:
		_, e := findByTimestamp(entries, ts)
		if e == nil {
			return nil, ErrNoSuchEntry
		}

		return e, nil
	}
}

// TruncateResult is what Truncate returns (§6.5 "{count, deps}").
type TruncateResult struct {
	Count int
	Deps  int
}

// Truncate implements §6.5 POST /truncate/<user>/<list>/<ts>: removes
// every entry with timestamp >= ts, leaving exactly the entries with
// timestamp < ts (§8 "Urd monotonicity").
func (s *Store) Truncate(user, list, ts string) (*TruncateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{User: user, List: list}

	entries, ok := s.entries[k]
	if !ok {
		return nil, ErrNoSuchList
	}

	var kept []*Entry

	result := &TruncateResult{}

	for _, e := range entries {
		if e.Timestamp < ts {
			kept = append(kept, e)

			continue
		}

		result.Count++
		result.Deps += len(e.Deps)
	}

	s.entries[k] = kept

	for otherKey := range s.entries {
		s.revalidate(otherKey)
	}

	return result, nil
}

// List returns every "user/listname" pair currently known (§6.5 "GET
// /list").
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.entries))

	for k, entries := range s.entries {
		if len(entries) > 0 {
			out = append(out, listKeyString(k.User, k.List))
		}
	}

	return out
}
