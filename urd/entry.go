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

// package urd implements the append-only provenance log (§3 "Urd entry",
// §6.5 HTTP surface): a log mapping (user, list, timestamp) keys to
// joblist/dependency-snapshot/caption/build-job entries, with ghost
// semantics on update (§9 Open Question (b), resolved in SPEC_FULL.md
// SUPPLEMENTED FEATURES #4).
package urd

import "sort"

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrConflict is returned by Add when an entry already exists at the
	// given timestamp with different content and flags didn't include
	// "update" (§6.5 "conflicting content... returns 409").
	ErrConflict = Error("urd: conflicting entry, resubmit with update flag")

	// ErrPermission is returned by Add when the basic-auth user doesn't
	// match the key's user (§6.5 "mismatched user returns 401").
	ErrPermission = Error("urd: user does not match list owner")

	// ErrNoSuchList is returned when a (user, list) has no entries.
	ErrNoSuchList = Error("urd: no such user/list")

	// ErrNoSuchEntry is returned when a specific timestamp isn't found.
	ErrNoSuchEntry = Error("urd: no such timestamp")

	// ErrNotIncreasing is returned when an Add's timestamp isn't strictly
	// greater than the list's latest, and update wasn't requested (§3
	// "within one (user, list) timestamps are strictly increasing").
	ErrNotIncreasing = Error("urd: timestamp is not after the list's latest")
)

// JobRef is one (name, jobId) pair in a joblist (§3 "Urd entry").
type JobRef struct {
	Name  string `json:"name"`
	JobID string `json:"jobid"`
}

// DepSnapshot is what Deps records for one dependency list at the moment
// this entry was added: the dependency's timestamp, joblist and caption as
// they stood then (§3 "deps: {listKey: {timestamp, joblist, caption}}").
type DepSnapshot struct {
	Timestamp string   `json:"timestamp"`
	Joblist   []JobRef `json:"joblist"`
	Caption   string   `json:"caption"`
}

// Entry is one urd log record (§3 "Urd entry").
type Entry struct {
	User      string                 `json:"user"`
	List      string                 `json:"list"`
	Timestamp string                 `json:"timestamp"`
	Joblist   []JobRef               `json:"joblist"`
	Deps      map[string]DepSnapshot `json:"deps"`
	Caption   string                 `json:"caption"`
	BuildJob  string                 `json:"build_job"`

	// Ghost marks an entry whose Deps snapshot no longer matches the
	// current state of a dependency it referenced, after some earlier
	// timestamp in the same (user, list) was updated (§3 invariant
	// "ghosts all later entries that transitively depended on the old
	// value").
	Ghost bool `json:"is_ghost"`
}

// key identifies an urd list independent of its entries.
type key struct {
	User string
	List string
}

func listKeyString(user, list string) string {
	return user + "/" + list
}

// sortByTimestamp sorts entries in place, lexicographically increasing.
func sortByTimestamp(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
}

// equalSnapshot reports whether two DepSnapshots carry identical content,
// used by un-ghosting (SUPPLEMENTED FEATURES #4: "un-ghosted only when a
// later add reproduces byte-identical deps and joblist").
func equalSnapshot(a, b DepSnapshot) bool {
	if a.Timestamp != b.Timestamp || a.Caption != b.Caption {
		return false
	}

	if len(a.Joblist) != len(b.Joblist) {
		return false
	}

	for i := range a.Joblist {
		if a.Joblist[i] != b.Joblist[i] {
			return false
		}
	}

	return true
}
