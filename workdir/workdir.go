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

// package workdir implements the filesystem-backed job directory store
// (spec.md §2 "Workdir store"): monotonically increasing job ids of the
// form `<workdirName>-<N>`, a `LATEST` symlink, and allocation that stays
// correct under concurrent, multi-process access via an flock-guarded
// lock file.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrUnknownWorkdir means a name wasn't found among the configured
	// workdirs.
	ErrUnknownWorkdir = Error("workdir: unknown workdir name")

	// ErrBadJobID means a job id doesn't belong to the workdir it was
	// looked up against.
	ErrBadJobID = Error("workdir: job id does not belong to this workdir")
)

const (
	latestSuffix = "LATEST"
	lockBasename = ".lock"
	lockMode     = 0o600
	dirMode      = 0o755
)

// Workdir is one named on-disk storage region with a fixed slice count
// (§2 "Workdir"). Jobs live directly under Path, named
// "<Name>-<N>".
type Workdir struct {
	Name   string
	Path   string
	Slices int
}

// Store owns a set of configured Workdirs (§6.6 "workdirs (list of name
// path)").
type Store struct {
	dirs map[string]*Workdir
}

// NewStore returns a Store over the given workdirs. Each workdir's Path is
// created if it doesn't already exist.
func NewStore(dirs []Workdir) (*Store, error) {
	s := &Store{dirs: make(map[string]*Workdir, len(dirs))}

	for i := range dirs {
		wd := dirs[i]

		if err := os.MkdirAll(wd.Path, dirMode); err != nil {
			return nil, err
		}

		s.dirs[wd.Name] = &wd
	}

	return s, nil
}

// Lookup returns the named workdir.
func (s *Store) Lookup(name string) (*Workdir, error) {
	wd, ok := s.dirs[name]
	if !ok {
		return nil, ErrUnknownWorkdir
	}

	return wd, nil
}

// Names returns every configured workdir name.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.dirs))
	for n := range s.dirs {
		names = append(names, n)
	}

	return names
}

// jobDirName formats a job id for workdir wd's N'th job (§2 "Job ... A
// directory identified by <workdirName>-<N>").
func jobDirName(workdirName string, n int) string {
	return fmt.Sprintf("%s-%d", workdirName, n)
}

// ParseJobID splits a job id into its workdir name and sequence number.
func ParseJobID(jobID string) (workdirName string, n int, err error) {
	idx := strings.LastIndex(jobID, "-")
	if idx < 0 {
		return "", 0, fmt.Errorf("workdir: malformed job id %q", jobID)
	}

	n, err = strconv.Atoi(jobID[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("workdir: malformed job id %q: %w", jobID, err)
	}

	return jobID[:idx], n, nil
}

// ListJobs returns every job id currently present in wd, in ascending
// numeric order, by scanning wd.Path for "<Name>-<N>" entries. Unlike
// Allocate this does no locking: it is a point-in-time listing for
// display and database refresh purposes.
func (s *Store) ListJobs(wd *Workdir) ([]string, error) {
	entries, err := os.ReadDir(wd.Path)
	if err != nil {
		return nil, err
	}

	prefix := wd.Name + "-"

	var ids []int

	for _, e := range entries {
		if !e.IsDir() && e.Type()&os.ModeSymlink == 0 {
			continue
		}

		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		n, err := strconv.Atoi(name[len(prefix):])
		if err != nil {
			continue
		}

		ids = append(ids, n)
	}

	sortInts(ids)

	jobs := make([]string, len(ids))
	for i, n := range ids {
		jobs[i] = jobDirName(wd.Name, n)
	}

	return jobs, nil
}

func sortInts(ids []int) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// Tip returns the job id the workdir's LATEST symlink currently points at,
// or "", false if there isn't one yet.
func (s *Store) Tip(wd *Workdir) (string, bool, error) {
	link := filepath.Join(wd.Path, wd.Name+"-"+latestSuffix)

	target, err := os.Readlink(link)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}

		return "", false, err
	}

	return filepath.Base(target), true, nil
}

// Allocate reserves the next job id in wd and creates its directory,
// returning the new job's path. It is safe for concurrent use, including
// from multiple processes, because the next id (one past the highest
// existing job directory) is chosen and its directory created while
// holding an flock on a lock file inside wd.Path (the
// same style the teacher uses for cross-process coordination in
// wait/wait.go, applied here to directory-counter allocation instead of
// job-queue waiting).
func (s *Store) Allocate(wd *Workdir) (jobID string, jobPath string, err error) {
	lockPath := filepath.Join(wd.Path, lockBasename)

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, lockMode) //nolint:gosec
	if err != nil {
		return "", "", err
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return "", "", err
	}
	defer syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) //nolint:errcheck

	existing, err := s.ListJobs(wd)
	if err != nil {
		return "", "", err
	}

	next := 1

	if len(existing) > 0 {
		_, n, err := ParseJobID(existing[len(existing)-1])
		if err != nil {
			return "", "", err
		}

		next = n + 1
	}

	id := jobDirName(wd.Name, next)
	path := filepath.Join(wd.Path, id)

	if err := os.Mkdir(path, dirMode); err != nil {
		return "", "", err
	}

	if err := s.updateLatest(wd, id); err != nil {
		return "", "", err
	}

	return id, path, nil
}

// updateLatest repoints wd's "<Name>-LATEST" symlink at id, replacing any
// existing symlink atomically via rename (create-new-then-rename, so a
// concurrent reader never observes a missing or half-written symlink).
func (s *Store) updateLatest(wd *Workdir, id string) error {
	link := filepath.Join(wd.Path, wd.Name+"-"+latestSuffix)
	tmp := link + ".tmp"

	os.Remove(tmp) //nolint:errcheck

	if err := os.Symlink(id, tmp); err != nil {
		return err
	}

	return os.Rename(tmp, link)
}

// JobPath returns the absolute directory for jobID within wd.
func JobPath(wd *Workdir, jobID string) (string, error) {
	name, _, err := ParseJobID(jobID)
	if err != nil {
		return "", err
	}

	if name != wd.Name {
		return "", ErrBadJobID
	}

	return filepath.Join(wd.Path, jobID), nil
}
