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

// package server provides the §6.4 job server HTTP surface: a REST API in
// front of the resolver, job database, launcher and workdir store, serving
// one configured set of workdirs and method packages per process (§1
// Non-goals: "the core assumes one server process controls one filesystem
// tree").
package server

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/wtsi-ssg/batchjob/jobdb"
	"github.com/wtsi-ssg/batchjob/launcher"
	"github.com/wtsi-ssg/batchjob/method"
	"github.com/wtsi-ssg/batchjob/resolver"
	"github.com/wtsi-ssg/batchjob/workdir"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrUnknownWorkdir = Error("server: unknown workdir")
	ErrAborted        = Error("server: job was aborted")

	refreshConcurrency = 8
	statusTimeout      = 5 * time.Second
)

// Engine ties the resolver, job database, launcher and workdir store
// together behind the HTTP handlers in handlers.go (§2 "Control flow for a
// single build").
type Engine struct {
	mu sync.Mutex

	registry *method.Registry
	db       *jobdb.DB
	store    *workdir.Store
	resolver *resolver.Resolver
	launcher *launcher.Launcher
	log      log15.Logger

	defaultWorkdir string
	concurrency    int

	running   map[string]*runningJob
	lastErr   string
	idleSince time.Time
}

// runningJob is one job currently executing, tracked so /status and
// /abort can observe and interrupt it (§6.4 "GET /status", "POST /abort").
type runningJob struct {
	cancel context.CancelFunc
	status *launcher.Status
	method string
}

// NewEngine returns an Engine. spawn constructs the *exec.Cmd the launcher
// uses to re-invoke this same binary as a worker process (supplied by
// cmd, which knows os.Args[0] and the hidden worker subcommand).
func NewEngine(registry *method.Registry, db *jobdb.DB, store *workdir.Store,
	defaultWorkdir string, concurrency int, spawn launcher.Spawn, logger log15.Logger,
) *Engine {
	return &Engine{
		registry:       registry,
		db:             db,
		store:          store,
		resolver:       resolver.New(registry, db, store),
		launcher:       launcher.New(registry, spawn),
		log:            logger,
		defaultWorkdir: defaultWorkdir,
		concurrency:    concurrency,
		running:        make(map[string]*runningJob),
		idleSince:      nowFunc(),
	}
}

var nowFunc = time.Now

// RefreshMethods rescans every configured workdir's jobs against the
// currently loaded method registry (§4.2 update protocol).
func (e *Engine) RefreshMethods() error {
	currentHashes := make(map[string]string)

	for _, name := range e.registry.Names() {
		def, _ := e.registry.Lookup(name)

		hash, err := method.Hash(def.SourcePath)
		if err != nil {
			return err
		}

		currentHashes[name] = hash
	}

	e.db.Begin()

	for _, name := range e.store.Names() {
		wd, err := e.store.Lookup(name)
		if err != nil {
			return err
		}

		if err := e.db.Refresh(wd, refreshConcurrency); err != nil {
			return err
		}
	}

	e.db.Finish(currentHashes)

	return nil
}

// Submit implements §4.3's build-vs-reuse decision and, on a miss, runs
// the job to completion via the launcher before returning (§2 "Control
// flow for a single build": resolver -> launcher -> database absorbs the
// new job on next refresh).
func (e *Engine) Submit(sub resolver.Submission) (*resolver.Result, error) {
	if sub.Workdir == "" {
		sub.Workdir = e.defaultWorkdir
	}

	result, err := e.resolver.Submit(sub)
	if err != nil {
		e.recordError(err)

		return nil, err
	}

	if !result.Make {
		return result, nil
	}

	if err := e.run(sub, result.JobID); err != nil {
		e.recordError(err)

		return nil, err
	}

	if err := e.RefreshMethods(); err != nil {
		return nil, err
	}

	rec, err := e.db.Record(result.JobID)
	if err == nil {
		result.TotalTime = rec.TotalTime
	}

	return result, nil
}

func (e *Engine) run(sub resolver.Submission, jobID string) error {
	wd, err := e.store.Lookup(sub.Workdir)
	if err != nil {
		return err
	}

	jobPath, err := workdir.JobPath(wd, jobID)
	if err != nil {
		return err
	}

	def, _ := e.registry.Lookup(sub.Method)

	if err := method.Package(def.SourcePath, filepath.Join(jobPath, "method.tar.gz")); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	status := launcher.NewStatus()

	e.mu.Lock()
	e.running[jobID] = &runningJob{cancel: cancel, status: status, method: sub.Method}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.running, jobID)
		e.mu.Unlock()
	}()

	startTime := nowFunc()

	job := launcher.Job{
		ID: jobID, Path: jobPath, Method: sub.Method, Slices: wd.Slices,
		Options: sub.Options, Datasets: sub.Datasets, Jobs: sub.Jobs,
	}

	outcome, err := e.launcher.Run(ctx, job, e.concurrency, status)
	if err != nil {
		return err
	}

	if err := launcher.FinalizeDatasets(jobPath, wd.Slices, outcome.Datasets); err != nil {
		return err
	}

	return launcher.WritePost(jobPath, startTime, nowFunc(), outcome)
}

func (e *Engine) recordError(err error) {
	e.mu.Lock()
	e.lastErr = err.Error()
	e.mu.Unlock()

	e.log.Error("job failed", "err", err)
}

// LastError returns the most recently recorded build failure (§6.4 "GET
// /last_error").
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastErr
}

// Abort implements §6.4 "POST /abort" / §5 "Cancellation": SIGKILLs the
// process group of every currently running job by cancelling its context,
// which the launcher's worker management observes and kills on.
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rj := range e.running {
		rj.cancel()
	}
}

// StatusSnapshot is what GET /status reports (§6.4).
type StatusSnapshot struct {
	Idle    bool                         `json:"idle"`
	Jobs    map[string]JobStatusSnapshot `json:"jobs"`
	LastErr string                       `json:"last_error,omitempty"`
}

// JobStatusSnapshot is one running job's current phase/slice description.
type JobStatusSnapshot struct {
	Method string                       `json:"method"`
	Slices map[int]launcher.SliceStatus `json:"slices"`
}

// Status implements §6.4 "GET /status[/full]": idle flag plus a snapshot
// of every currently running job's slice states.
func (e *Engine) Status() StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := StatusSnapshot{Idle: len(e.running) == 0, Jobs: make(map[string]JobStatusSnapshot), LastErr: e.lastErr}

	for id, rj := range e.running {
		snap.Jobs[id] = JobStatusSnapshot{Method: rj.method, Slices: rj.status.Snapshot()}
	}

	return snap
}

// Explain answers §6.4's "why_build" query via resolver.Explain.
func (e *Engine) Explain(methodName string, partialOptions map[string]interface{}) (*jobdb.Record, bool, error) {
	return resolver.Explain(e.registry, e.db, methodName, partialOptions)
}

// Method2Job implements §6.4 "GET /method2job/<method>": the relative
// job-specifier lookup (SPEC_FULL.md SUPPLEMENTED FEATURES #3).
func (e *Engine) Method2Job(methodName string, offset int, current bool) (string, bool) {
	return e.db.LatestByMethod(methodName, offset, current)
}

// JobsAreCurrent implements §6.4 "GET /jobs_are_current": for each id,
// whether it is present and valid (survived the §4.2 step-3 fixed point)
// in at least one configured workdir.
func (e *Engine) JobsAreCurrent(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))

	for _, id := range ids {
		wdName, _, err := workdir.ParseJobID(id)
		if err != nil {
			out[id] = false

			continue
		}

		entries := e.db.WorkdirEntries(wdName)
		entry, ok := entries[id]
		out[id] = ok && entry.Current
	}

	return out
}

// WorkdirStore exposes the underlying store for handlers that list
// workdirs/jobs directly (§6.4 "GET /list_workdirs", "GET
// /workdir/<name>").
func (e *Engine) WorkdirStore() *workdir.Store { return e.store }

// Registry exposes the method registry for §6.4's "GET /methods", "GET
// /method_info/<name>".
func (e *Engine) Registry() *method.Registry { return e.registry }

// DB exposes the job database for handlers needing direct record access.
func (e *Engine) DB() *jobdb.DB { return e.db }

// spawnSelf is the default launcher.Spawn a production server uses: it
// re-execs the running binary with a hidden worker subcommand, the way the
// resolver's companion cmd package wires it (kept here only as the
// documented shape; cmd provides the concrete os.Args[0]-aware
// implementation it passes to NewEngine).
func spawnSelf(binary string) launcher.Spawn {
	return func(req launcher.WorkerRequest) (*exec.Cmd, error) {
		return exec.Command(binary, "__worker", fmt.Sprintf("%d", req.Phase)), nil //nolint:gosec
	}
}
