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

package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/wtsi-ssg/batchjob/method"
)

// gracePeriod is how long surviving analysis slices are given to report
// after a sibling slice fails, before the whole process group is killed
// (§4.4 "giving surviving workers up to 5 seconds to report").
const gracePeriod = 5 * time.Second

// Job is everything the launcher needs to execute one already-resolved
// job (the resolver has already typed options and picked a job id/path;
// the launcher only runs phases and finalises output).
type Job struct {
	ID      string
	Path    string
	Method  string
	Slices  int
	Options map[string]interface{}

	// Datasets/Jobs are the locator maps from setup.json, carried through
	// to each worker unresolved: the worker process, not the launcher,
	// turns a locator into a live dataset/job handle (§4.4 "Parameter
	// injection").
	Datasets map[string]interface{}
	Jobs     map[string]interface{}
}

// Spawn constructs (but does not start) the *exec.Cmd that will run one
// worker process for req. It is the launcher's only dependency on how a
// binary re-invokes itself - supplied by the cmd package, which knows its
// own os.Args[0] and the hidden worker subcommand - keeping this package
// free of any import-cycle-inducing coupling to cmd.  Spawn must not set
// Stdin, Stdout, Stderr, ExtraFiles or SysProcAttr: Run owns those.
type Spawn func(req WorkerRequest) (*exec.Cmd, error)

// Launcher executes one job's phases (§4.4).
type Launcher struct {
	registry *method.Registry
	spawn    Spawn
}

// New returns a Launcher.
func New(registry *method.Registry, spawn Spawn) *Launcher {
	return &Launcher{registry: registry, spawn: spawn}
}

// Outcome is what Run returns: the job's overall timing, its produced
// files, and enough per-phase elapsed time to fill in post.json's exectime
// (§6.2).
type Outcome struct {
	Prepare   time.Duration
	Analysis  time.Duration
	Synthesis time.Duration
	PerSlice  []time.Duration

	ProducedFiles []string
	Subjobs       map[string]bool
	Datasets      map[string]DatasetReport

	// Result is synthesis's return value, or an earlier phase's if a
	// finish-early ended the job before synthesis ran.
	Result interface{}
}

// sliceResult is one analysis worker's terminal state, as tracked by
// runAnalysis.
type sliceResult struct {
	msg     WorkerMessage
	pid     int
	started bool
	done    bool
	err     error
}

// Run executes job's prepare, analysis and synthesis phases in order,
// skipping any phase the method doesn't declare, and returns once
// synthesis (or an earlier finish-early) completes. It does not write
// post.json; the caller finalises datasets and writes post.json from the
// returned Outcome (finalize.go).
func (l *Launcher) Run(ctx context.Context, job Job, concurrency int, status *Status) (*Outcome, error) {
	def, ok := l.registry.Lookup(job.Method)
	if !ok {
		return nil, method.ErrUnknownMethod
	}

	outcome := &Outcome{Subjobs: subjobSet(job.Jobs), Datasets: make(map[string]DatasetReport)}

	var prepareResult interface{}

	if def.HasPhase(method.PhasePrepare) {
		msg, err := l.runSingle(ctx, job, method.PhasePrepare, status)
		if err != nil {
			return nil, err
		}

		outcome.Prepare = msg.Elapsed
		outcome.ProducedFiles = append(outcome.ProducedFiles, msg.ProducedFiles...)

		if err := mergeDatasetReports(outcome, msg.Datasets); err != nil {
			return nil, err
		}

		prepareResult = msg.Result
		outcome.Result = msg.Result

		if msg.FinishEarly {
			return outcome, nil
		}
	}

	if def.HasPhase(method.PhaseAnalysis) {
		analysisStart := time.Now()

		result, finishedEarly, err := l.runAnalysis(ctx, job, concurrency, prepareResult, outcome, status)
		if err != nil {
			return nil, err
		}

		outcome.Analysis = time.Since(analysisStart)

		if finishedEarly {
			outcome.Result = result

			return outcome, nil
		}
	}

	if def.HasPhase(method.PhaseSynthesis) {
		msg, err := l.runSingle(ctx, job, method.PhaseSynthesis, status)
		if err != nil {
			return nil, err
		}

		outcome.Synthesis = msg.Elapsed
		outcome.ProducedFiles = append(outcome.ProducedFiles, msg.ProducedFiles...)

		if err := mergeDatasetReports(outcome, msg.Datasets); err != nil {
			return nil, err
		}

		outcome.Result = msg.Result
	}

	return outcome, nil
}

func subjobSet(jobs map[string]interface{}) map[string]bool {
	out := make(map[string]bool)

	for _, v := range jobs {
		switch t := v.(type) {
		case string:
			out[t] = true
		case []interface{}:
			for _, item := range t {
				if s, ok := item.(string); ok {
					out[s] = true
				}
			}
		}
	}

	return out
}

// runSingle runs one non-analysis phase (prepare or synthesis) as a
// single worker process with sliceno -1.
func (l *Launcher) runSingle(ctx context.Context, job Job, phase method.Phase, status *Status) (WorkerMessage, error) {
	req := WorkerRequest{
		JobID:   job.ID,
		JobPath: job.Path,
		Method:  job.Method,
		Phase:   phase,
		SliceNo: -1,
		Slices:  job.Slices,
		Options: job.Options,
		Datasets: job.Datasets,
		Jobs:     job.Jobs,
	}

	msg, _, err := l.runWorker(ctx, req, status, outputPath(job.Path, phase.String()))
	if err != nil {
		return WorkerMessage{}, err
	}

	if msg.Traceback != "" {
		return WorkerMessage{}, fmt.Errorf("launcher: %s: %s", phase, msg.Traceback)
	}

	return msg, nil
}

// runAnalysis runs job.Slices analysis workers, at most concurrency at a
// time, and aggregates their results (§4.4 "Slice scheduling",
// "Aggregation channel", "Failure model"). Each worker runs in its own
// process group; a failing or disappearing slice triggers a 5-second
// grace period for the rest to report, after which every still-running
// slice's process group is killed.
func (l *Launcher) runAnalysis(ctx context.Context, job Job, concurrency int,
	prepare interface{}, outcome *Outcome, status *Status,
) (interface{}, bool, error) {
	if concurrency <= 0 || concurrency > job.Slices {
		concurrency = job.Slices
	}

	outcome.PerSlice = make([]time.Duration, job.Slices)

	results := make([]*sliceResult, job.Slices)
	for i := range results {
		results[i] = &sliceResult{}
	}

	sem := make(chan struct{}, concurrency)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		failedOnce sync.Once
		stop       = make(chan struct{})
	)

	triggerFailure := func() {
		failedOnce.Do(func() {
			close(stop)

			mu.Lock()
			for _, r := range results {
				if !r.started && !r.done {
					r.done = true
					r.msg.Traceback = "slice never started after a sibling failure"
				}
			}
			mu.Unlock()

			go l.killSurvivors(runCtx, results, &mu, cancel)
		})
	}

launchLoop:
	for sliceno := 0; sliceno < job.Slices; sliceno++ {
		select {
		case <-stop:
			break launchLoop
		default:
		}

		sem <- struct{}{}

		wg.Add(1)

		go func(sliceno int) {
			defer wg.Done()
			defer func() { <-sem }()

			status.setState(sliceno, StateRunning)

			mu.Lock()
			results[sliceno].started = true
			mu.Unlock()

			req := WorkerRequest{
				JobID:   job.ID,
				JobPath: job.Path,
				Method:  job.Method,
				Phase:   method.PhaseAnalysis,
				SliceNo: sliceno,
				Slices:  job.Slices,
				Options: job.Options,
				Datasets: job.Datasets,
				Jobs:     job.Jobs,
				Prepare:  prepare,
			}

			msg, pid, err := l.runWorker(runCtx, req, status, outputPath(job.Path, strconv.Itoa(sliceno)))

			mu.Lock()
			results[sliceno].msg = msg
			results[sliceno].pid = pid
			results[sliceno].done = true
			results[sliceno].err = err
			mu.Unlock()

			if err != nil || msg.Traceback != "" {
				status.setState(sliceno, StateFailed)
				triggerFailure()
			} else {
				status.setState(sliceno, StateDone)
			}
		}(sliceno)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	for sliceno, r := range results {
		if r.err != nil {
			return nil, false, fmt.Errorf("launcher: slice %d: %w", sliceno, r.err)
		}

		if r.msg.Traceback != "" {
			return nil, false, fmt.Errorf("launcher: slice %d: %s", sliceno, r.msg.Traceback)
		}
	}

	var (
		finishEarlyCount int
		noFinishCount    int
		earlyResult      interface{}
	)

	for sliceno, r := range results {
		outcome.PerSlice[sliceno] = r.msg.Elapsed
		outcome.ProducedFiles = append(outcome.ProducedFiles, r.msg.ProducedFiles...)

		if err := mergeDatasetReports(outcome, r.msg.Datasets); err != nil {
			return nil, false, err
		}

		if r.msg.FinishEarly {
			finishEarlyCount++
			earlyResult = r.msg.Result
		} else {
			noFinishCount++
		}
	}

	if finishEarlyCount > 0 && noFinishCount > 0 {
		return nil, false, ErrDisagreement
	}

	return earlyResult, finishEarlyCount > 0, nil
}

// killSurvivors waits up to gracePeriod for every slice to have reported,
// then SIGKILLs the process group of any slice that started but hasn't
// (§4.4 "Failure model", "atexit... SIGKILLs the process group").
func (l *Launcher) killSurvivors(ctx context.Context, results []*sliceResult, mu *sync.Mutex, cancel context.CancelFunc) {
	waitForAllDone(ctx, results, mu, gracePeriod)

	mu.Lock()
	defer mu.Unlock()

	for _, r := range results {
		if !r.done && r.pid != 0 {
			killProcessGroup(r.pid)
		}
	}

	cancel()
}

func outputPath(jobPath, name string) string {
	return filepath.Join(jobPath, "OUTPUT", name)
}
