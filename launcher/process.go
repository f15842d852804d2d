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
	"bytes"
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	bs "github.com/wtsi-ssg/wr/backoff/time"
	"github.com/wtsi-ssg/wr/retry"
)

// waitForAllDone polls results (guarded by mu) until every slice is done
// or timeout elapses, using the same retry.Do/backoff pairing the teacher
// uses to poll filesystem state (wait/wait.go), here repurposed to poll
// in-memory slice completion instead.
func waitForAllDone(ctx context.Context, results []*sliceResult, mu *sync.Mutex, timeout time.Duration) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	op := func() error {
		mu.Lock()
		defer mu.Unlock()

		for _, r := range results {
			if !r.done {
				return errNotYetDone
			}
		}

		return nil
	}

	retry.Do(waitCtx, op, &retry.UntilNoError{}, bs.SecondsRangeBackoff(), "waiting for analysis slices to report")
}

// errNotYetDone is a sentinel for waitForAllDone's retry loop; it never
// escapes to a caller.
const errNotYetDone = Error("launcher: slice not yet done")

// killProcessGroup sends SIGKILL to every process in pid's process group
// (§4.4 "sends SIGKILL to the process group"). pid is a worker's own pid,
// and every worker starts its own process group (Setpgid, Pgid 0), so
// -pid addresses exactly that worker and any children it spawned.
func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// runWorker starts one worker process for req, captures its output to
// outPath, and waits for either a WorkerMessage on its result pipe or the
// process exiting without one (§4.4 "Aggregation channel", "Worker exit
// without a message -> fatal").
func (l *Launcher) runWorker(ctx context.Context, req WorkerRequest, status *Status, outPath string) (WorkerMessage, int, error) {
	cmd, err := l.spawn(req)
	if err != nil {
		return WorkerMessage{}, 0, err
	}

	var reqBuf bytes.Buffer
	if err := WriteRequest(&reqBuf, req); err != nil {
		return WorkerMessage{}, 0, err
	}

	cmd.Stdin = &reqBuf

	outR, outW, err := os.Pipe()
	if err != nil {
		return WorkerMessage{}, 0, err
	}

	cmd.Stdout = outW
	cmd.Stderr = outW

	msgR, msgW, err := os.Pipe()
	if err != nil {
		return WorkerMessage{}, 0, err
	}

	cmd.ExtraFiles = []*os.File{msgW}
	cmd.SysProcAttr = processGroupAttrs()

	if err := cmd.Start(); err != nil {
		outW.Close()
		outR.Close()
		msgW.Close()
		msgR.Close()

		return WorkerMessage{}, 0, err
	}

	pid := cmd.Process.Pid

	// The parent's copies of the write ends must be closed so that EOF
	// on the read ends is driven solely by the child's lifetime.
	outW.Close()
	msgW.Close()

	if req.SliceNo >= 0 {
		status.setPid(req.SliceNo, pid)
	}

	outDone := make(chan error, 1)

	go func() {
		_, oerr := captureOutput(outR, req.SliceNo, outPath, status)
		outDone <- oerr
	}()

	msgCh := make(chan WorkerMessage, 1)
	msgErrCh := make(chan error, 1)

	go func() {
		m, rerr := ReadMessage(msgR)
		if rerr != nil {
			msgErrCh <- rerr

			return
		}

		msgCh <- m
	}()

	waitCh := make(chan error, 1)

	go func() {
		waitCh <- cmd.Wait()
	}()

	select {
	case m := <-msgCh:
		<-waitCh
		<-outDone

		return m, pid, nil
	case <-msgErrCh:
		<-waitCh
		<-outDone

		return WorkerMessage{}, pid, ErrWorkerDied
	case <-waitCh:
		msgR.Close()
		<-outDone

		return WorkerMessage{}, pid, ErrWorkerDied
	case <-ctx.Done():
		killProcessGroup(pid)
		<-waitCh
		<-outDone

		return WorkerMessage{}, pid, ctx.Err()
	}
}

// processGroupAttrs gives a worker its own process group (pgid == its own
// pid), so a later SIGKILL to -pid reaches it and any children without
// touching the launcher or its siblings.
func processGroupAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
