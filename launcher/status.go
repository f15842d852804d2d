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

import "sync"

// tailSize is how much of a slice's recent output the status registry
// keeps for a live-progress endpoint to show (§4.4 "publishes a sliding
// tail to a status registry").
const tailSize = 4096

// SliceState is where one analysis slice currently sits in its state
// machine (§4.4 "State machine per slice").
type SliceState int

const (
	StateWaiting SliceState = iota
	StateRunning
	StateReporting
	StateDone
	StateFailed
)

func (s SliceState) String() string {
	switch s {
	case StateWaiting:
		return "waiting-for-concurrency"
	case StateRunning:
		return "running"
	case StateReporting:
		return "reporting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SliceStatus is one slice's live status, as published to a job's Status
// registry.
type SliceStatus struct {
	State SliceState
	Pid   int
	Tail  string
}

// Status is a job's live progress registry: one entry per analysis slice,
// readable concurrently with the workers that update it (so an HTTP status
// handler can poll it without synchronising with the launcher directly).
type Status struct {
	mu     sync.RWMutex
	slices map[int]*sliceTail
}

type sliceTail struct {
	state SliceState
	pid   int
	buf   []byte
}

// NewStatus returns an empty Status registry.
func NewStatus() *Status {
	return &Status{slices: make(map[int]*sliceTail)}
}

func (s *Status) setState(sliceno int, state SliceState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.entry(sliceno)
	t.state = state
}

func (s *Status) setPid(sliceno, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry(sliceno).pid = pid
}

func (s *Status) appendOutput(sliceno int, p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.entry(sliceno)
	t.buf = append(t.buf, p...)

	if len(t.buf) > tailSize {
		t.buf = t.buf[len(t.buf)-tailSize:]
	}
}

// entry returns sliceno's tail, creating it if absent. Callers must hold s.mu.
func (s *Status) entry(sliceno int) *sliceTail {
	t, ok := s.slices[sliceno]
	if !ok {
		t = &sliceTail{}
		s.slices[sliceno] = t
	}

	return t
}

// Snapshot returns a copy of every slice's current status, safe to hold
// onto after the call (e.g. to serve a status HTTP request).
func (s *Status) Snapshot() map[int]SliceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]SliceStatus, len(s.slices))

	for n, t := range s.slices {
		out[n] = SliceStatus{State: t.state, Pid: t.pid, Tail: string(t.buf)}
	}

	return out
}
