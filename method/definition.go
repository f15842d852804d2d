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

package method

import (
	"context"

	"github.com/wtsi-ssg/batchjob/dataset/column"
	"github.com/wtsi-ssg/batchjob/dataset/writer"
)

// Phase identifies one of a method's three possible entry points.
type Phase int

const (
	PhasePrepare Phase = iota
	PhaseAnalysis
	PhaseSynthesis
)

func (p Phase) String() string {
	switch p {
	case PhasePrepare:
		return "prepare"
	case PhaseAnalysis:
		return "analysis"
	case PhaseSynthesis:
		return "synthesis"
	default:
		return "unknown"
	}
}

// Params is the bound namespace the launcher exposes to a phase function
// (§4.4 "Parameter injection"). A method consumes only the fields it
// declares use of; the launcher supplies the rest as zero values.
type Params struct {
	Slices  int
	SliceNo int // analysis only; -1 for prepare/synthesis

	Options map[string]interface{}

	// Datasets maps a declared dataset-input name to the already-resolved
	// dataset, typed as interface{} here to avoid an import cycle with
	// package dataset; the launcher performs the concrete type assertion.
	Datasets map[string]interface{}

	// Jobs maps a declared job-input name to its job id.
	Jobs map[string]string

	// Job is this job's own id, for self-referencing output paths.
	Job string

	// Prepare is the prepare phase's return value, available to analysis
	// and synthesis.
	Prepare interface{}
}

// ColumnOutput describes one column a phase function wrote via a
// dataset/writer.Writer, packaged for the launcher to fold into that
// dataset's finished metadata (§4.4 "Dataset writers").
type ColumnOutput struct {
	Name        string
	Type        column.Type
	Compression int
	Result      writer.ColumnSliceInfo
}

// DatasetOutput describes one dataset a phase function finished writing
// this invocation, carrying both the dataset-level metadata (hashlabel,
// chain links) and every column's per-slice writer result.
type DatasetOutput struct {
	Name      string
	Hashlabel string
	Caption   string
	Previous  string
	Parent    string
	Columns   []ColumnOutput
}

// Result is what a phase function hands back to the launcher: a return
// value (passed to later phases via Params.Prepare, or recorded as the
// job's final result if returned from synthesis), any datasets it
// finished writing this invocation, and an optional early-termination
// signal.
type Result struct {
	Value    interface{}
	Datasets []DatasetOutput

	// FinishEarly, when true, asks the launcher to skip every phase after
	// the current one (§4.4 "Early termination"). All slices of an
	// analysis phase must agree on this; disagreement is a fatal error.
	FinishEarly bool
}

// PhaseFunc is a method entry point. ctx carries the clog log handler and
// is cancelled on job abort.
type PhaseFunc func(ctx context.Context, p Params) (Result, error)

// InputSpec declares one named dataset or job input a method accepts.
// Multi allows the caller to supply a list of locators for the name
// instead of exactly one (§4.2 step 1, "datasets"/"jobs" as object mapping
// name to jobid/name or list thereof).
type InputSpec struct {
	Name     string
	Required bool
	Multi    bool
}

// Definition is a fully registered method: its option/dataset/job schemas
// and up to three phase functions. Methods with a nil phase contribute
// nothing to that phase and zero time to it (§4.4).
type Definition struct {
	Name    string
	Options *Schema

	DatasetInputs []InputSpec
	JobInputs     []InputSpec

	Prepare   PhaseFunc
	Analysis  PhaseFunc
	Synthesis PhaseFunc

	// SourcePath is the directory this method was loaded from, used by
	// Hash and Package (source.go) and recorded for diagnostics.
	SourcePath string
}

// HasPhase reports whether the method declares an entry point for phase.
func (d *Definition) HasPhase(phase Phase) bool {
	switch phase {
	case PhasePrepare:
		return d.Prepare != nil
	case PhaseAnalysis:
		return d.Analysis != nil
	case PhaseSynthesis:
		return d.Synthesis != nil
	default:
		return false
	}
}

// Registry is the set of methods discovered from configured method
// packages (§2 "Method", "discovered at server start and on explicit
// refresh").
type Registry struct {
	methods map[string]*Definition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]*Definition)}
}

// Register adds or replaces a method definition.
func (r *Registry) Register(d *Definition) {
	r.methods[d.Name] = d
}

// Lookup returns the named method, or ok=false if no such method is
// currently registered (§7 "unknown method").
func (r *Registry) Lookup(name string) (*Definition, bool) {
	d, ok := r.methods[name]

	return d, ok
}

// Names returns every currently registered method name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for n := range r.methods {
		names = append(names, n)
	}

	return names
}
