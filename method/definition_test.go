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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPhaseString(t *testing.T) {
	Convey("Phase.String names every declared phase", t, func() {
		So(PhasePrepare.String(), ShouldEqual, "prepare")
		So(PhaseAnalysis.String(), ShouldEqual, "analysis")
		So(PhaseSynthesis.String(), ShouldEqual, "synthesis")
		So(Phase(99).String(), ShouldEqual, "unknown")
	})
}

func TestHasPhase(t *testing.T) {
	Convey("Given a definition with only prepare and synthesis", t, func() {
		noop := func(_ context.Context, _ Params) (Result, error) { return Result{}, nil }

		def := &Definition{
			Name:      "partial",
			Options:   &Schema{},
			Prepare:   noop,
			Synthesis: noop,
		}

		Convey("HasPhase reflects exactly the phases that were set", func() {
			So(def.HasPhase(PhasePrepare), ShouldBeTrue)
			So(def.HasPhase(PhaseAnalysis), ShouldBeFalse)
			So(def.HasPhase(PhaseSynthesis), ShouldBeTrue)
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given an empty registry", t, func() {
		reg := NewRegistry()

		Convey("Lookup on an unregistered name fails", func() {
			_, ok := reg.Lookup("nope")
			So(ok, ShouldBeFalse)
		})

		Convey("Register then Lookup finds the method, and Names lists it", func() {
			def := &Definition{Name: "m1", Options: &Schema{}}
			reg.Register(def)

			found, ok := reg.Lookup("m1")
			So(ok, ShouldBeTrue)
			So(found, ShouldEqual, def)
			So(reg.Names(), ShouldResemble, []string{"m1"})
		})

		Convey("Registering a second definition under the same name replaces the first", func() {
			reg.Register(&Definition{Name: "m1", Options: &Schema{}})
			replacement := &Definition{Name: "m1", Options: &Schema{}, SourcePath: "new"}
			reg.Register(replacement)

			found, ok := reg.Lookup("m1")
			So(ok, ShouldBeTrue)
			So(found, ShouldEqual, replacement)
		})
	})
}
