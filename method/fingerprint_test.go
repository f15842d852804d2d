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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFingerprint(t *testing.T) {
	Convey("Given a schema and two submissions with identical content", t, func() {
		schema := &Schema{Specs: []Spec{
			{Name: "foo", Kind: KindString, Default: ""},
			{Name: "a", Kind: KindString, Default: ""},
		}}

		sub1 := Submission{
			Method:        "test_build_kws",
			Options:       map[string]interface{}{"foo": "foo", "a": "a"},
			DatasetInputs: map[string]string{"input": "wd-1/ds"},
			JobInputs:     map[string]string{"upstream": "wd-2"},
		}
		sub2 := Submission{
			Method:        "test_build_kws",
			Options:       map[string]interface{}{"a": "a", "foo": "foo"},
			DatasetInputs: map[string]string{"input": "wd-1/ds"},
			JobInputs:     map[string]string{"upstream": "wd-2"},
		}

		Convey("Fingerprint is identical regardless of map iteration order", func() {
			So(Fingerprint(schema, sub1), ShouldEqual, Fingerprint(schema, sub2))
		})

		Convey("Fingerprint changes when an input dataset changes", func() {
			sub3 := sub1
			sub3.DatasetInputs = map[string]string{"input": "wd-1/other"}
			So(Fingerprint(schema, sub1), ShouldNotEqual, Fingerprint(schema, sub3))
		})

		Convey("Fingerprint changes when an input job changes", func() {
			sub3 := sub1
			sub3.JobInputs = map[string]string{"upstream": "wd-3"}
			So(Fingerprint(schema, sub1), ShouldNotEqual, Fingerprint(schema, sub3))
		})

		Convey("Fingerprint changes when an option changes", func() {
			sub3 := sub1
			sub3.Options = map[string]interface{}{"foo": "bar", "a": "a"}
			So(Fingerprint(schema, sub1), ShouldNotEqual, Fingerprint(schema, sub3))
		})
	})
}
