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
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func testSchema() *Schema {
	return &Schema{Specs: []Spec{
		{Name: "count", Kind: KindInt, Default: 0},
		{Name: "name", Kind: KindString, Default: ""},
		{Name: "ratio", Kind: KindFloat, Default: 0.0},
		{Name: "verbose", Kind: KindBool, Default: false},
		{Name: "mode", Kind: KindEnum, Enum: []string{"a", "b", "c"}, Default: "a"},
		{Name: "tags", Kind: KindSet, Default: map[string]bool{}},
		{Name: "path", Kind: KindPath, Default: "."},
		{Name: "when", Kind: KindDate, Default: time.Time{}},
		{Name: "required", Kind: KindString, Required: true},
		{Name: "nestable", Kind: KindDict, Nested: &Schema{Specs: []Spec{
			{Name: "inner", Kind: KindInt, Default: 1},
		}}},
		{Name: "nilable", Kind: KindString, Nilable: true},
	}}
}

func TestConvert(t *testing.T) {
	Convey("Given a schema with every option kind", t, func() {
		schema := testSchema()

		Convey("Convert defaults every omitted option and types given ones", func() {
			typed, notes, err := Convert(schema, map[string]interface{}{
				"count":    "42",
				"required": "present",
				"mode":     "b",
				"tags":     []interface{}{"x", "y"},
				"when":     "2023-06-01",
			})
			So(err, ShouldBeNil)
			So(typed["count"], ShouldEqual, 42)
			So(typed["name"], ShouldEqual, "")
			So(typed["mode"], ShouldEqual, "b")
			So(typed["tags"], ShouldResemble, map[string]bool{"x": true, "y": true})
			So(typed["path"], ShouldEqual, ".")

			whenT, ok := typed["when"].(time.Time)
			So(ok, ShouldBeTrue)
			So(whenT.Format("2006-01-02"), ShouldEqual, "2023-06-01")

			var paths, dates, sets []string
			for _, n := range notes {
				switch n.Type {
				case "Path":
					paths = append(paths, n.Path)
				case "date":
					dates = append(dates, n.Path)
				case "set":
					sets = append(sets, n.Path)
				}
			}
			So(paths, ShouldResemble, []string{"path"})
			So(dates, ShouldResemble, []string{"when"})
			So(sets, ShouldResemble, []string{"tags"})
		})

		Convey("Convert rejects a missing required option", func() {
			_, _, err := Convert(schema, map[string]interface{}{})
			So(err, ShouldNotBeNil)

			var boErr *BadOptionError
			So(errors.As(err, &boErr), ShouldBeTrue)
			So(boErr.Path, ShouldEqual, "required")
			So(boErr.Unwrap(), ShouldEqual, ErrMissingRequired)
		})

		Convey("Convert rejects an unknown option", func() {
			_, _, err := Convert(schema, map[string]interface{}{
				"required": "x",
				"bogus":    1,
			})
			So(err, ShouldNotBeNil)

			var boErr *BadOptionError
			So(errors.As(err, &boErr), ShouldBeTrue)
			So(boErr.Path, ShouldEqual, "bogus")
			So(boErr.Unwrap(), ShouldEqual, ErrUnknownOption)
		})

		Convey("Convert rejects a value outside an enum's choices", func() {
			_, _, err := Convert(schema, map[string]interface{}{
				"required": "x",
				"mode":     "z",
			})
			So(err, ShouldNotBeNil)

			var boErr *BadOptionError
			So(errors.As(err, &boErr), ShouldBeTrue)
			So(boErr.Unwrap(), ShouldEqual, ErrBadEnum)
		})

		Convey("Convert rejects a value that can't be converted", func() {
			_, _, err := Convert(schema, map[string]interface{}{
				"required": "x",
				"count":    "not-a-number",
			})
			So(err, ShouldNotBeNil)

			var boErr *BadOptionError
			So(errors.As(err, &boErr), ShouldBeTrue)
			So(boErr.Unwrap(), ShouldEqual, ErrBadType)
		})

		Convey("Convert rejects nil for a non-nilable option", func() {
			_, _, err := Convert(schema, map[string]interface{}{
				"required": "x",
				"name":     nil,
			})
			So(err, ShouldNotBeNil)

			var boErr *BadOptionError
			So(errors.As(err, &boErr), ShouldBeTrue)
			So(boErr.Unwrap(), ShouldEqual, ErrNilNotAllowed)
		})

		Convey("Convert allows nil for a nilable option", func() {
			typed, _, err := Convert(schema, map[string]interface{}{
				"required": "x",
				"nilable":  nil,
			})
			So(err, ShouldBeNil)
			So(typed["nilable"], ShouldBeNil)
		})

		Convey("Convert recurses into a nested dict schema", func() {
			typed, _, err := Convert(schema, map[string]interface{}{
				"required": "x",
				"nestable": map[string]interface{}{"inner": "7"},
			})
			So(err, ShouldBeNil)

			inner, ok := typed["nestable"].(map[string]interface{})
			So(ok, ShouldBeTrue)
			So(inner["inner"], ShouldEqual, 7)
		})
	})
}

func TestConvertOption(t *testing.T) {
	Convey("Given a schema", t, func() {
		schema := testSchema()

		Convey("ConvertOption types one named option without requiring the rest", func() {
			v, err := ConvertOption(schema, "count", "9")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 9)
		})

		Convey("ConvertOption rejects an option not in the schema", func() {
			_, err := ConvertOption(schema, "bogus", 1)
			So(err, ShouldNotBeNil)

			var boErr *BadOptionError
			So(errors.As(err, &boErr), ShouldBeTrue)
			So(boErr.Unwrap(), ShouldEqual, ErrUnknownOption)
		})
	})
}

func TestCanonicalize(t *testing.T) {
	Convey("Given two option maps that differ only in key order", t, func() {
		schema := &Schema{Specs: []Spec{
			{Name: "b", Kind: KindInt, Default: 0},
			{Name: "a", Kind: KindString, Default: ""},
		}}

		m1 := map[string]interface{}{"a": "x", "b": 1}
		m2 := map[string]interface{}{"b": 1, "a": "x"}

		Convey("Canonicalize produces identical, alphabetised output for both", func() {
			c1 := Canonicalize(schema, m1)
			c2 := Canonicalize(schema, m2)
			So(c1, ShouldEqual, c2)
			So(c1, ShouldEqual, `{"a":"x","b":1}`)
		})

		Convey("Canonicalize changes when a value changes", func() {
			m3 := map[string]interface{}{"a": "x", "b": 2}
			So(Canonicalize(schema, m1), ShouldNotEqual, Canonicalize(schema, m3))
		})
	})
}

