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

// package method declares the option schema, typing/defaulting rules, and
// fingerprint canonicalisation used by the resolver (§4.3) to decide what a
// submission actually means, plus the source-hashing and tar packaging every
// job records (§3, §9 "Method source packaging").
//
// The source language's option dicts double as both default values and type
// hints (int, {str:str}, OptionEnum("a b c"), ...). We replace that with the
// tagged variant described in spec.md §9: a Kind plus a single Convert
// routine per kind, and a declarative Schema per method.
package method

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Kind identifies an option's declared type.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindInt64
	KindFloat
	KindString
	KindDate
	KindDateTime
	KindPath
	KindSet
	KindEnum
	KindDict
	KindJSON
)

// Spec declares one option: its name, type, default, and (for KindEnum and
// KindDict) the extra schema needed to convert and canonicalise it.
type Spec struct {
	Name     string
	Kind     Kind
	Default  interface{}
	Required bool // RequiredOption(...): must be given, has no usable Default
	Nilable  bool // schema permits an explicit nil/None value
	Enum     []string
	Nested   *Schema // for KindDict
	Ordered  bool    // Nested's default was an ordered mapping; Canonicalize does not use it and sorts these keys too
}

// Schema is a method's option declaration, in the order the method author
// wrote them (Canonicalize alphabetises keys at every level, so this order
// does not affect the fingerprint).
type Schema struct {
	Specs []Spec
}

// Lookup finds the Spec for name, or ok=false.
func (s *Schema) Lookup(name string) (Spec, bool) {
	for _, sp := range s.Specs {
		if sp.Name == name {
			return sp, true
		}
	}

	return Spec{}, false
}

// TypingNote records that a converted leaf needs post-load type coercion
// when read back out of setup.json (§6.1 "_typing"), because JSON can't
// natively represent it (a Go time.Time, a set, or a filesystem path).
type TypingNote struct {
	Path string
	Type string // "datetime", "date", "set", "Path"
}

// Convert validates and types the given raw option/dataset/job map against
// schema, applying defaults for anything omitted. It returns the fully typed
// map, any _typing notes needed to round-trip it through JSON, and a
// *BadOptionError on the first failure (§4.3 step 1, §7 "Bad option").
func Convert(schema *Schema, raw map[string]interface{}) (map[string]interface{}, []TypingNote, error) {
	out := make(map[string]interface{}, len(schema.Specs))

	var notes []TypingNote

	seen := make(map[string]bool, len(raw))
	for k := range raw {
		seen[k] = true
	}

	for _, spec := range schema.Specs {
		delete(seen, spec.Name)

		v, given := raw[spec.Name]

		if !given {
			if spec.Required {
				return nil, nil, &BadOptionError{Path: spec.Name, Err: ErrMissingRequired}
			}

			v = spec.Default
		}

		typed, note, err := convertOne(spec, spec.Name, v, given)
		if err != nil {
			return nil, nil, err
		}

		out[spec.Name] = typed

		if note != nil {
			notes = append(notes, *note)
		}
	}

	for k := range seen {
		return nil, nil, &BadOptionError{Path: k, Err: ErrUnknownOption}
	}

	return out, notes, nil
}

//nolint:gocyclo,cyclop,funlen
func convertOne(spec Spec, path string, v interface{}, given bool) (interface{}, *TypingNote, error) {
	if v == nil {
		if spec.Nilable {
			return nil, nil, nil
		}

		if !given {
			// an un-given, non-required option with a nil default is how
			// many "optional with no sensible default" options are
			// expressed; that's fine even without Nilable.
			return nil, nil, nil
		}

		return nil, nil, &BadOptionError{Path: path, Err: ErrNilNotAllowed}
	}

	switch spec.Kind {
	case KindBool:
		b, err := asBool(v)
		if err != nil {
			return nil, nil, &BadOptionError{Path: path, Err: err}
		}

		return b, nil, nil
	case KindInt:
		i, err := asInt(v)
		if err != nil {
			return nil, nil, &BadOptionError{Path: path, Err: err}
		}

		return i, nil, nil
	case KindInt64:
		i, err := asInt64(v)
		if err != nil {
			return nil, nil, &BadOptionError{Path: path, Err: err}
		}

		return i, nil, nil
	case KindFloat:
		f, err := asFloat(v)
		if err != nil {
			return nil, nil, &BadOptionError{Path: path, Err: err}
		}

		return f, nil, nil
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, nil, &BadOptionError{Path: path, Err: ErrBadType}
		}

		return s, nil, nil
	case KindPath:
		s, ok := v.(string)
		if !ok {
			return nil, nil, &BadOptionError{Path: path, Err: ErrBadType}
		}

		return filepath.Clean(s), &TypingNote{Path: path, Type: "Path"}, nil
	case KindDate:
		t, err := parseTimeValue(v, "2006-01-02")
		if err != nil {
			return nil, nil, &BadOptionError{Path: path, Err: err}
		}

		return t, &TypingNote{Path: path, Type: "date"}, nil
	case KindDateTime:
		t, err := parseTimeValue(v, "2006-01-02 15:04:05")
		if err != nil {
			return nil, nil, &BadOptionError{Path: path, Err: err}
		}

		return t, &TypingNote{Path: path, Type: "datetime"}, nil
	case KindSet:
		set, err := asSet(v)
		if err != nil {
			return nil, nil, &BadOptionError{Path: path, Err: err}
		}

		return set, &TypingNote{Path: path, Type: "set"}, nil
	case KindEnum:
		s, ok := v.(string)
		if !ok || !inStrings(spec.Enum, s) {
			return nil, nil, &BadOptionError{Path: path, Err: ErrBadEnum}
		}

		return s, nil, nil
	case KindDict:
		return convertDict(spec, path, v)
	case KindJSON:
		return v, nil, nil
	default:
		return nil, nil, &BadOptionError{Path: path, Err: ErrBadType}
	}
}

func convertDict(spec Spec, path string, v interface{}) (interface{}, *TypingNote, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, nil, &BadOptionError{Path: path, Err: ErrBadType}
	}

	if spec.Nested == nil {
		return m, nil, nil
	}

	out, _, err := Convert(spec.Nested, m)

	return out, nil, err
}

func asBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, ErrBadType
		}

		return b, nil
	default:
		return false, ErrBadType
	}
}

func asInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		i, err := strconv.Atoi(t)
		if err != nil {
			return 0, ErrBadType
		}

		return i, nil
	default:
		return 0, ErrBadType
	}
}

func asInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, ErrBadType
		}

		return i, nil
	default:
		return 0, ErrBadType
	}
}

func asFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, ErrBadType
		}

		return f, nil
	default:
		return 0, ErrBadType
	}
}

func parseTimeValue(v interface{}, layout string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(layout, t)
		if err != nil {
			return time.Time{}, ErrBadType
		}

		return parsed, nil
	default:
		return time.Time{}, ErrBadType
	}
}

func asSet(v interface{}) (map[string]bool, error) {
	set := make(map[string]bool)

	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, ErrBadType
			}

			set[s] = true
		}
	case []string:
		for _, s := range t {
			set[s] = true
		}
	case map[string]bool:
		for k, ok := range t {
			if ok {
				set[k] = true
			}
		}
	default:
		return nil, ErrBadType
	}

	return set, nil
}

func inStrings(hay []string, needle string) bool {
	for _, h := range hay {
		if h == needle {
			return true
		}
	}

	return false
}

// Canonicalize produces the canonical fingerprint string for a fully typed
// option map (§3 "Option-set fingerprint"): alphabetised keys at every level,
// including nested dicts whose Spec.Ordered is set (their insertion order is
// not kept). Equivalent option-sets always produce byte-equal strings.
func Canonicalize(schema *Schema, typed map[string]interface{}) string {
	return canonicalizeSchema(schema, typed)
}

// ConvertOption types a single named option's value against schema,
// without requiring every other option in schema to be present. Used by
// the resolver's matchSubset/why_build query, which only ever supplies a
// partial option set (§4.3 step 2 applied to a subset rather than the
// full submission).
func ConvertOption(schema *Schema, name string, v interface{}) (interface{}, error) {
	spec, ok := schema.Lookup(name)
	if !ok {
		return nil, &BadOptionError{Path: name, Err: ErrUnknownOption}
	}

	typed, _, err := convertOne(spec, name, v, true)

	return typed, err
}

func canonicalizeSchema(schema *Schema, typed map[string]interface{}) string {
	names := make([]string, 0, len(schema.Specs))
	bySpec := make(map[string]Spec, len(schema.Specs))

	for _, spec := range schema.Specs {
		names = append(names, spec.Name)
		bySpec[spec.Name] = spec
	}

	sort.Strings(names)

	out := "{"

	for i, name := range names {
		if i > 0 {
			out += ","
		}

		out += fmt.Sprintf("%q:", name)
		out += canonicalizeValue(bySpec[name], typed[name])
	}

	return out + "}"
}

//nolint:gocyclo,cyclop
func canonicalizeValue(spec Spec, v interface{}) string {
	if v == nil {
		return "null"
	}

	switch spec.Kind {
	case KindDict:
		m, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Sprintf("%v", v)
		}

		if spec.Nested != nil {
			return canonicalizeSchema(spec.Nested, m)
		}

		return canonicalizeMap(m, spec.Ordered)
	case KindSet:
		set, ok := v.(map[string]bool)
		if !ok {
			return fmt.Sprintf("%v", v)
		}

		keys := make([]string, 0, len(set))
		for k, ok := range set {
			if ok {
				keys = append(keys, k)
			}
		}

		sort.Strings(keys)

		return fmt.Sprintf("%q", keys)
	case KindDate:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Sprintf("%v", v)
		}

		return fmt.Sprintf("%q", t.Format("2006-01-02"))
	case KindDateTime:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Sprintf("%v", v)
		}

		return fmt.Sprintf("%q", t.Format("2006-01-02 15:04:05"))
	case KindString, KindPath, KindEnum:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// canonicalizeMap handles untyped nested dicts ({str:str} style options with
// no further schema), always with sorted keys; its second parameter
// (Spec.Ordered) is not used, and a plain Go map carries no insertion order.
func canonicalizeMap(m map[string]interface{}, _ bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := "{"

	for i, k := range keys {
		if i > 0 {
			out += ","
		}

		out += fmt.Sprintf("%q:%v", k, m[k])
	}

	return out + "}"
}
