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
	"sort"
	"strings"
)

// Submission is everything a caller provides to build a job: the method
// name plus its three typed input maps. Options, DatasetInputs and
// JobInputs are already the Convert()-ed, fully defaulted forms.
type Submission struct {
	Method        string
	Options       map[string]interface{}
	DatasetInputs map[string]string // name -> dataset locator (FSSafeName)
	JobInputs     map[string]string // name -> job id
}

// Fingerprint computes the canonical option-set fingerprint for a submission
// (§3 "Option-set fingerprint", §4.3 step 2): alphabetised option keys,
// type-normalised values, and the dataset/job inputs folded in as ordinary
// string-valued entries so that changing an input dataset or upstream job
// changes the fingerprint exactly like changing an option would.
//
// The method's source hash is deliberately NOT part of the fingerprint: it
// is checked separately as a validity condition when the job database
// decides whether a matching job can still be reused (§2 "Job database",
// §4.3 step 3).
func Fingerprint(schema *Schema, sub Submission) string {
	var b strings.Builder

	b.WriteString(Canonicalize(schema, sub.Options))
	b.WriteString("|datasets:")
	b.WriteString(canonicalizeStringMap(sub.DatasetInputs))
	b.WriteString("|jobs:")
	b.WriteString(canonicalizeStringMap(sub.JobInputs))

	return b.String()
}

func canonicalizeStringMap(m map[string]string) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}

	sort.Strings(names)

	var b strings.Builder

	b.WriteByte('{')

	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteByte('"')
		b.WriteString(name)
		b.WriteString(`":"`)
		b.WriteString(m[name])
		b.WriteByte('"')
	}

	b.WriteByte('}')

	return b.String()
}
