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

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrUnknownMethod means a submission named a method not present in any
	// configured method package.
	ErrUnknownMethod = Error("unknown method")

	// ErrUnknownOption means a submission referenced an option, dataset or
	// job input the method's schema doesn't declare.
	ErrUnknownOption = Error("unknown option")

	// ErrMissingRequired means a required-without-default option was not
	// supplied.
	ErrMissingRequired = Error("required option not given")

	// ErrBadEnum means an enum-typed option's value isn't one of the
	// declared choices.
	ErrBadEnum = Error("value not a valid enum choice")

	// ErrBadType means a value could not be converted to its declared
	// option type.
	ErrBadType = Error("value could not be converted to the option's type")

	// ErrNilNotAllowed means None/nil was given for an option whose schema
	// doesn't permit it.
	ErrNilNotAllowed = Error("option does not allow a nil value")
)

// BadOptionError wraps one of the Err* sentinels above with the offending
// option path, for precise caller-visible diagnostics (§7 "Bad option").
type BadOptionError struct {
	Path string
	Err  error
}

func (e *BadOptionError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *BadOptionError) Unwrap() error {
	return e.Err
}
