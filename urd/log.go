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

package urd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// §6.5: "On-disk log format is line-oriented; version 4 uses TAB
// separation with JSON-escaped fields; version 3 used '|' separation.
// Readers must accept both."
const (
	currentLogVersion = 4
	legacyLogVersion  = 3

	tabSep  = "\t"
	pipeSep = "|"

	logFields = 9 // version, user, list, timestamp, joblist, deps, caption, buildjob, ghost
)

// appendLine serialises e as a version-4 line: nine JSON-escaped fields
// joined by TAB.
func appendLine(e *Entry) (string, error) {
	joblistJSON, err := json.Marshal(e.Joblist)
	if err != nil {
		return "", err
	}

	depsJSON, err := json.Marshal(e.Deps)
	if err != nil {
		return "", err
	}

	ghost := "0"
	if e.Ghost {
		ghost = "1"
	}

	fields := []string{
		strconv.Itoa(currentLogVersion),
		jsonString(e.User),
		jsonString(e.List),
		jsonString(e.Timestamp),
		string(joblistJSON),
		string(depsJSON),
		jsonString(e.Caption),
		jsonString(e.BuildJob),
		ghost,
	}

	return strings.Join(fields, tabSep), nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s) //nolint:errcheck // string marshalling never fails

	return string(b)
}

// parseLine decodes one log line, accepting both the current TAB-separated
// version 4 format and the legacy '|'-separated version 3 format.
func parseLine(line string) (*Entry, error) {
	version, sep, err := detectVersion(line)
	if err != nil {
		return nil, err
	}

	fields := strings.SplitN(line, sep, logFields)
	if len(fields) != logFields {
		return nil, fmt.Errorf("urd: malformed log line (version %d): want %d fields, got %d",
			version, logFields, len(fields))
	}

	e := &Entry{}

	if err := jsonUnstring(fields[1], &e.User); err != nil {
		return nil, err
	}

	if err := jsonUnstring(fields[2], &e.List); err != nil {
		return nil, err
	}

	if err := jsonUnstring(fields[3], &e.Timestamp); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(fields[4]), &e.Joblist); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(fields[5]), &e.Deps); err != nil {
		return nil, err
	}

	if err := jsonUnstring(fields[6], &e.Caption); err != nil {
		return nil, err
	}

	if err := jsonUnstring(fields[7], &e.BuildJob); err != nil {
		return nil, err
	}

	e.Ghost = strings.TrimSpace(fields[8]) == "1"

	return e, nil
}

func jsonUnstring(field string, out *string) error {
	return json.Unmarshal([]byte(field), out)
}

// detectVersion reads the line's leading version number and returns the
// separator that version used.
func detectVersion(line string) (int, string, error) {
	idx := strings.IndexAny(line, tabSep+pipeSep)
	if idx < 0 {
		return 0, "", fmt.Errorf("urd: malformed log line, no field separator found")
	}

	version, err := strconv.Atoi(strings.TrimSpace(line[:idx]))
	if err != nil {
		return 0, "", fmt.Errorf("urd: malformed log line version: %w", err)
	}

	switch {
	case line[idx] == '\t':
		return version, tabSep, nil
	case line[idx] == '|':
		return version, pipeSep, nil
	default:
		return version, "", fmt.Errorf("urd: unknown log separator")
	}
}

// File is the append-only on-disk log (§5 "the urd log appends under an
// exclusive file lock").
type File struct {
	f *os.File
}

// OpenFile opens (creating if necessary) the log file at path for
// appending, under an exclusive advisory lock held for the lifetime of the
// returned File.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close() //nolint:errcheck,gosec

		return nil, err
	}

	return &File{f: f}, nil
}

// Close releases the lock and closes the file.
func (lf *File) Close() error {
	syscall.Flock(int(lf.f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return lf.f.Close()
}

// Append writes e as a new line.
func (lf *File) Append(e *Entry) error {
	line, err := appendLine(e)
	if err != nil {
		return err
	}

	_, err = lf.f.WriteString(line + "\n")

	return err
}

// ReadAll replays every entry in the log, in file (append) order, for
// Store.Load to rebuild its in-memory index at startup.
func ReadAll(path string) ([]*Entry, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var entries []*Entry

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024) //nolint:mnd

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		e, err := parseLine(line)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, err
	}

	return entries, nil
}
