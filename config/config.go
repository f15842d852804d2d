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

// package config parses the §6.6 flat configuration file format: "key:
// value" lines with indented continuations for list-valued keys, and
// ${VAR}/${VAR=default} environment substitution applied to every value.
package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrMissingSlices  = Error("config: missing required key 'slices'")
	ErrBadWorkdirLine = Error("config: malformed workdir line, want 'name path'")
)

// Workdir is one "name path" pair from the "workdirs" list key.
type Workdir struct {
	Name string
	Path string
}

// Config is the parsed form of a §6.6 configuration file.
type Config struct {
	Slices          int
	Workdirs        []Workdir
	MethodPackages  []string
	TargetWorkdir   string
	Listen          string
	BoardListen     string
	Urd             string
	ResultDirectory string
	InputDirectory  string

	// Raw holds every key this parse saw, post-substitution, for the
	// /config diagnostic endpoint (§6.4) and for keys this package
	// doesn't otherwise interpret.
	Raw map[string][]string
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(=([^}]*))?\}`)

// expandEnv performs ${VAR} / ${VAR=default} substitution on s.
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := sub[1], sub[2] != "", sub[3]

		if v, ok := os.LookupEnv(name); ok {
			return v
		}

		if hasDefault {
			return def
		}

		return ""
	})
}

// Parse reads the §6.6 config file at path: "key: value" lines, with
// subsequent indented lines appended as further values for the same key
// (used by list-valued keys like "workdirs" and "method packages").
// Blank lines and lines starting with '#' are ignored.
func Parse(path string) (*Config, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	raw := make(map[string][]string)

	var currentKey string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		if isIndented(line) && currentKey != "" {
			raw[currentKey] = append(raw[currentKey], expandEnv(strings.TrimSpace(line)))

			continue
		}

		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}

		currentKey = key
		value = expandEnv(value)

		if value != "" {
			raw[currentKey] = append(raw[currentKey], value)
		} else if _, exists := raw[currentKey]; !exists {
			raw[currentKey] = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return build(raw)
}

func isIndented(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

func splitKeyValue(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}

	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func build(raw map[string][]string) (*Config, error) {
	c := &Config{Raw: raw}

	slicesVal := first(raw["slices"])
	if slicesVal == "" {
		return nil, ErrMissingSlices
	}

	n, err := strconv.Atoi(slicesVal)
	if err != nil {
		return nil, fmt.Errorf("config: bad slices value %q: %w", slicesVal, err)
	}

	c.Slices = n

	for _, line := range raw["workdirs"] {
		wd, err := parseWorkdirLine(line)
		if err != nil {
			return nil, err
		}

		c.Workdirs = append(c.Workdirs, wd)
	}

	c.MethodPackages = raw["method packages"]
	c.TargetWorkdir = first(raw["target workdir"])
	c.Listen = first(raw["listen"])
	c.BoardListen = first(raw["board listen"])
	c.Urd = first(raw["urd"])
	c.ResultDirectory = first(raw["result directory"])
	c.InputDirectory = first(raw["input directory"])

	return c, nil
}

func parseWorkdirLine(line string) (Workdir, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 { //nolint:mnd
		return Workdir{}, ErrBadWorkdirLine
	}

	return Workdir{Name: fields[0], Path: fields[1]}, nil
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}

	return vals[0]
}
