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

package cmd

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wtsi-ssg/batchjob/config"
)

// clientTimeout bounds how long a CLI subcommand waits for the job server
// to answer; these are interactive commands, not long-running builds.
const clientTimeout = 30 * time.Second

var httpClient = &http.Client{Timeout: clientTimeout}

// serverBaseURL turns conf.Listen (the address the server binds, e.g.
// ":1234" or "localhost:1234") into a base URL the client subcommands can
// build requests against.
func serverBaseURL(conf *config.Config) string {
	addr := conf.Listen
	if addr == "" {
		die("config must set 'listen'")
	}

	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	return strings.TrimSuffix(addr, "/")
}

// getJSON performs a GET against the job server and decodes the JSON
// response into out.
func getJSON(conf *config.Config, path string, out interface{}) error {
	resp, err := httpClient.Get(serverBaseURL(conf) + path) //nolint:noctx
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	return json.NewDecoder(resp.Body).Decode(out)
}

// postForm performs a POST with a form-urlencoded body against the job
// server and decodes the JSON response into out.
func postForm(conf *config.Config, path string, form url.Values, out interface{}) error {
	resp, err := httpClient.PostForm(serverBaseURL(conf)+path, form) //nolint:noctx
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	return json.NewDecoder(resp.Body).Decode(out)
}

// postEmpty performs a bodyless POST against the job server and decodes
// the JSON response into out.
func postEmpty(conf *config.Config, path string, out interface{}) error {
	resp, err := httpClient.Post(serverBaseURL(conf)+path, "application/json", http.NoBody) //nolint:noctx
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	return json.NewDecoder(resp.Body).Decode(out)
}

// parseJSONFlag decodes a command-line flag's raw JSON text into a
// map[string]interface{}, treating an empty string as an empty map rather
// than an error - most of these flags are optional.
func parseJSONFlag(name, raw string) map[string]interface{} {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		die("--%s is not valid JSON: %s", name, err)
	}

	return out
}

// printJSON pretty-prints v to stdout, for subcommands that just relay
// the server's JSON response rather than reformatting it.
func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		die("failed to encode response: %s", err)
	}

	cliPrint("%s\n", data)
}
