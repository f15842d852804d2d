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
	"strings"

	"github.com/spf13/cobra"
)

// options for this cmd.
var whyOptions string

// whyCmd represents the why command.
var whyCmd = &cobra.Command{
	Use:   "why [method]",
	Short: "Explain which existing job a (partial) submission would reuse",
	Long: `Explain which existing job a submission would reuse, if any.

--options may be a partial set of options: every previously built job for
method is checked against it, most recent first, and the first match is
returned. With no --options, this reports the most recent build of
method.

$ batchjob why my_method --options '{"foo":"bar"}'
`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()
		method := args[0]

		partial := parseJSONFlag("options", whyOptions)

		raw, err := json.Marshal(partial)
		if err != nil {
			die("failed to encode options: %s", err)
		}

		req, err := http.NewRequest(http.MethodGet, serverBaseURL(conf)+"/why_build/"+method, strings.NewReader(string(raw)))
		if err != nil {
			die("failed to build request: %s", err)
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			die("why_build request failed: %s", err)
		}
		defer resp.Body.Close() //nolint:errcheck

		var out map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			die("failed to decode response: %s", err)
		}

		printJSON(out)
	},
}

func init() {
	RootCmd.AddCommand(whyCmd)

	whyCmd.Flags().StringVar(&whyOptions, "options", "", "JSON object of known options to match against")
}
