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

package launcher

import (
	"bufio"
	"io"
	"os"
	"strconv"
)

// writeWorkerPreamble writes a worker's own pid in hex as the first line
// of its output (§4.4 "The first bytes a worker writes are its own
// process id in hex, to allow the reader to associate output with the
// correct slice without racing on fork"). Called by the worker side
// (worker.go) before it starts running the method's phase function.
func writeWorkerPreamble(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(os.Getpid()), 16)+"\n")

	return err
}

// captureOutput reads a worker's combined stdout+stderr from r, strips the
// pid preamble, writes the rest to outPath (OUTPUT/<sliceno>), and
// forwards every chunk to status for sliceno. It returns the pid the
// worker reported, or 0 if none was found.
func captureOutput(r io.Reader, sliceno int, outPath string, status *Status) (int, error) {
	out, err := os.Create(outPath) //nolint:gosec
	if err != nil {
		return 0, err
	}
	defer out.Close()

	br := bufio.NewReader(r)

	pidLine, err := br.ReadString('\n')

	var pid int

	if err == nil {
		if n, perr := strconv.ParseInt(trimNewline(pidLine), 16, 64); perr == nil {
			pid = int(n)
			status.setPid(sliceno, pid)
		}
	} else if err != io.EOF {
		return 0, err
	}

	buf := make([]byte, 32*1024)

	for {
		n, rerr := br.Read(buf)
		if n > 0 {
			chunk := buf[:n]

			if _, werr := out.Write(chunk); werr != nil {
				return pid, werr
			}

			status.appendOutput(sliceno, chunk)
		}

		if rerr != nil {
			if rerr == io.EOF {
				return pid, nil
			}

			return pid, rerr
		}
	}
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}

	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}

	return s
}
