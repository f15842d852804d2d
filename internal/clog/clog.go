/*******************************************************************************
 * Copyright (c) 2022 Genome Research Ltd.
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

// package clog bridges the log15.Logger used at the CLI/server boundary with
// the log/slog used by the library packages underneath it, so a job launched
// deep inside the launcher or dataset engine can still log through whatever
// handler the command line configured.
package clog

import (
	"context"
	"log/slog"

	"github.com/inconshreveable/log15"
)

type ctxKey int

const handlerKey ctxKey = 0

// ContextWithLogHandler returns a context carrying the given log15.Handler,
// for passing down into library code that only knows about context.Context.
func ContextWithLogHandler(ctx context.Context, h log15.Handler) context.Context {
	return context.WithValue(ctx, handlerKey, h)
}

// HandlerFromContext extracts a log15.Handler previously stored with
// ContextWithLogHandler, falling back to a handler that forwards to
// log/slog's default logger so a job run without an explicit handler still
// logs somewhere.
func HandlerFromContext(ctx context.Context) log15.Handler {
	if h, ok := ctx.Value(handlerKey).(log15.Handler); ok && h != nil {
		return h
	}

	return slogBridgeHandler{}
}

// slogBridgeHandler adapts log15.Record output to log/slog, used by library
// packages (dataset, launcher) that log with slog.Debug/Info the way the
// newer wrstat packages do, while still being reachable via the log15-based
// context plumbing used by the CLI and scheduler layers.
type slogBridgeHandler struct{}

func (slogBridgeHandler) Log(r *log15.Record) error {
	slog.Info(r.Msg, "lvl", r.Lvl.String(), "ctx", r.Ctx)

	return nil
}
