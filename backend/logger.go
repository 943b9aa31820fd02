package backend

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

var (
	sinksMu sync.Mutex
	sinks   []func(*slog.Logger)
)

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger sets the logger used by the backend package and passes it on to
// every sink registered with OnSetLogger.
// Passing nil restores the silent default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)

	sinksMu.Lock()
	fns := slices.Clone(sinks)
	sinksMu.Unlock()
	for _, fn := range fns {
		fn(l)
	}
}

// OnSetLogger registers fn to receive the logger on every SetLogger call.
// fn is called once immediately with the current logger. Backend packages
// call this from init so they follow framegraph.SetLogger without importing
// the root package.
func OnSetLogger(fn func(*slog.Logger)) {
	sinksMu.Lock()
	sinks = append(sinks, fn)
	sinksMu.Unlock()
	fn(slogger())
}
