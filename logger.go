package framegraph

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/hostsync"
	"github.com/gogpu/framegraph/transient"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger configures the logger for framegraph and all its sub-packages.
// By default, framegraph produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by framegraph:
//   - [slog.LevelDebug]: compile statistics (passes, sections, barriers, memory blocks)
//   - [slog.LevelInfo]: lifecycle events (render loop begin/end, backend opened)
//   - [slog.LevelWarn]: non-fatal issues (fence wait timeouts, destroy failures)
//
// Example:
//
//	framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	transient.SetLogger(l)
	hostsync.SetLogger(l)
	backend.SetLogger(l)
}

// Logger returns the current logger used by framegraph.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
