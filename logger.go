package telem

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip
// attribute formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Render and control goroutines both log,
// so access is atomic.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for telem and all of its sub-packages.
// By default telem produces no log output. Pass nil to restore the silent
// default.
//
// Log levels used by telem:
//   - [slog.LevelDebug]: tree reconciliation steps, GPU buffer uploads, pipeline creation
//   - [slog.LevelInfo]: lifecycle events (render context created, loop started)
//   - [slog.LevelWarn]: recoverable data errors (rejected state, mismatched series)
//   - [slog.LevelError]: protocol errors ignored outside strict mode
//
// Example:
//
//	telem.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Sub-packages call this on every use so
// that SetLogger takes effect without restarting a running loop.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
