package scheduler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/reflow/internal/resolve"
)

// ErrStopped is returned by calls made after the loop stopped.
var ErrStopped = errors.New("scheduler stopped")

// ErrorKind classifies reported errors.
type ErrorKind string

const (
	// KindCallback covers resolution problems and graph-level failures.
	KindCallback ErrorKind = "callback"
	// KindBackEnd covers failed executions.
	KindBackEnd ErrorKind = "backEnd"
)

// ErrorReporter receives every error the loop logs and continues past.
// cb is nil for errors that concern no single callback.
type ErrorReporter interface {
	Report(kind ErrorKind, cb *resolve.Callback, err error)
}

// ErrorReporterFunc adapts a function to ErrorReporter.
type ErrorReporterFunc func(kind ErrorKind, cb *resolve.Callback, err error)

// Report calls f.
func (f ErrorReporterFunc) Report(kind ErrorKind, cb *resolve.Callback, err error) {
	f(kind, cb, err)
}

// logReporter is the default ErrorReporter: one slog error per report.
type logReporter struct{}

func (logReporter) Report(kind ErrorKind, cb *resolve.Callback, err error) {
	attrs := []any{"kind", string(kind), "error", err}
	if cb != nil {
		attrs = append(attrs, "resolved_id", cb.ResolvedID, "group", cb.ExecutionGroup)
	}
	slog.Error("callback error", attrs...)
}

// logEventError logs an event that failed processing with its context.
func logEventError(ev event, err error) {
	attrs := []any{"event_type", ev.typ.String(), "error", err}
	if !ev.id.IsZero() {
		attrs = append(attrs, "id", ev.id.String())
	}
	if ev.completion != nil {
		attrs = append(attrs, "resolved_id", ev.completion.cb.ResolvedID, "token", ev.completion.token)
	}
	if ev.move != 0 {
		attrs = append(attrs, "move", ev.move.String())
	}
	slog.Error("event processing failed", attrs...)
}

func errUnknownEvent(t eventType) error {
	return fmt.Errorf("unknown event type %d", int(t))
}
