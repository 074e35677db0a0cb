package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrorSink receives declaration errors. Build reports every problem it
// finds and keeps going.
type ErrorSink interface {
	Report(title string, lines []string)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(title string, lines []string)

// Report calls f.
func (f ErrorSinkFunc) Report(title string, lines []string) {
	f(title, lines)
}

// LogSink reports declaration errors through slog.
var LogSink = ErrorSinkFunc(func(title string, lines []string) {
	slog.Error("callback declaration error", "title", title, "detail", strings.Join(lines, "\n"))
})

// DeclarationError is one structured declaration problem.
type DeclarationError struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// Error joins the title and lines on one line.
func (e *DeclarationError) Error() string {
	if len(e.Lines) == 0 {
		return e.Title
	}
	return e.Title + ": " + strings.Join(e.Lines, " ")
}

// Collector accumulates declaration errors in report order.
type Collector struct {
	Errors []*DeclarationError
}

// Report implements ErrorSink.
func (c *Collector) Report(title string, lines []string) {
	c.Errors = append(c.Errors, &DeclarationError{Title: title, Lines: lines})
}

// Titles returns the reported titles in order.
func (c *Collector) Titles() []string {
	titles := make([]string, len(c.Errors))
	for i, e := range c.Errors {
		titles[i] = e.Title
	}
	return titles
}

// Err joins the collected errors, or returns nil.
func (c *Collector) Err() error {
	if len(c.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(c.Errors))
	for i, e := range c.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// CycleError reports a circular dependency between callback bindings.
type CycleError struct {
	// Path lists the nodes of one loop, starting and ending on the same node.
	Path []string
}

// Error renders the loop as "a.value -> b.value -> a.value".
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle found: %s", strings.Join(e.Path, " -> "))
}

// IsCycleError reports whether err is or wraps a *CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}
