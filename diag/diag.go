// Package diag implements the assembler's diagnostics sink: a small,
// pluggable collector of warnings and errors tagged with source line
// numbers, used by every stage of the pipeline from the line parser
// through code generation.
package diag

import (
	"fmt"
	"io"
)

// Level distinguishes informational, warning and error diagnostics.
type Level int

// Severity levels, in increasing order of severity.
const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// A Diagnostic is a single recorded message tied to a 1-based source
// line number (0 if the line is unknown, e.g. a profile-loading error).
type Diagnostic struct {
	Level Level
	Line  int
	Msg   string
}

// String renders the diagnostic as "<level> on line <N>: <message>",
// or as "<level>: <message>" when the line is unknown (0).
func (d Diagnostic) String() string {
	if d.Line <= 0 {
		return fmt.Sprintf("%s: %s", d.Level, d.Msg)
	}
	return fmt.Sprintf("%s on line %d: %s", d.Level, d.Line, d.Msg)
}

// A Sink collects diagnostics as assembly proceeds and decides whether
// the overall run succeeded. It never aborts a run by itself; callers
// are responsible for continuing to collect diagnostics across both
// assembler passes.
type Sink struct {
	out     io.Writer
	verbose bool
	records []Diagnostic
}

// New creates a diagnostics sink that mirrors every recorded message to
// out (typically os.Stderr, optionally teed with a log file by the
// caller). out may be nil, in which case messages are only buffered.
func New(out io.Writer) *Sink {
	return &Sink{out: out}
}

// SetVerbose enables streaming of verbose trace output (see Trace) to
// the sink's writer.
func (s *Sink) SetVerbose(v bool) {
	s.verbose = v
}

// Info records an informational diagnostic.
func (s *Sink) Info(line int, format string, args ...interface{}) {
	s.add(Info, line, format, args...)
}

// Warning records a warning diagnostic. Warnings never cause the
// overall run to fail.
func (s *Sink) Warning(line int, format string, args ...interface{}) {
	s.add(Warning, line, format, args...)
}

// Error records an error diagnostic. A run that accumulates one or
// more errors must report failure once both passes complete.
func (s *Sink) Error(line int, format string, args ...interface{}) {
	s.add(Error, line, format, args...)
}

func (s *Sink) add(level Level, line int, format string, args ...interface{}) {
	d := Diagnostic{Level: level, Line: line, Msg: fmt.Sprintf(format, args...)}
	s.records = append(s.records, d)
	if s.out != nil {
		fmt.Fprintln(s.out, d.String())
	}
}

// HadErrors reports whether any error-level diagnostic was recorded.
func (s *Sink) HadErrors() bool {
	for _, d := range s.records {
		if d.Level == Error {
			return true
		}
	}
	return false
}

// Records returns every diagnostic recorded so far, in emission order.
func (s *Sink) Records() []Diagnostic {
	return s.records
}

// Trace writes one formatted verbose trace line. It is a no-op unless
// verbose mode is enabled.
func (s *Sink) Trace(format string, args ...interface{}) {
	if s.verbose && s.out != nil {
		fmt.Fprintf(s.out, format, args...)
		fmt.Fprintln(s.out)
	}
}

// TraceSection writes a verbose section banner, mirroring the
// teacher's logSection helper.
func (s *Sink) TraceSection(name string) {
	if !s.verbose || s.out == nil {
		return
	}
	bar := make([]byte, len(name)+6)
	for i := range bar {
		bar[i] = '-'
	}
	fmt.Fprintln(s.out, string(bar))
	fmt.Fprintf(s.out, "-- %s --\n", name)
	fmt.Fprintln(s.out, string(bar))
}
