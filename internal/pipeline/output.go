package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Target selects one of the two output buffers.
type Target int

const (
	// Stdout is the standard-output buffer.
	Stdout Target = iota
	// Stderr is the standard-error buffer.
	Stderr
)

// Output accumulates rendered text fragments in two append-only buffers.
// Each target independently either buffers (the default) or streams
// fragments immediately to its console writer.
type Output struct {
	stdout []string
	stderr []string

	// StreamStdout / StreamStderr bypass the buffers and write fragments
	// to the console as they arrive. Diagnostics stream by default.
	StreamStdout bool
	StreamStderr bool

	consoleOut io.Writer
	consoleErr io.Writer
}

// NewOutput creates buffers wired to the process's standard streams.
func NewOutput() *Output {
	return &Output{
		StreamStderr: true,
		consoleOut:   os.Stdout,
		consoleErr:   os.Stderr,
	}
}

// NewOutputWriters creates buffers wired to the given writers, for tests.
func NewOutputWriters(stdout, stderr io.Writer) *Output {
	return &Output{
		StreamStderr: true,
		consoleOut:   stdout,
		consoleErr:   stderr,
	}
}

// Send records text plus a newline terminator into the target buffer.
func (o *Output) Send(target Target, text string) {
	o.SendSuffix(target, text, "\n")
}

// Sendf records a formatted fragment into the target buffer.
func (o *Output) Sendf(target Target, format string, args ...any) {
	o.SendSuffix(target, fmt.Sprintf(format, args...), "\n")
}

// SendSuffix records text plus an explicit terminator into the target buffer,
// or streams it immediately when the target's stream switch is set.
func (o *Output) SendSuffix(target Target, text, suffix string) {
	fragment := text + suffix

	switch target {
	case Stdout:
		if o.StreamStdout {
			_, _ = io.WriteString(o.consoleOut, fragment)
			return
		}
		o.stdout = append(o.stdout, fragment)
	case Stderr:
		if o.StreamStderr {
			_, _ = io.WriteString(o.consoleErr, fragment)
			return
		}
		o.stderr = append(o.stderr, fragment)
	}
}

// Len returns the number of buffered fragments for a target.
func (o *Output) Len(target Target) int {
	if target == Stdout {
		return len(o.stdout)
	}
	return len(o.stderr)
}

// Render drains the target buffer into the named file, or the corresponding
// console stream when filename is empty. Draining is destructive: the buffer
// is empty afterward, and a second render yields no output.
func (o *Output) Render(filename string, target Target) error {
	var text string
	switch target {
	case Stdout:
		text = strings.Join(o.stdout, "")
		o.stdout = nil
	case Stderr:
		text = strings.Join(o.stderr, "")
		o.stderr = nil
	}

	if filename == "" {
		w := o.consoleOut
		if target == Stderr {
			w = o.consoleErr
		}
		_, err := io.WriteString(w, text)
		return err
	}

	if err := os.WriteFile(filename, []byte(text), 0o644); err != nil { //nolint:gosec // G306: report output
		return fmt.Errorf("writing output to %s: %w", filename, err)
	}
	return nil
}
