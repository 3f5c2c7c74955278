// Package console prints user-facing messages. Structured logs go through
// slog instead; the console is what a person running nxpatch reads.
package console

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Printer writes plain, warning, success and error lines to a writer
type Printer struct {
	w       io.Writer
	warn    *color.Color
	success *color.Color
	fail    *color.Color
}

// New creates a Printer. Colors are disabled when noColor is set.
func New(w io.Writer, noColor bool) *Printer {
	p := &Printer{
		w:       w,
		warn:    color.New(color.FgYellow),
		success: color.New(color.FgGreen, color.Bold),
		fail:    color.New(color.FgRed),
	}
	if noColor {
		p.warn.DisableColor()
		p.success.DisableColor()
		p.fail.DisableColor()
	}
	return p
}

// Infof prints a plain line
func (p *Printer) Infof(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

// Warnf prints a highlighted warning line
func (p *Printer) Warnf(format string, args ...any) {
	_, _ = p.warn.Fprintf(p.w, format+"\n", args...)
}

// Successf prints a success line
func (p *Printer) Successf(format string, args ...any) {
	_, _ = p.success.Fprintf(p.w, format+"\n", args...)
}

// Errorf prints an error line
func (p *Printer) Errorf(format string, args ...any) {
	_, _ = p.fail.Fprintf(p.w, format+"\n", args...)
}
