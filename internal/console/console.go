// Package console implements the colorized startup/status printer the CLI
// layer uses: a small set of styled line-printers (success/warning/error/
// info) built on github.com/charmbracelet/lipgloss.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// Printer is the CLI's status output surface.
type Printer struct {
	out io.Writer
	err io.Writer
}

// New builds a Printer writing to stdout/stderr.
func New() *Printer {
	return &Printer{out: os.Stdout, err: os.Stderr}
}

func (p *Printer) Success(msg string) { fmt.Fprintln(p.out, successStyle.Render(msg)) }
func (p *Printer) Warning(msg string) { fmt.Fprintln(p.out, warningStyle.Render(msg)) }
func (p *Printer) Info(msg string)    { fmt.Fprintln(p.out, infoStyle.Render(msg)) }
func (p *Printer) Error(msg string)   { fmt.Fprintln(p.err, errorStyle.Render(msg)) }
func (p *Printer) Header(msg string)  { fmt.Fprintln(p.out, headerStyle.Render(msg)) }
func (p *Printer) Println(msg string) { fmt.Fprintln(p.out, msg) }

// SetTitle writes an OSC 0 escape sequence to set the terminal window
// title. No ecosystem library wraps this; it is a three-line stdlib
// write, justified in DESIGN.md rather than reached for via lipgloss
// (which styles text, not window chrome).
func SetTitle(title string) {
	fmt.Fprintf(os.Stdout, "\033]0;%s\007", title)
}
