// Package prompt implements the line-based terminal dialogs used by the
// interactive workflow.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Style selects how a message is rendered.
type Style int

const (
	Plain Style = iota
	Info
	Success
	Warning
	Error
)

// Terminal reads answers line by line from in and writes prompts to out.
type Terminal struct {
	in     *bufio.Reader
	out    io.Writer
	styles map[Style]*color.Color
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithColor forces colour output on or off.
func WithColor(enabled bool) Option {
	return func(t *Terminal) {
		for _, c := range t.styles {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// NewTerminal creates a Terminal. Colour is enabled only when out is a
// terminal, unless overridden with WithColor.
func NewTerminal(in io.Reader, out io.Writer, opts ...Option) *Terminal {
	t := &Terminal{
		in:  bufio.NewReader(in),
		out: out,
		styles: map[Style]*color.Color{
			Info:    color.New(color.FgCyan),
			Success: color.New(color.FgGreen),
			Warning: color.New(color.FgYellow),
			Error:   color.New(color.FgRed, color.Bold),
		},
	}
	WithColor(isTerminal(out))(t)
	for _, o := range opts {
		o(t)
	}
	return t
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Say writes a styled line.
func (t *Terminal) Say(style Style, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c, ok := t.styles[style]; ok {
		msg = c.Sprint(msg)
	}
	fmt.Fprintln(t.out, msg)
}

// Select shows a numbered list and returns the index of the chosen item.
// Invalid answers re-prompt. io.EOF is returned when input ends.
func (t *Terminal) Select(question string, choices []string) (int, error) {
	if len(choices) == 0 {
		return 0, errors.New("prompt: no choices")
	}
	for {
		fmt.Fprintf(t.out, "\n%s\n", question)
		for i, c := range choices {
			fmt.Fprintf(t.out, "  %d) %s\n", i+1, c)
		}
		fmt.Fprintf(t.out, "Enter choice [1-%d]: ", len(choices))

		line, err := t.readLine()
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(line)
		if convErr == nil && n >= 1 && n <= len(choices) {
			return n - 1, nil
		}
		t.Say(Error, "Invalid choice %q", line)
	}
}

// Confirm asks a yes/no question. An empty answer means no.
func (t *Terminal) Confirm(question string) (bool, error) {
	for {
		fmt.Fprintf(t.out, "%s [y/N]: ", question)
		line, err := t.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		t.Say(Error, "Please answer y or n")
	}
}

// Input reads one line of free text.
func (t *Terminal) Input(question string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", question)
	return t.readLine()
}

// Pause waits for Enter.
func (t *Terminal) Pause() error {
	fmt.Fprint(t.out, "\nPress Enter to continue...")
	_, err := t.readLine()
	return err
}

// readLine returns the next trimmed line. A final line without a newline
// is still returned; io.EOF is reported only when nothing was read.
func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
