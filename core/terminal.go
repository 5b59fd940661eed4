package core

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/mattn/go-isatty"
)

// ErrInterrupt is returned by ReadLine when the user interrupts editing.
var ErrInterrupt = readline.ErrInterrupt

// Terminal is where the shell reads command lines from and writes its
// notices to.
type Terminal interface {
	io.Writer

	// ReadLine prints the prompt and reads a single line without its
	// terminator. It returns io.EOF once input is exhausted.
	ReadLine(prompt string) (string, error)
	Close() error
}

// IsInteractive returns true if the shell's stdin is a terminal.
func IsInteractive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// truncateLine cuts the line down to max characters.
func truncateLine(line string, max int) string {
	if max <= 0 {
		return line
	}
	if runes := []rune(line); len(runes) > max {
		return string(runes[:max])
	}
	return line
}

type readlineTerminal struct {
	*readline.Instance
	maxLength int
}

var _ Terminal = (*readlineTerminal)(nil)

// NewReadlineTerminal creates an interactive terminal on the process's
// stdio. The terminal is raw while a line is being edited so Ctrl-Z never
// reaches the kernel; onSuspend is called in its place.
func NewReadlineTerminal(maxLength int, onSuspend func()) (Terminal, error) {
	cfg := &readline.Config{
		Stdin:        readline.NewCancelableStdin(os.Stdin),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		HistoryLimit: -1,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			if r == readline.CharCtrlZ {
				if onSuspend != nil {
					onSuspend()
				}
				return r, false
			}
			return r, true
		},
	}

	if err := cfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, err
	}

	return &readlineTerminal{Instance: rl, maxLength: maxLength}, nil
}

func (t *readlineTerminal) ReadLine(prompt string) (string, error) {
	t.SetPrompt(prompt)
	line, err := t.Readline()
	if err != nil {
		return "", err
	}
	return truncateLine(line, t.maxLength), nil
}

type lineTerminal struct {
	in        *bufio.Reader
	out       io.Writer
	maxLength int
}

var _ Terminal = (*lineTerminal)(nil)

// NewLineTerminal creates a terminal that reads plain lines, used when input
// isn't interactive.
func NewLineTerminal(in io.Reader, out io.Writer, maxLength int) Terminal {
	return &lineTerminal{
		in:        bufio.NewReader(in),
		out:       out,
		maxLength: maxLength,
	}
}

func (t *lineTerminal) Write(b []byte) (int, error) {
	return t.out.Write(b)
}

func (t *lineTerminal) ReadLine(prompt string) (string, error) {
	fmt.Fprint(t.out, prompt)

	line, err := t.in.ReadString('\n')
	switch {
	case err == io.EOF && line == "":
		return "", io.EOF
	case err != nil && err != io.EOF:
		return "", err
	}

	line = strings.TrimRight(line, "\r\n")
	return truncateLine(line, t.maxLength), nil
}

func (t *lineTerminal) Close() error {
	return nil
}
