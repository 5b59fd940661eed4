package core

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/iamkelseyhelms/smallsh/core/config"
	"github.com/iamkelseyhelms/smallsh/core/logger"
	"github.com/iamkelseyhelms/smallsh/core/proc"
	"github.com/iamkelseyhelms/smallsh/core/shell"
	"github.com/mattn/go-isatty"
)

const (
	EnvHome = "HOME"
)

type Shell struct {
	Config   *config.Configuration
	Terminal Terminal
	Launcher *proc.Launcher
	State    *State
	Events   *logger.SessionLogger

	// Stderr receives the shell's own diagnostics.
	Stderr io.Writer

	pid      int
	errColor *color.Color

	sigMu       sync.Mutex
	signals     chan os.Signal
	stopSignals chan struct{}

	// Set to true to quit the shell
	Quit     bool
	exitCode int
}

// NewShell creates a shell reading from the terminal and running programs
// on the process's own stdio.
func NewShell(cfg *config.Configuration, term Terminal, events *logger.SessionLogger) *Shell {
	if events == nil {
		events = logger.NewNopLogger().NewSession()
	}

	state := NewState(cfg.MaxJobs)

	return &Shell{
		Config:   cfg,
		Terminal: term,
		Launcher: proc.NewLauncher(state.Jobs, state.Foreground),
		State:    state,
		Events:   events,
		Stderr:   os.Stderr,
		pid:      os.Getpid(),
		errColor: newColorPrinter(cfg.Color, os.Stderr),
	}
}

func newColorPrinter(mode string, w io.Writer) *color.Color {
	c := color.New(color.FgRed)

	switch mode {
	case config.ColorAlways:
		c.EnableColor()
	case config.ColorNever:
		c.DisableColor()
	default:
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return c
}

// Pid returns the process id substituted for $$.
func (s *Shell) Pid() int {
	return s.pid
}

// Run reads and executes commands until the shell exits, returning the
// shell's exit code.
func (s *Shell) Run() int {
	s.startSignalHandlers()
	defer s.stopSignalHandlers()

	for !s.Quit {
		line, err := s.Terminal.ReadLine(s.Config.Prompt)

		switch {
		case err == io.EOF:
			s.exit(0) // Input closed, quit.

		case errors.Is(err, ErrInterrupt):
			// Interrupt clears line.
			continue

		case err != nil:
			log.Printf("Error readline: %v", err)
			continue

		default:
			s.RunLine(line)
		}
	}

	return s.exitCode
}

// RunLine parses and executes a single command line.
func (s *Shell) RunLine(line string) {
	cmd := shell.Parse(line, shell.Options{
		Pid:                s.pid,
		BackgroundDisabled: s.State.BackgroundDisabled(),
	})
	if cmd.Empty() {
		return
	}

	if builtin, ok := AllBuiltins[cmd.Name()]; ok {
		s.logEvent(s.Events.RecordBuiltin(cmd.Args))
		builtin.Main(s, cmd.Args)
		return
	}

	s.logEvent(s.Events.RecordCommand(cmd.Args))
	s.launch(cmd)
}

func (s *Shell) launch(cmd shell.Command) {
	res, err := s.Launcher.Launch(cmd)
	if err != nil {
		s.diagnostic("smallsh: %v\n", err)
		s.logEvent(s.Events.RecordSpawnError(cmd.Args, err))
		s.exit(1)
		return
	}

	if res.Err != nil {
		s.logEvent(s.Events.RecordSpawnError(cmd.Args, res.Err))
	}

	switch {
	case res.Background && res.Pid != 0:
		fmt.Fprintf(s.Terminal, "background pid is %d\n", res.Pid)
		s.logEvent(s.Events.RecordBackgroundStart(res.Pid, cmd.Args))
		s.nudgeReaper()

	case !res.Background:
		s.State.SetLastStatus(res.Status)
		if res.Pid != 0 {
			s.logEvent(s.Events.RecordForegroundDone(res.Pid, cmd.Args, int(res.Status), res.Status.Signaled()))
		}
	}
}

// exit kills every background job and stops the command loop.
func (s *Shell) exit(code int) {
	s.Launcher.KillAll()
	s.exitCode = code
	s.Quit = true
}

// Close releases the terminal.
func (s *Shell) Close() error {
	return s.Terminal.Close()
}

func (s *Shell) diagnostic(format string, a ...interface{}) {
	s.errColor.Fprintf(s.Stderr, format, a...)
}

func (s *Shell) logEvent(err error) {
	if err != nil {
		log.Printf("Error recording event: %v", err)
	}
}
