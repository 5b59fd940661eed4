package core

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// handledSignals are delivered to handleSignal instead of their default
// action while the shell runs.
var handledSignals = []os.Signal{unix.SIGINT, unix.SIGCHLD, unix.SIGTSTP}

// startSignalHandlers starts the goroutine that runs the signal handlers.
// Handlers run one at a time, in delivery order.
func (s *Shell) startSignalHandlers() {
	signals := make(chan os.Signal, 16)
	stop := make(chan struct{})

	s.sigMu.Lock()
	s.signals, s.stopSignals = signals, stop
	s.sigMu.Unlock()

	signal.Notify(signals, handledSignals...)

	go func() {
		for {
			select {
			case <-stop:
				return
			case sig := <-signals:
				s.handleSignal(sig)
			}
		}
	}()
}

func (s *Shell) stopSignalHandlers() {
	signals, stop := s.signalChans()
	signal.Stop(signals)
	close(stop)
}

func (s *Shell) signalChans() (chan os.Signal, chan struct{}) {
	s.sigMu.Lock()
	defer s.sigMu.Unlock()
	return s.signals, s.stopSignals
}

// deliver queues sig for the handler goroutine, or runs the handler directly
// if the handlers were never started. Signals delivered after the handlers
// stop are dropped.
func (s *Shell) deliver(sig os.Signal) {
	signals, stop := s.signalChans()
	if signals == nil {
		s.handleSignal(sig)
		return
	}

	select {
	case <-stop:
	default:
		select {
		case signals <- sig:
		case <-stop:
		}
	}
}

// Suspend toggles foreground-only mode as if SIGTSTP had been received.
func (s *Shell) Suspend() {
	s.deliver(unix.SIGTSTP)
}

// nudgeReaper queues a reaper pass without waiting for SIGCHLD. A job that
// exits before it's added to the table is collected this way.
func (s *Shell) nudgeReaper() {
	signals, _ := s.signalChans()
	if signals == nil {
		s.reapJobs()
		return
	}
	select {
	case signals <- unix.SIGCHLD:
	default:
		// A pass is already queued.
	}
}

func (s *Shell) handleSignal(sig os.Signal) {
	switch sig {
	case unix.SIGINT:
		s.interruptForeground(sig)
	case unix.SIGCHLD:
		s.reapJobs()
	case unix.SIGTSTP:
		s.toggleForegroundOnly()
	}
}

// interruptForeground kills the foreground process, if there is one.
func (s *Shell) interruptForeground(sig os.Signal) {
	pid := s.State.Foreground.Pid()
	if !s.State.Foreground.Kill() {
		return
	}

	num := 0
	if sysSig, ok := sig.(syscall.Signal); ok {
		num = int(sysSig)
	}
	fmt.Fprintf(s.Terminal, "terminated by signal %d\n", num)
	s.logEvent(s.Events.RecordInterrupt(pid, num))
}

// reapJobs reports and releases every background job that has terminated.
func (s *Shell) reapJobs() {
	for _, done := range s.Launcher.Reap() {
		fmt.Fprintf(s.Terminal, "background pid %d is done: %s\n", done.Pid, done.Status.Describe())
		s.logEvent(s.Events.RecordBackgroundDone(done.Pid, done.Args, int(done.Status), done.Status.Signaled()))
	}
}

// toggleForegroundOnly flips whether & is honored.
func (s *Shell) toggleForegroundOnly() {
	disabled := s.State.ToggleBackground()
	if disabled {
		fmt.Fprintln(s.Terminal, "Entering foreground-only mode (& is now ignored)")
	} else {
		fmt.Fprintln(s.Terminal, "Exiting foreground-only mode")
	}
	s.logEvent(s.Events.RecordModeToggle(disabled))
}
