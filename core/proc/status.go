package proc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Status is an encoded termination status: the exit code of a process that
// exited, or the number of the signal that killed it.
//
// The encoding doesn't record which of the two happened. 0 and 1 are always
// read as exit codes, anything else as a signal.
type Status int

// Signaled returns true if the status reads as a terminating signal.
func (s Status) Signaled() bool {
	return s != 0 && s != 1
}

// Describe renders the status the way background completions are reported.
func (s Status) Describe() string {
	if s.Signaled() {
		return fmt.Sprintf("terminated by signal %d", int(s))
	}
	return fmt.Sprintf("exit value %d", int(s))
}

// FromWaitStatus encodes a status returned by wait4.
func FromWaitStatus(ws unix.WaitStatus) Status {
	if ws.Signaled() {
		return Status(ws.Signal())
	}
	return Status(ws.ExitStatus())
}
