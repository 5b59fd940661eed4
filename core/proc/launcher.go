// Package proc starts external programs for the shell and collects their
// termination status.
package proc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"syscall"

	"github.com/iamkelseyhelms/smallsh/core/jobs"
	"github.com/iamkelseyhelms/smallsh/core/shell"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// ErrFatal is returned when a process couldn't be created for reasons other
// than a bad program image. The shell can't recover from these.
var ErrFatal = errors.New("cannot create process")

// Result is the outcome of a launch.
type Result struct {
	// Pid of the started process, 0 if none was started.
	Pid int
	// Status of a foreground process, or of a launch that failed before the
	// process could run.
	Status Status
	// Background is set if the process was left running as a job.
	Background bool
	// Err is set if the command couldn't be started.
	Err error
}

// Completion is a background job that has terminated.
type Completion struct {
	Pid    int
	Args   []string
	Status Status
}

// Launcher starts external programs.
type Launcher struct {
	// Fs is used to open redirection targets.
	Fs afero.Fs

	// Stdio inherited by foreground processes. Stderr also receives launch
	// diagnostics.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Jobs       *jobs.Table
	Foreground *Foreground
}

// NewLauncher creates a launcher attached to the process's own stdio.
func NewLauncher(table *jobs.Table, fg *Foreground) *Launcher {
	return &Launcher{
		Fs:         afero.NewOsFs(),
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Jobs:       table,
		Foreground: fg,
	}
}

type closerList []io.Closer

func (cl closerList) Close() error {
	var lastErr error
	for _, c := range cl {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Launch runs the command. Foreground commands are waited on, background
// commands are added to the job table.
//
// Failures that only affect the command are reported on Stderr and produce
// a status of 1. A non-nil error wraps ErrFatal.
func (l *Launcher) Launch(cmd shell.Command) (Result, error) {
	failed := func(err error) (Result, error) {
		return Result{Status: 1, Background: cmd.Background, Err: err}, nil
	}
	if cmd.Empty() {
		return Result{}, nil
	}

	if cmd.Background && l.Jobs.Full() {
		fmt.Fprintf(l.Stderr, "%s: %v\n", cmd.Name(), jobs.ErrTableFull)
		return failed(jobs.ErrTableFull)
	}

	var toClose closerList

	// Background jobs get the null device unless told otherwise so they
	// can't read from or write to the terminal.
	var stdin io.Reader
	var stdout io.Writer
	if !cmd.Background {
		stdin, stdout = l.Stdin, l.Stdout
	}

	if cmd.OutputFile != "" {
		fd, err := l.Fs.OpenFile(cmd.OutputFile, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0777)
		if err != nil {
			fmt.Fprintf(l.Stderr, "cannot open %s for output\n", cmd.OutputFile)
			return failed(err)
		}
		toClose = append(toClose, fd)
		stdout = fd
	}

	if cmd.InputFile != "" {
		fd, err := l.Fs.Open(cmd.InputFile)
		if err != nil {
			toClose.Close()
			fmt.Fprintf(l.Stderr, "cannot open %s for input\n", cmd.InputFile)
			return failed(err)
		}
		toClose = append(toClose, fd)
		stdin = fd
	}

	c := exec.Command(cmd.Args[0], cmd.Args[1:]...)
	c.Stdin = stdin
	c.Stdout = stdout
	c.Stderr = l.Stderr
	if cmd.Background {
		// Jobs get their own process group so signals generated by the
		// terminal only reach the foreground.
		c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	if err := c.Start(); err != nil {
		toClose.Close()
		if isImageError(err) {
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(l.Stderr, "%s: no such file or directory\n", cmd.Name())
			} else {
				fmt.Fprintf(l.Stderr, "%s: %v\n", cmd.Name(), err)
			}
			return failed(err)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	if cmd.Background {
		return l.startJob(c, cmd, toClose)
	}

	l.Foreground.Set(c.Process)
	status, err := waitForeground(c.Process.Pid)
	l.Foreground.Clear()

	// The process has been collected already, Wait only releases the
	// resources held by c.
	_ = c.Wait()
	toClose.Close()

	if err != nil {
		fmt.Fprintf(l.Stderr, "%s: %v\n", cmd.Name(), err)
	}

	return Result{Pid: c.Process.Pid, Status: status}, nil
}

// waitForeground blocks until the process terminates. A terminal stop
// (Ctrl-Z) reaches the foreground process too; it's resumed right away
// since the shell has no way to bring it back later.
func waitForeground(pid int) (Status, error) {
	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(pid, &ws, unix.WUNTRACED, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return 0, err
		case ws.Stopped():
			_ = unix.Kill(pid, unix.SIGCONT)
			continue
		}

		return FromWaitStatus(ws), nil
	}
}

func (l *Launcher) startJob(c *exec.Cmd, cmd shell.Command, toClose closerList) (Result, error) {
	rec := jobs.NewRecord(c.Process, cmd.Args, toClose)
	if _, err := l.Jobs.Add(rec); err != nil {
		_ = c.Process.Kill()
		_ = c.Wait()
		toClose.Close()
		fmt.Fprintf(l.Stderr, "%s: %v\n", cmd.Name(), err)
		return Result{Status: 1, Background: true, Err: err}, nil
	}

	return Result{Pid: rec.Pid, Background: true}, nil
}

// isImageError returns true if the program couldn't be found or executed,
// as opposed to the system being unable to create a process.
func isImageError(err error) bool {
	switch {
	case errors.Is(err, exec.ErrNotFound),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, unix.ENOEXEC),
		errors.Is(err, unix.EISDIR),
		errors.Is(err, unix.ENOTDIR),
		errors.Is(err, unix.ENAMETOOLONG),
		errors.Is(err, unix.ELOOP):
		return true
	default:
		return false
	}
}

// Reap collects every background job that has terminated. It never blocks
// and is safe to call when nothing has changed.
func (l *Launcher) Reap() []Completion {
	var out []Completion

	l.Jobs.Reap(func(rec *jobs.Record) bool {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(rec.Pid, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			return false
		case err != nil:
			// ECHILD, the process is gone and its status is lost. Free the
			// slot without reporting a status that never happened.
			log.Printf("Lost status of background pid %d: %v", rec.Pid, err)
			return true
		case pid <= 0:
			return false // still running
		}

		out = append(out, Completion{Pid: rec.Pid, Args: rec.Args, Status: FromWaitStatus(ws)})
		return true
	})

	return out
}

// KillAll kills and collects every background job, leaving the job table
// empty. It returns the number of jobs killed.
func (l *Launcher) KillAll() int {
	return l.Jobs.Drain(func(rec *jobs.Record) {
		if rec.Process != nil {
			_ = rec.Process.Kill()
		} else {
			_ = unix.Kill(rec.Pid, unix.SIGKILL)
		}

		var ws unix.WaitStatus
		for {
			if _, err := unix.Wait4(rec.Pid, &ws, 0, nil); err != unix.EINTR {
				break
			}
		}
	})
}
