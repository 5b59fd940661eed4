package core

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iamkelseyhelms/smallsh/core/config"
	"github.com/iamkelseyhelms/smallsh/core/logger"
	"github.com/iamkelseyhelms/smallsh/core/proc"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

type fakeTerminal struct {
	mu    sync.Mutex
	lines []string
	out   bytes.Buffer
}

var _ Terminal = (*fakeTerminal)(nil)

func (f *fakeTerminal) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(b)
}

func (f *fakeTerminal) ReadLine(prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.out.WriteString(prompt)
	if len(f.lines) == 0 {
		return "", io.EOF
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, nil
}

func (f *fakeTerminal) Close() error {
	return nil
}

func (f *fakeTerminal) Output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

func newTestShell(t *testing.T, events *logger.SessionLogger, lines ...string) (*Shell, *fakeTerminal) {
	t.Helper()

	stderr, err := os.CreateTemp(t.TempDir(), "stderr")
	assert.Nil(t, err)

	term := &fakeTerminal{lines: lines}
	sh := NewShell(config.Default(), term, events)
	sh.Stderr = stderr
	sh.Launcher.Stdin = nil
	sh.Launcher.Stdout = io.Discard
	sh.Launcher.Stderr = stderr

	t.Cleanup(func() {
		sh.Launcher.KillAll()
		stderr.Close()
	})

	return sh, term
}

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "script.sh")
	assert.Nil(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestShell_RunLine_ignored(t *testing.T) {
	sh, term := newTestShell(t, nil)

	for _, line := range []string{"", "   ", "# a comment", "#"} {
		sh.RunLine(line)
	}

	assert.Empty(t, term.Output())
	assert.Equal(t, proc.Status(0), sh.State.LastStatus())
}

func TestShell_status(t *testing.T) {
	sh, term := newTestShell(t, nil)

	sh.RunLine(writeScript(t, "exit 7"))
	sh.RunLine("status")
	assert.Equal(t, "exit value 7\n", term.Output())

	sh.RunLine("true")
	sh.RunLine("status")
	assert.Equal(t, "exit value 7\nexit value 0\n", term.Output())
}

func TestShell_statusAfterSignal(t *testing.T) {
	sh, term := newTestShell(t, nil)

	sh.RunLine(writeScript(t, "kill -TERM $$"))
	sh.RunLine("status")

	assert.Equal(t, "exit value 15\n", term.Output())
	assert.True(t, sh.State.LastStatus().Signaled())
}

func TestShell_builtinsKeepStatus(t *testing.T) {
	sh, term := newTestShell(t, nil)

	sh.RunLine("false")
	sh.RunLine("jobs > ignored.txt &")
	sh.RunLine("status")

	assert.Equal(t, "exit value 1\n", term.Output())
}

func TestShell_commandNotFound(t *testing.T) {
	buf := &bytes.Buffer{}
	sh, term := newTestShell(t, logger.NewJsonLinesLogRecorder(buf).NewSession())

	sh.RunLine("smallsh-no-such-command")
	sh.RunLine("status")
	assert.Equal(t, "exit value 1\n", term.Output())
	assert.False(t, sh.Quit)

	report := logger.NewReport()
	assert.Nil(t, logger.ReadJSONLinesLog(buf, report.Update))
	assert.Equal(t, 1, report.EventTypes.Get(logger.TypeCommand))
	assert.Equal(t, 1, report.EventTypes.Get(logger.TypeBuiltin))
	assert.Equal(t, 1, report.EventTypes.Get(logger.TypeSpawnError))
	assert.Equal(t, 0, report.EventTypes.Get(logger.TypeForegroundDone))
}

func TestShell_background(t *testing.T) {
	sh, term := newTestShell(t, nil)

	sh.RunLine("true &")
	assert.Regexp(t, `^background pid is \d+\n`, term.Output())

	assert.Eventually(t, func() bool {
		sh.handleSignal(unix.SIGCHLD)
		return strings.Contains(term.Output(), "is done: exit value 0\n")
	}, 5*time.Second, 10*time.Millisecond)

	// Spurious notifications don't repeat the report.
	sh.handleSignal(unix.SIGCHLD)
	assert.Equal(t, 1, strings.Count(term.Output(), "is done"))
	assert.Equal(t, 0, sh.State.Jobs.Len())
}

func TestShell_backgroundSignaled(t *testing.T) {
	sh, term := newTestShell(t, nil)

	sh.RunLine("sleep 30 &")
	jobs := sh.State.Jobs.Active()
	if !assert.Len(t, jobs, 1) {
		return
	}
	assert.Nil(t, unix.Kill(jobs[0].Pid, unix.SIGTERM))

	want := fmt.Sprintf("background pid %d is done: terminated by signal 15\n", jobs[0].Pid)
	assert.Eventually(t, func() bool {
		sh.handleSignal(unix.SIGCHLD)
		return strings.Contains(term.Output(), want)
	}, 5*time.Second, 10*time.Millisecond)

	// Background terminations leave the last status alone.
	assert.Equal(t, proc.Status(0), sh.State.LastStatus())
}

func TestShell_manyBackgroundJobs(t *testing.T) {
	sh, term := newTestShell(t, nil)

	const jobs = 8
	for n := 0; n < jobs; n++ {
		sh.RunLine(writeScript(t, fmt.Sprintf("exit %d", n)) + " &")
	}

	var pids []int
	for _, m := range regexp.MustCompile(`background pid is (\d+)\n`).FindAllStringSubmatch(term.Output(), -1) {
		pid, err := strconv.Atoi(m[1])
		assert.Nil(t, err)
		pids = append(pids, pid)
	}
	assert.Len(t, pids, jobs)

	assert.Eventually(t, func() bool {
		sh.handleSignal(unix.SIGCHLD)
		return sh.State.Jobs.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	out := term.Output()
	assert.Equal(t, jobs, strings.Count(out, " is done: "))
	for _, pid := range pids {
		assert.Equal(t, 1, strings.Count(out, fmt.Sprintf("background pid %d is done: ", pid)), "pid %d", pid)
	}
	assert.Contains(t, out, "is done: exit value 1\n")
	assert.Contains(t, out, "is done: terminated by signal 7\n")
}

func TestShell_foregroundStopResumed(t *testing.T) {
	sh, term := newTestShell(t, nil)

	sh.RunLine(writeScript(t, "kill -STOP $$\nexit 6"))
	sh.RunLine("status")

	assert.Equal(t, "exit value 6\n", term.Output())
}

func TestShell_suspendAfterStop(t *testing.T) {
	sh, _ := newTestShell(t, nil)

	sh.startSignalHandlers()
	sh.stopSignalHandlers()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// More than the handler queue holds.
		for i := 0; i < 64; i++ {
			sh.Suspend()
		}
		sh.nudgeReaper()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Suspend blocked after the signal handlers stopped")
	}
}

func TestShell_foregroundOnlyMode(t *testing.T) {
	sh, term := newTestShell(t, nil)

	sh.handleSignal(unix.SIGTSTP)
	assert.Equal(t, "Entering foreground-only mode (& is now ignored)\n", term.Output())
	assert.True(t, sh.State.BackgroundDisabled())

	sh.RunLine("true &")
	assert.NotContains(t, term.Output(), "background pid")
	assert.Equal(t, 0, sh.State.Jobs.Len())

	sh.Suspend()
	assert.Contains(t, term.Output(), "Exiting foreground-only mode\n")
	assert.False(t, sh.State.BackgroundDisabled())
}

func TestShell_interrupt(t *testing.T) {
	sh, term := newTestShell(t, nil)

	t.Run("no foreground process", func(t *testing.T) {
		sh.handleSignal(unix.SIGINT)
		assert.Empty(t, term.Output())
	})

	t.Run("foreground process", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			sh.RunLine("sleep 30")
		}()

		assert.Eventually(t, func() bool {
			return sh.State.Foreground.Pid() != 0
		}, 5*time.Second, 10*time.Millisecond)

		sh.handleSignal(unix.SIGINT)
		<-done

		assert.Equal(t, "terminated by signal 2\n", term.Output())
		assert.Equal(t, proc.Status(9), sh.State.LastStatus())
		assert.Equal(t, 0, sh.State.Foreground.Pid())
	})
}

func TestShell_exitKillsJobs(t *testing.T) {
	sh, _ := newTestShell(t, nil)

	sh.RunLine("sleep 30 &")
	sh.RunLine("sleep 30 &")
	assert.Equal(t, 2, sh.State.Jobs.Len())

	sh.RunLine("exit")
	assert.True(t, sh.Quit)
	assert.Equal(t, 0, sh.exitCode)
	assert.Equal(t, 0, sh.State.Jobs.Len())
}

func TestShell_Run(t *testing.T) {
	t.Run("exit", func(t *testing.T) {
		sh, term := newTestShell(t, nil, "false", "status", "exit", "status")

		assert.Equal(t, 0, sh.Run())
		assert.Equal(t, ": : exit value 1\n: ", term.Output())
	})

	t.Run("end of input", func(t *testing.T) {
		sh, term := newTestShell(t, nil, "sleep 30 &")

		assert.Equal(t, 0, sh.Run())
		assert.True(t, sh.Quit)
		assert.Equal(t, 0, sh.State.Jobs.Len())
		assert.Contains(t, term.Output(), "background pid is")
	})
}

func TestCd(t *testing.T) {
	wd, err := os.Getwd()
	assert.Nil(t, err)
	t.Cleanup(func() { os.Chdir(wd) })

	sh, _ := newTestShell(t, nil)

	t.Run("path", func(t *testing.T) {
		dir, err := filepath.EvalSymlinks(t.TempDir())
		assert.Nil(t, err)

		assert.Equal(t, 0, Cd(sh, []string{"cd", dir}))
		got, err := os.Getwd()
		assert.Nil(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("home", func(t *testing.T) {
		home, err := filepath.EvalSymlinks(t.TempDir())
		assert.Nil(t, err)
		t.Setenv(EnvHome, home)

		assert.Equal(t, 0, Cd(sh, []string{"cd"}))
		got, err := os.Getwd()
		assert.Nil(t, err)
		assert.Equal(t, home, got)
	})

	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, 1, Cd(sh, []string{"cd", filepath.Join(t.TempDir(), "missing")}))
	})
}

func TestJobs(t *testing.T) {
	sh, term := newTestShell(t, nil)

	sh.RunLine("sleep 30 &")
	jobs := sh.State.Jobs.Active()
	if !assert.Len(t, jobs, 1) {
		return
	}
	pid := jobs[0].Pid

	start := len(term.Output())
	assert.Equal(t, 0, Jobs(sh, []string{"jobs"}))
	assert.Equal(t, fmt.Sprintf("%d\tsleep 30\n", pid), term.Output()[start:])

	start = len(term.Output())
	assert.Equal(t, 0, Jobs(sh, []string{"jobs", "-p"}))
	assert.Equal(t, fmt.Sprintf("%d\n", pid), term.Output()[start:])

	start = len(term.Output())
	assert.Equal(t, 1, Jobs(sh, []string{"jobs", "-x"}))
	assert.Contains(t, term.Output()[start:], "usage: jobs [-p]")
}

func TestHelp(t *testing.T) {
	sh, term := newTestShell(t, nil)

	assert.Equal(t, 0, Help(sh, []string{"help"}))
	for _, name := range []string{"cd", "exit", "help", "jobs", "status"} {
		assert.Contains(t, term.Output(), "\n"+name+"\n")
	}
}

func TestBuiltinNames(t *testing.T) {
	assert.Equal(t, []string{"cd", "exit", "help", "jobs", "status"}, BuiltinNames())
}
