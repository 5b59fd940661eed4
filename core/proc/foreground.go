package proc

import (
	"os"
	"sync"
)

// Foreground tracks the process the shell is currently blocked on.
type Foreground struct {
	mu   sync.Mutex
	proc *os.Process
}

// Set records proc as the current foreground process.
func (f *Foreground) Set(proc *os.Process) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proc = proc
}

// Clear forgets the current foreground process.
func (f *Foreground) Clear() {
	f.Set(nil)
}

// Pid returns the pid of the foreground process, or 0 if there isn't one.
func (f *Foreground) Pid() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.proc == nil {
		return 0
	}
	return f.proc.Pid
}

// Kill sends SIGKILL to the foreground process. It returns false if no
// foreground process was recorded.
func (f *Foreground) Kill() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.proc == nil {
		return false
	}
	// The process may have exited already, that's fine.
	_ = f.proc.Kill()
	return true
}
