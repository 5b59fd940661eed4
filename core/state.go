package core

import (
	"sync"

	"github.com/iamkelseyhelms/smallsh/core/jobs"
	"github.com/iamkelseyhelms/smallsh/core/proc"
)

// State is the shell state shared between the command loop and the signal
// handlers.
type State struct {
	mu                 sync.Mutex
	lastStatus         proc.Status
	backgroundDisabled bool

	Foreground *proc.Foreground
	Jobs       *jobs.Table
}

// NewState creates a state with a job table of the given capacity.
func NewState(maxJobs int) *State {
	return &State{
		Foreground: &proc.Foreground{},
		Jobs:       jobs.NewTable(maxJobs),
	}
}

// LastStatus returns the status of the last foreground command.
func (st *State) LastStatus() proc.Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastStatus
}

// SetLastStatus records the status of a foreground command.
func (st *State) SetLastStatus(status proc.Status) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastStatus = status
}

// BackgroundDisabled returns true if the shell is in foreground-only mode.
func (st *State) BackgroundDisabled() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.backgroundDisabled
}

// ToggleBackground flips foreground-only mode and returns the new value.
func (st *State) ToggleBackground() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.backgroundDisabled = !st.backgroundDisabled
	return st.backgroundDisabled
}
