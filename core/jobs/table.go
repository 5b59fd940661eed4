// Package jobs tracks background processes started by the shell.
package jobs

import (
	"errors"
	"io"
	"os"
	"sync"
)

// DefaultCapacity is the number of background jobs the shell can track.
const DefaultCapacity = 50

// ErrTableFull is returned when every slot in the table is occupied.
var ErrTableFull = errors.New("too many background jobs")

// Record is a single background job.
type Record struct {
	Pid    int
	Active bool

	// Process is the handle the job was started with, it may be nil.
	Process *os.Process
	// Args holds the command line the job was started with.
	Args []string

	// toClose holds resources owned by the job, they're closed on release.
	toClose []io.Closer
}

// NewRecord creates an active record for the process.
func NewRecord(proc *os.Process, args []string, toClose ...io.Closer) *Record {
	return &Record{
		Pid:     proc.Pid,
		Active:  true,
		Process: proc,
		Args:    args,
		toClose: toClose,
	}
}

// release frees the resources held by the record.
func (r *Record) release() error {
	var lastErr error
	for _, c := range r.toClose {
		if err := c.Close(); err != nil {
			lastErr = err
		}
	}
	r.toClose = nil

	if r.Process != nil {
		if err := r.Process.Release(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Table is a fixed size arena of job slots. Slots are filled lowest first and
// a slot is never reused until its record has been released.
//
// Table is safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	slots []*Record
}

// NewTable creates a table with the given number of slots.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{slots: make([]*Record, capacity)}
}

// Cap returns the number of slots in the table.
func (t *Table) Cap() int {
	return len(t.slots)
}

// Len returns the number of occupied slots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, rec := range t.slots {
		if rec != nil {
			n++
		}
	}
	return n
}

// Full returns true if no slot is available.
func (t *Table) Full() bool {
	return t.Len() == t.Cap()
}

// Add stores the record in the first empty slot and returns the slot index.
func (t *Table) Add(rec *Record) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, occupant := range t.slots {
		if occupant == nil {
			t.slots[i] = rec
			return i, nil
		}
	}

	return -1, ErrTableFull
}

// Get returns the record at the slot, or nil if the slot is empty or out of
// range.
func (t *Table) Get(slot int) *Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	if slot < 0 || slot >= len(t.slots) {
		return nil
	}
	return t.slots[slot]
}

// Active returns copies of the occupied records in slot order.
func (t *Table) Active() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Record
	for _, rec := range t.slots {
		if rec != nil {
			out = append(out, Record{Pid: rec.Pid, Active: rec.Active, Args: rec.Args})
		}
	}
	return out
}

// Reap calls done for every occupied slot. Records that done reports as
// finished are marked inactive, released, and their slot is emptied.
//
// done must not block; it's called while the table is locked.
func (t *Table) Reap(done func(rec *Record) bool) []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var reaped []*Record
	for i, rec := range t.slots {
		if rec == nil || !done(rec) {
			continue
		}

		rec.Active = false
		_ = rec.release()
		t.slots[i] = nil
		reaped = append(reaped, rec)
	}
	return reaped
}

// Drain calls each for every occupied slot, then releases the record and
// empties the slot. It returns the number of records drained.
func (t *Table) Drain(each func(rec *Record)) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for i, rec := range t.slots {
		if rec == nil {
			continue
		}
		if each != nil {
			each(rec)
		}
		rec.Active = false
		_ = rec.release()
		t.slots[i] = nil
		n++
	}
	return n
}
