package logger

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event types.
const (
	TypeCommand         = "command"
	TypeBuiltin         = "builtin"
	TypeForegroundDone  = "foreground_done"
	TypeBackgroundStart = "background_start"
	TypeBackgroundDone  = "background_done"
	TypeSpawnError      = "spawn_error"
	TypeModeToggle      = "mode_toggle"
	TypeInterrupt       = "interrupt"
)

// Common event fields.
const (
	FieldTimestampMicros = "timestamp_micros"
	FieldSessionID       = "session_id"
	FieldType            = "type"
	FieldCommand         = "command"
	FieldPid             = "pid"
	FieldStatus          = "status"
	FieldSignaled        = "signaled"
	FieldError           = "error"
	FieldForegroundOnly  = "foreground_only"
	FieldSignal          = "signal"
)

// LogEntry is a single logged event.
type LogEntry = structpb.Struct

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures shell events.
type Logger struct {
	Record LogRecorder
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format. It's safe for concurrent use.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	var mu sync.Mutex
	return &Logger{
		Record: func(le *LogEntry) error {
			entry, err := protojson.Marshal(le)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewNopLogger creates a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{
		Record: func(*LogEntry) error {
			return nil
		},
	}
}

func (l *Logger) recordLogType(sessionID, eventType string, fields map[string]interface{}) error {
	values := map[string]interface{}{
		FieldTimestampMicros: float64(time.Now().UnixNano() / int64(time.Microsecond)),
		FieldSessionID:       sessionID,
		FieldType:            eventType,
	}
	for k, v := range fields {
		values[k] = v
	}

	le, err := structpb.NewStruct(values)
	if err != nil {
		return err
	}
	return l.Record(le)
}

// NewSession creates a logger with attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	id := rand.New(rand.NewSource(time.Now().UnixNano())).Uint64()
	return &SessionLogger{Logger: l, sessionID: fmt.Sprintf("%d", id)}
}

// SessionLogger logs messages with a shared session ID.
type SessionLogger struct {
	*Logger
	sessionID string
}

// SessionID gets the ID attached to every event.
func (l *SessionLogger) SessionID() string {
	return l.sessionID
}

func (l *SessionLogger) record(eventType string, fields map[string]interface{}) error {
	return l.recordLogType(l.sessionID, eventType, fields)
}

func toList(args []string) []interface{} {
	out := make([]interface{}, len(args))
	for i, arg := range args {
		out[i] = arg
	}
	return out
}

// RecordCommand logs a command line dispatched to an external program.
func (l *SessionLogger) RecordCommand(args []string) error {
	return l.record(TypeCommand, map[string]interface{}{
		FieldCommand: toList(args),
	})
}

// RecordBuiltin logs a command line handled by a builtin.
func (l *SessionLogger) RecordBuiltin(args []string) error {
	return l.record(TypeBuiltin, map[string]interface{}{
		FieldCommand: toList(args),
	})
}

// RecordForegroundDone logs the termination of a foreground process.
func (l *SessionLogger) RecordForegroundDone(pid int, args []string, status int, signaled bool) error {
	return l.record(TypeForegroundDone, map[string]interface{}{
		FieldPid:      float64(pid),
		FieldCommand:  toList(args),
		FieldStatus:   float64(status),
		FieldSignaled: signaled,
	})
}

// RecordBackgroundStart logs a new background job.
func (l *SessionLogger) RecordBackgroundStart(pid int, args []string) error {
	return l.record(TypeBackgroundStart, map[string]interface{}{
		FieldPid:     float64(pid),
		FieldCommand: toList(args),
	})
}

// RecordBackgroundDone logs a reaped background job.
func (l *SessionLogger) RecordBackgroundDone(pid int, args []string, status int, signaled bool) error {
	return l.record(TypeBackgroundDone, map[string]interface{}{
		FieldPid:      float64(pid),
		FieldCommand:  toList(args),
		FieldStatus:   float64(status),
		FieldSignaled: signaled,
	})
}

// RecordSpawnError logs a command that couldn't be started.
func (l *SessionLogger) RecordSpawnError(args []string, err error) error {
	return l.record(TypeSpawnError, map[string]interface{}{
		FieldCommand: toList(args),
		FieldError:   err.Error(),
	})
}

// RecordModeToggle logs a switch into or out of foreground-only mode.
func (l *SessionLogger) RecordModeToggle(foregroundOnly bool) error {
	return l.record(TypeModeToggle, map[string]interface{}{
		FieldForegroundOnly: foregroundOnly,
	})
}

// RecordInterrupt logs the foreground process being killed by an interrupt.
func (l *SessionLogger) RecordInterrupt(pid, signal int) error {
	return l.record(TypeInterrupt, map[string]interface{}{
		FieldPid:    float64(pid),
		FieldSignal: float64(signal),
	})
}
