package logger

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var rawEntry json.RawMessage
		if err := decoder.Decode(&rawEntry); err != nil {
			return err
		}

		var logEntry LogEntry
		if err := protojson.Unmarshal(rawEntry, &logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

func stringField(le *LogEntry, name string) string {
	return le.GetFields()[name].GetStringValue()
}

func intField(le *LogEntry, name string) int {
	return int(le.GetFields()[name].GetNumberValue())
}

func boolField(le *LogEntry, name string) bool {
	return le.GetFields()[name].GetBoolValue()
}

func commandField(le *LogEntry) []string {
	var out []string
	for _, v := range le.GetFields()[FieldCommand].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		SpawnErrors: NewPathCounter("command", "error"),
	}
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	EventTypes     StrCounter `json:"event_types"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	CommandNames StrCounter   `json:"command_names"`
	BuiltinNames StrCounter   `json:"builtin_names"`
	Foreground   StatusReport `json:"foreground_report"`
	Background   StatusReport `json:"background_report"`
	SpawnErrors  *PathCounter `json:"spawn_errors"`

	ModeToggles int `json:"mode_toggles"`
	Interrupts  int `json:"interrupts"`
}

// Update adds the entry to the report.
func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	r.Sessions.Increment(stringField(le, FieldSessionID))

	eventType := stringField(le, FieldType)
	r.EventTypes.Increment(eventType)

	switch eventType {
	case TypeCommand:
		if cmd := commandField(le); len(cmd) > 0 {
			r.CommandNames.Increment(cmd[0])
		}
	case TypeBuiltin:
		if cmd := commandField(le); len(cmd) > 0 {
			r.BuiltinNames.Increment(cmd[0])
		}
	case TypeForegroundDone:
		r.Foreground.update(le)
	case TypeBackgroundStart:
		r.Background.Started++
	case TypeBackgroundDone:
		r.Background.update(le)
	case TypeSpawnError:
		if r.SpawnErrors == nil {
			r.SpawnErrors = NewPathCounter("command", "error")
		}
		r.SpawnErrors.Increment(strings.Join(commandField(le), " "), stringField(le, FieldError))
	case TypeModeToggle:
		r.ModeToggles++
	case TypeInterrupt:
		r.Interrupts++
	default:
		r.InvalidEntries.Increment(eventType)
	}
}

// StatusReport counts process terminations.
type StatusReport struct {
	Started   int        `json:"started,omitempty"`
	Completed int        `json:"completed"`
	ExitCodes StrCounter `json:"exit_values"`
	Signals   StrCounter `json:"terminating_signals"`
}

func (r *StatusReport) update(le *LogEntry) {
	r.Completed++

	status := le.GetFields()[FieldStatus]
	value := "unknown"
	if status != nil {
		value = strconv.Itoa(intField(le, FieldStatus))
	}

	if boolField(le, FieldSignaled) {
		r.Signals.Increment(value)
	} else {
		r.ExitCodes.Increment(value)
	}
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for the key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// Len returns the number of distinct keys seen.
func (s *StrCounter) Len() int {
	return len(s.internal)
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of string tuples seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// Get returns the count for the key.
func (ctr *PathCounter) Get(vals ...string) int {
	return ctr.internal[toKey(vals...)]
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
