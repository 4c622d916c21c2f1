package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

var buffer = NewRingBuffer(256)

// Sink persists emitted events. The SQL stores implement it with an events
// table.
type Sink interface {
	Append(ts time.Time, level, name, msg string, fields map[string]interface{}) error
}

var sinkState struct {
	sync.RWMutex
	sink   Sink
	failed bool
}

// SetSink replaces the persistence sink and clears its failure flag. A nil
// sink disables persistence.
func SetSink(s Sink) {
	sinkState.Lock()
	defer sinkState.Unlock()
	sinkState.sink = s
	sinkState.failed = false
}

// GetSink returns the current sink.
func GetSink() Sink {
	sinkState.RLock()
	defer sinkState.RUnlock()
	return sinkState.sink
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit validates, buffers, persists and broadcasts an event and returns its
// JSON form. Sink failures never fail the caller.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	e := Event{
		Timestamp: now.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}
	buffer.Add(e)
	persist(now, e)
	broadcast(e)

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return b, nil
}

// persist appends e to the sink. The first failure after SetSink becomes a
// system.error event; it bypasses the sink so a broken sink cannot recurse.
func persist(ts time.Time, e Event) {
	s := GetSink()
	if s == nil {
		return
	}
	err := s.Append(ts, e.Level, e.Name, e.Message, e.Fields)
	if err == nil {
		return
	}

	sinkState.Lock()
	first := !sinkState.failed
	sinkState.failed = true
	sinkState.Unlock()
	if !first {
		return
	}
	report := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "event sink append failed",
		Fields:    map[string]interface{}{"error": err.Error()},
	}
	buffer.Add(report)
	broadcast(report)
}

// Snapshot returns every buffered event, oldest first.
func Snapshot() []Event {
	return buffer.Snapshot()
}

// Clear empties the event buffer.
func Clear() {
	buffer.Clear()
}
