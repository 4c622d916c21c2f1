package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (s *recordingSink) Append(ts time.Time, level, name, msg string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return s.err
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	if _, err := Emit("info", "node.started", "", nil); err == nil {
		t.Fatal("expected unknown event to be rejected")
	}
}

func TestEmitReturnsJSON(t *testing.T) {
	b, err := Emit("info", "player.joined", "hello", map[string]interface{}{"player": "p1"})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if e.Name != "player.joined" || e.Message != "hello" || e.Fields["player"] != "p1" {
		t.Errorf("unexpected event %+v", e)
	}
	if _, err := time.Parse(time.RFC3339Nano, e.Timestamp); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}
}

func TestEmitPersistsToSink(t *testing.T) {
	s := &recordingSink{}
	SetSink(s)
	defer SetSink(nil)

	Emit("info", "game.created", "", nil)
	Emit("info", "game.deleted", "", nil)

	if len(s.names) != 2 || s.names[0] != "game.created" || s.names[1] != "game.deleted" {
		t.Errorf("unexpected sink contents %v", s.names)
	}
	if GetSink() != s {
		t.Error("GetSink should return the configured sink")
	}
}

func TestSinkFailureReportedOnce(t *testing.T) {
	Clear()
	SetSink(&recordingSink{err: errors.New("db down")})
	defer SetSink(nil)

	for i := 0; i < 3; i++ {
		if _, err := Emit("info", "player.moved", "", nil); err != nil {
			t.Fatalf("Emit should not fail on sink errors: %v", err)
		}
	}

	errorsSeen := 0
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			errorsSeen++
		}
	}
	if errorsSeen != 1 {
		t.Errorf("expected exactly one system.error, got %d", errorsSeen)
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Add(Event{Fields: map[string]interface{}{"i": i}})
	}
	got := rb.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Fields["i"] != 2 || got[2].Fields["i"] != 4 {
		t.Errorf("expected oldest-first 2..4, got %v", got)
	}
	rb.Clear()
	if len(rb.Snapshot()) != 0 {
		t.Error("expected empty buffer after Clear")
	}
}
