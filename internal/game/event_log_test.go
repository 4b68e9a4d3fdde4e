package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/time/rate"
)

// TestEventLogWritesJSONL verifies events are flushed as typed JSON lines on Stop
func TestEventLogWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el := NewEventLog()
	if err := el.Start(path); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	el.EmitSimple(EventTypeBodyRegister, 1, BodyPayload{Handle: 7, Kind: KindEnemy, Radius: 0.5, Mass: 1})
	el.EmitSimple(EventTypeTick, 1, TickPayload{BodyCount: 1})
	el.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		lines = append(lines, m)
	}

	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["type"] != "body_register" || lines[1]["type"] != "tick" {
		t.Errorf("types = %v, %v, want body_register, tick", lines[0]["type"], lines[1]["type"])
	}
	payload, ok := lines[0]["payload"].(map[string]any)
	if !ok || payload["handle"] != float64(7) || payload["kind"] != "enemy" {
		t.Errorf("payload = %v, want embedded object with handle 7", lines[0]["payload"])
	}
	if lines[1]["sequence"].(float64) <= lines[0]["sequence"].(float64) {
		t.Error("sequence numbers are not increasing")
	}

	stats := el.GetStats()
	if stats.Total != 2 || stats.Written != 2 || stats.Pending != 0 || stats.Running {
		t.Errorf("stats = %+v, want 2 total, 2 written, none pending, stopped", stats)
	}
}

// TestEventLogDropsOldest verifies the ring overwrites the oldest events when full
func TestEventLogDropsOldest(t *testing.T) {
	el := NewEventLog()
	el.limiter = rate.NewLimiter(rate.Inf, 0)
	el.running.Store(true) // no writer goroutine, nothing is flushed

	for i := 0; i < EventBufferSize+10; i++ {
		if !el.EmitSimple(EventTypeTick, uint64(i), nil) {
			t.Fatalf("Emit %d rejected", i)
		}
	}

	stats := el.GetStats()
	if stats.Dropped != 10 {
		t.Errorf("Dropped = %d, want 10", stats.Dropped)
	}
	if stats.Pending != EventBufferSize {
		t.Errorf("Pending = %d, want %d", stats.Pending, EventBufferSize)
	}

	batch := el.collectBatch(nil)
	if len(batch) == 0 || batch[0].Sequence != 10 {
		t.Errorf("oldest retained sequence = %v, want 10", batch)
	}
}

// TestEventLogRateLimited verifies the global limiter drops bursts
func TestEventLogRateLimited(t *testing.T) {
	el := NewEventLog()
	el.limiter = rate.NewLimiter(1, 5)
	el.running.Store(true)

	accepted := 0
	for i := 0; i < 20; i++ {
		if el.EmitSimple(EventTypeTick, uint64(i), nil) {
			accepted++
		}
	}
	if accepted != 5 {
		t.Errorf("accepted %d events, want burst of 5", accepted)
	}
	if el.GetStats().Dropped != 15 {
		t.Errorf("Dropped = %d, want 15", el.GetStats().Dropped)
	}
}

// TestEventLogNotRunning verifies Emit refuses events before Start
func TestEventLogNotRunning(t *testing.T) {
	el := NewEventLog()
	if el.EmitSimple(EventTypeTick, 1, nil) {
		t.Error("Emit accepted an event before Start")
	}
}

// TestEventTypeString verifies every type has a stable name
func TestEventTypeString(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EventTypeTick, "tick"},
		{EventTypeBodyRegister, "body_register"},
		{EventTypeBodyDeregister, "body_deregister"},
		{EventTypeStoreRebuild, "store_rebuild"},
		{EventTypeStepFailed, "step_failed"},
		{EventTypeUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
