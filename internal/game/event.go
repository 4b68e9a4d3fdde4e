package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeTick              // Step boundary
	EventTypeBodyRegister
	EventTypeBodyDeregister
	EventTypeStoreRebuild
	EventTypeStepFailed
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is the core event structure for the event log
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	TickNum   uint64          `json:"tickNum"`
	Payload   json.RawMessage `json:"payload"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypeBodyRegister:
		return "body_register"
	case EventTypeBodyDeregister:
		return "body_deregister"
	case EventTypeStoreRebuild:
		return "store_rebuild"
	case EventTypeStepFailed:
		return "step_failed"
	default:
		return "unknown"
	}
}

// MarshalText writes the type by name in the JSONL output.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// TickPayload describes one completed step
type TickPayload struct {
	BodyCount    int   `json:"bodyCount"`
	OverlapPairs int   `json:"overlapPairs"`
	DurationNs   int64 `json:"durationNs"`
	DeltaTimeNs  int64 `json:"deltaTimeNs"`
}

// BodyPayload describes a registration or deregistration
type BodyPayload struct {
	Handle Handle  `json:"handle"`
	Kind   Kind    `json:"kind"`
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Z      float32 `json:"z"`
	Radius float32 `json:"radius"`
	Mass   float32 `json:"mass"`
}

// RebuildPayload describes a body store rebuild
type RebuildPayload struct {
	BodyCount int     `json:"bodyCount"`
	MaxRadius float32 `json:"maxRadius"`
}

// StepFailedPayload describes a step that committed nothing
type StepFailedPayload struct {
	Handle Handle `json:"handle"`
	Error  string `json:"error"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		Payload:   EncodePayload(payload),
	}
}
