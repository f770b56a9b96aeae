// Package accident holds the values that flow through one accident response:
// the event reported by the vehicle, the results of the two sensing phases and
// the escalation outcome.
package accident

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Unknown is the value of every telemetry field the vehicle has not reported.
const Unknown = "UNKNOWN"

// Event is a single accident as reported by the vehicle microcontroller.
//
// The field collector fills Latitude, Longitude and ImpactType; the
// orchestrator sets PassengerCount from the lock phase. The event is not
// modified after that and is consumed once by the dispatcher.
type Event struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Latitude       string    `json:"latitude"`
	Longitude      string    `json:"longitude"`
	ImpactType     string    `json:"impact_type"`
	PassengerCount int       `json:"passenger_count"`
}

// NewEvent returns an event captured at ts with every field at its default.
func NewEvent(ts time.Time) *Event {
	return &Event{
		ID:         NewID(),
		Timestamp:  ts,
		Latitude:   Unknown,
		Longitude:  Unknown,
		ImpactType: Unknown,
	}
}

// NewID returns a short incident identifier of the form LG-XXXXXX.
func NewID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "LG-" + strings.ToUpper(id[:6])
}

// HasLocation reports whether both coordinates were received.
func (e *Event) HasLocation() bool {
	return e.Latitude != Unknown && e.Longitude != Unknown
}

// SampleKind distinguishes the two per-iteration sensor readings.
type SampleKind int

const (
	OccupantCount SampleKind = iota
	MovementScore
)

// Sample is one reading taken during a sensing phase. Samples never outlive
// the phase that produced them.
type Sample struct {
	Kind  SampleKind
	Value int
	At    time.Time
}

// LockResult is the outcome of the passenger lock phase.
type LockResult struct {
	// LockedCount is the largest occupant count seen in the window.
	LockedCount int
	Frames      int
}

// MonitorResult is the outcome of the movement monitoring phase.
type MonitorResult struct {
	MovementDetected bool
	// Frames counts frames that were scored, the baseline excluded.
	Frames    int
	PeakScore int
}
