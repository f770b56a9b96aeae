// Package telemetry turns raw lines from the vehicle microcontroller into
// accident markers and field updates, and runs the bounded window in which
// the fields of a new accident are collected.
package telemetry

import "strings"

const (
	markerToken    = "ACCIDENT_DETECTED"
	endPacketToken = "END_PACKET"
)

// Recognised field keys.
const (
	KeyLatitude   = "LAT"
	KeyLongitude  = "LON"
	KeyImpactType = "IMPACT_TYPE"
)

// Kind classifies one telemetry line.
type Kind int

const (
	Unrecognized Kind = iota
	AccidentMarker
	FieldUpdate
	EndOfPacket
)

func (k Kind) String() string {
	switch k {
	case AccidentMarker:
		return "accident_marker"
	case FieldUpdate:
		return "field_update"
	case EndOfPacket:
		return "end_of_packet"
	default:
		return "unrecognized"
	}
}

// Message is a classified telemetry line. Key and Value are set only for
// FieldUpdate.
type Message struct {
	Kind  Kind
	Key   string
	Value string
	Raw   string
}

// Classify inspects one line from the link. It never fails: anything it
// cannot make sense of is Unrecognized.
func Classify(line string) Message {
	raw := strings.TrimSpace(line)
	msg := Message{Raw: raw}

	switch {
	case raw == "":
		return msg
	case strings.Contains(raw, markerToken):
		msg.Kind = AccidentMarker
	case raw == endPacketToken:
		msg.Kind = EndOfPacket
	default:
		key, value, ok := strings.Cut(raw, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return msg
		}
		msg.Kind = FieldUpdate
		msg.Key = key
		msg.Value = strings.TrimSpace(value)
	}
	return msg
}

// Known reports whether a field update carries one of the recognised keys.
func (m Message) Known() bool {
	if m.Kind != FieldUpdate {
		return false
	}
	switch m.Key {
	case KeyLatitude, KeyLongitude, KeyImpactType:
		return true
	}
	return false
}
