package accident

// Reason explains why an accident was escalated.
type Reason int

const (
	// NoReason is the zero value carried by suppressed outcomes.
	NoReason Reason = iota
	// AutoNoResponse: an occupant was present and moving but gave no reply.
	AutoNoResponse
	// AutoNoMovement: no occupant or no movement, so nobody could confirm.
	AutoNoMovement
	// VoiceConfirmed: the occupant asked for help.
	VoiceConfirmed
)

func (r Reason) String() string {
	switch r {
	case AutoNoResponse:
		return "auto_no_response"
	case AutoNoMovement:
		return "auto_no_movement"
	case VoiceConfirmed:
		return "voice_confirmed"
	default:
		return "none"
	}
}

// Outcome is the decision taken for one accident.
type Outcome struct {
	Escalate bool
	Reason   Reason
	// Reply is the recognised spoken reply, if one was heard.
	Reply string
}

// EscalateWith returns an escalation outcome.
func EscalateWith(reason Reason, reply string) Outcome {
	return Outcome{Escalate: true, Reason: reason, Reply: reply}
}

// Suppress returns the outcome for an occupant who declined help.
func Suppress(reply string) Outcome {
	return Outcome{Reply: reply}
}

func (o Outcome) String() string {
	if !o.Escalate {
		return "suppress"
	}
	return "escalate(" + o.Reason.String() + ")"
}
