// Package decision decides whether an accident is escalated to the emergency
// contacts once both sensing phases have finished.
package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/accident"
	"github.com/banshee-data/lifeguard/internal/monitoring"
	"github.com/banshee-data/lifeguard/internal/voice"
)

// DefaultReplyTimeout bounds the wait for a spoken reply.
const DefaultReplyTimeout = 10 * time.Second

// Spoken prompts and acknowledgments.
const (
	PromptConfirmed  = "Emergency confirmed. Sending help now."
	PromptMonitoring = "Okay. Monitoring continues. Stay safe."
	PromptAutomatic  = "No passenger movement detected. Auto emergency activated."
)

// confirmTokens are the substrings of a reply that ask for help.
var confirmTokens = []string{"yes", "help"}

// QueryPrompt is the question asked when a moving occupant was seen.
func QueryPrompt(lockedCount int) string {
	return fmt.Sprintf("%d passengers detected. Do you need medical assistance?", lockedCount)
}

// Engine turns the two phase results into an Outcome, asking the occupant
// when they appear able to answer.
type Engine struct {
	speaker      voice.Speaker
	listener     voice.Listener
	replyTimeout time.Duration
	logger       *zap.Logger
}

// NewEngine returns an engine. A non-positive replyTimeout uses
// DefaultReplyTimeout.
func NewEngine(speaker voice.Speaker, listener voice.Listener, replyTimeout time.Duration, logger *zap.Logger) *Engine {
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}
	return &Engine{
		speaker:      speaker,
		listener:     listener,
		replyTimeout: replyTimeout,
		logger:       monitoring.OrNop(logger),
	}
}

// Decide returns the outcome for an accident. With no locked occupant or no
// movement there is nobody to ask and the accident escalates at once.
// Otherwise the occupant is asked; silence escalates, a reply containing
// "yes" or "help" escalates, and any other reply suppresses.
func (e *Engine) Decide(ctx context.Context, lock accident.LockResult, mon accident.MonitorResult) accident.Outcome {
	if lock.LockedCount == 0 || !mon.MovementDetected {
		e.say(ctx, PromptAutomatic)
		return e.log(accident.EscalateWith(accident.AutoNoMovement, ""))
	}

	e.say(ctx, QueryPrompt(lock.LockedCount))
	reply, ok := e.listener.Listen(ctx, e.replyTimeout)
	if !ok {
		e.say(ctx, PromptConfirmed)
		return e.log(accident.EscalateWith(accident.AutoNoResponse, ""))
	}
	if Confirms(reply) {
		e.say(ctx, PromptConfirmed)
		return e.log(accident.EscalateWith(accident.VoiceConfirmed, reply))
	}
	e.say(ctx, PromptMonitoring)
	return e.log(accident.Suppress(reply))
}

// Confirms reports whether reply asks for help.
func Confirms(reply string) bool {
	reply = strings.ToLower(reply)
	for _, tok := range confirmTokens {
		if strings.Contains(reply, tok) {
			return true
		}
	}
	return false
}

// say never fails the decision; a dead loudspeaker is logged and ignored.
func (e *Engine) say(ctx context.Context, text string) {
	if err := e.speaker.Speak(ctx, text); err != nil {
		e.logger.Warn("prompt not spoken", zap.String("text", text), zap.Error(err))
	}
}

func (e *Engine) log(out accident.Outcome) accident.Outcome {
	e.logger.Info("decision", zap.Stringer("outcome", out), zap.String("reply", out.Reply))
	return out
}
