package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/monitoring"
)

//go:generate mockgen -source=notifier.go -destination=mock_notifier.go -package=notify

// Channel is a notification medium.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
)

// Contact is one emergency recipient.
type Contact struct {
	Name   string `json:"name"`
	Number string `json:"number" validate:"required,e164"`
}

func (c Contact) String() string {
	if c.Name == "" {
		return c.Number
	}
	return c.Name + " <" + c.Number + ">"
}

// Notifier delivers messages and places calls. Returned ids identify the
// message or call at the provider.
type Notifier interface {
	// SendMessage sends body to the E.164 number to over an SMS or WhatsApp
	// channel.
	SendMessage(ctx context.Context, channel Channel, to, body string) (id string, err error)
	// PlaceCall calls to and plays the TwiML script.
	PlaceCall(ctx context.Context, to, twiml string) (id string, err error)
}

// DisabledNotifier logs alerts instead of sending them. It is used when
// notifications are switched off or no provider credentials are set.
type DisabledNotifier struct {
	Logger *zap.Logger
}

// SendMessage implements Notifier.
func (n DisabledNotifier) SendMessage(_ context.Context, channel Channel, to, body string) (string, error) {
	monitoring.OrNop(n.Logger).Info("notifications disabled: message not sent",
		zap.String("channel", string(channel)), zap.String("to", to), zap.String("body", body))
	return "", nil
}

// PlaceCall implements Notifier.
func (n DisabledNotifier) PlaceCall(_ context.Context, to, twiml string) (string, error) {
	monitoring.OrNop(n.Logger).Info("notifications disabled: call not placed",
		zap.String("to", to), zap.String("twiml", twiml))
	return "", nil
}
