package notify

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/banshee-data/lifeguard/internal/accident"
	"github.com/banshee-data/lifeguard/internal/monitoring"
)

// Report statuses.
const (
	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"
	StatusFailed         = "failed"
)

// Attempt is one message or call to one contact.
type Attempt struct {
	Contact Contact
	Channel Channel
	// ID is the provider id of the message or call, when it was accepted.
	ID  string
	Err error
}

// OK reports whether the provider accepted the attempt.
func (a Attempt) OK() bool {
	return a.Err == nil
}

// Report is the aggregate result of one dispatch. Every attempt, successful
// or not, is listed.
type Report struct {
	IncidentID string
	Attempts   []Attempt
}

// Successes returns the number of accepted attempts.
func (r Report) Successes() int {
	n := 0
	for _, a := range r.Attempts {
		if a.OK() {
			n++
		}
	}
	return n
}

// Failures returns the attempts that failed, in dispatch order.
func (r Report) Failures() []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if !a.OK() {
			out = append(out, a)
		}
	}
	return out
}

// Status is success when every attempt was accepted, failed when none was,
// and partial_failure otherwise. A report with no attempts has failed.
func (r Report) Status() string {
	ok := r.Successes()
	switch {
	case ok == 0:
		return StatusFailed
	case ok == len(r.Attempts):
		return StatusSuccess
	}
	return StatusPartialFailure
}

// Summary is a one-line human readable result.
func (r Report) Summary() string {
	return fmt.Sprintf("%d of %d notifications successfully initiated", r.Successes(), len(r.Attempts))
}

// Err combines every failed attempt into one error, or nil.
func (r Report) Err() error {
	var err error
	for _, a := range r.Failures() {
		err = multierr.Append(err, fmt.Errorf("%s to %s: %w", a.Channel, a.Contact, a.Err))
	}
	return err
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Contacts []Contact
	// WhatsApp adds a WhatsApp message per contact.
	WhatsApp bool
	Logger   *zap.Logger
}

// Dispatcher fans an alert out to every contact. A failure to reach one
// contact, or one channel, never stops the remaining attempts.
type Dispatcher struct {
	notifier Notifier
	contacts []Contact
	whatsapp bool
	logger   *zap.Logger
}

// NewDispatcher returns a dispatcher sending through notifier.
func NewDispatcher(notifier Notifier, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		contacts: append([]Contact(nil), opts.Contacts...),
		whatsapp: opts.WhatsApp,
		logger:   monitoring.OrNop(opts.Logger),
	}
}

// Contacts returns the configured recipients.
func (d *Dispatcher) Contacts() []Contact {
	return append([]Contact(nil), d.contacts...)
}

// Dispatch renders the alert for ev and sends it to every contact: an SMS,
// a WhatsApp message when enabled, then a voice call.
func (d *Dispatcher) Dispatch(ctx context.Context, ev accident.Event) Report {
	payload := RenderPayload(ev)
	report := Report{IncidentID: ev.ID}

	d.logger.Info("dispatching alert",
		zap.String("incident_id", ev.ID),
		zap.String("maps_url", payload.Fields["maps_url"]),
		zap.Int("contacts", len(d.contacts)))

	for _, c := range d.contacts {
		id, err := d.notifier.SendMessage(ctx, ChannelSMS, c.Number, payload.Message)
		report.Attempts = append(report.Attempts, d.record(Attempt{Contact: c, Channel: ChannelSMS, ID: id, Err: err}))

		if d.whatsapp {
			id, err = d.notifier.SendMessage(ctx, ChannelWhatsApp, c.Number, payload.WhatsApp)
			report.Attempts = append(report.Attempts, d.record(Attempt{Contact: c, Channel: ChannelWhatsApp, ID: id, Err: err}))
		}

		id, err = d.notifier.PlaceCall(ctx, c.Number, payload.Script)
		report.Attempts = append(report.Attempts, d.record(Attempt{Contact: c, Channel: ChannelVoice, ID: id, Err: err}))
	}

	d.logger.Info("dispatch finished",
		zap.String("incident_id", ev.ID),
		zap.String("status", report.Status()),
		zap.String("summary", report.Summary()))
	return report
}

func (d *Dispatcher) record(a Attempt) Attempt {
	if a.Err != nil {
		d.logger.Warn("dispatch attempt failed",
			zap.String("channel", string(a.Channel)),
			zap.String("contact", a.Contact.String()),
			zap.Error(a.Err))
	} else {
		d.logger.Debug("dispatch attempt accepted",
			zap.String("channel", string(a.Channel)),
			zap.String("contact", a.Contact.String()),
			zap.String("id", a.ID))
	}
	return a
}
