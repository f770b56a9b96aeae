package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTwilioBaseURL is the Twilio REST API root.
const DefaultTwilioBaseURL = "https://api.twilio.com"

// TwilioOptions configures a TwilioClient.
type TwilioOptions struct {
	AccountSID string
	AuthToken  string
	// From is the sender number for SMS and calls.
	From string
	// WhatsAppFrom is the WhatsApp-enabled sender; empty disables WhatsApp.
	WhatsAppFrom string
	BaseURL      string
	Timeout      time.Duration
}

// Validate checks the credentials and sender are present.
func (o TwilioOptions) Validate() error {
	switch {
	case o.AccountSID == "":
		return errors.New("twilio account sid is required")
	case o.AuthToken == "":
		return errors.New("twilio auth token is required")
	case o.From == "":
		return errors.New("twilio sender number is required")
	}
	return nil
}

type twilioResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *twilioError) Error() string {
	return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
}

// TwilioClient sends messages and places calls with the Twilio REST API.
type TwilioClient struct {
	client *resty.Client
	opts   TwilioOptions
}

// NewTwilioClient returns a client authenticated with opts.
func NewTwilioClient(opts TwilioOptions) (*TwilioClient, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultTwilioBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetBasicAuth(opts.AccountSID, opts.AuthToken).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetPathParam("account", opts.AccountSID).
		SetError(&twilioError{})
	return &TwilioClient{client: client, opts: opts}, nil
}

// WhatsAppEnabled reports whether a WhatsApp sender is configured.
func (c *TwilioClient) WhatsAppEnabled() bool {
	return c.opts.WhatsAppFrom != ""
}

// SendMessage implements Notifier.
func (c *TwilioClient) SendMessage(ctx context.Context, channel Channel, to, body string) (string, error) {
	from := c.opts.From
	if channel == ChannelWhatsApp {
		if !c.WhatsAppEnabled() {
			return "", errors.New("whatsapp sender is not configured")
		}
		from = "whatsapp:" + c.opts.WhatsAppFrom
		to = "whatsapp:" + to
	}
	return c.create(ctx, "Messages.json", map[string]string{
		"From": from,
		"To":   to,
		"Body": body,
	})
}

// PlaceCall implements Notifier.
func (c *TwilioClient) PlaceCall(ctx context.Context, to, twiml string) (string, error) {
	return c.create(ctx, "Calls.json", map[string]string{
		"From":  c.opts.From,
		"To":    to,
		"Twiml": twiml,
	})
}

func (c *TwilioClient) create(ctx context.Context, resource string, form map[string]string) (string, error) {
	var out twilioResource
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		Post("/2010-04-01/Accounts/{account}/" + resource)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*twilioError); ok && e.Message != "" {
			return "", e
		}
		return "", fmt.Errorf("twilio returned %s", resp.Status())
	}
	return out.SID, nil
}
