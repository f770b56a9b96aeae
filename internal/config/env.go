package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/banshee-data/lifeguard/internal/notify"
)

// Environment variables holding secrets and per-vehicle overrides.
const (
	EnvTwilioAccountSID = "TWILIO_ACCOUNT_SID"
	EnvTwilioAuthToken  = "TWILIO_AUTH_TOKEN"
	EnvTwilioNumber     = "TWILIO_PHONE_NUMBER"
	EnvTwilioWhatsApp   = "TWILIO_WHATSAPP_NUMBER"
	EnvContacts         = "LIFEGUARD_CONTACTS"
	EnvTranscribeKey    = "TRANSCRIBE_API_KEY"
)

// Secrets are the credentials read from the environment, never from the
// JSON config.
type Secrets struct {
	Twilio        notify.TwilioOptions
	TranscribeKey string
	// Contacts overrides the configured contacts when set.
	Contacts []notify.Contact
}

// LoadEnv loads .env files (missing files are fine) into the process
// environment, without overriding variables already set, and reads the
// secrets from it.
func LoadEnv(files ...string) (*Secrets, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return SecretsFromEnv(os.LookupEnv)
}

// SecretsFromEnv reads the secrets through lookup.
func SecretsFromEnv(lookup func(string) (string, bool)) (*Secrets, error) {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	s := &Secrets{
		Twilio: notify.TwilioOptions{
			AccountSID:   get(EnvTwilioAccountSID),
			AuthToken:    get(EnvTwilioAuthToken),
			From:         get(EnvTwilioNumber),
			WhatsAppFrom: get(EnvTwilioWhatsApp),
		},
		TranscribeKey: get(EnvTranscribeKey),
	}
	if raw := get(EnvContacts); raw != "" {
		contacts, err := ParseContacts(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvContacts, err)
		}
		s.Contacts = contacts
	}
	return s, nil
}

// HasTwilio reports whether every Twilio credential is present.
func (s *Secrets) HasTwilio() bool {
	return s.Twilio.Validate() == nil
}

// ParseContacts parses a comma separated list of "name=+number" or bare
// "+number" entries and validates each number as E.164.
func ParseContacts(raw string) ([]notify.Contact, error) {
	var out []notify.Contact
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		var c notify.Contact
		if name, number, ok := strings.Cut(entry, "="); ok {
			c = notify.Contact{Name: strings.TrimSpace(name), Number: strings.TrimSpace(number)}
		} else {
			c = notify.Contact{Number: entry}
		}
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("invalid contact %q: %w", entry, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ResolveContacts returns the environment override when present, otherwise
// the configured contacts.
func (c *Config) ResolveContacts(s *Secrets) []notify.Contact {
	if s != nil && len(s.Contacts) > 0 {
		return s.Contacts
	}
	return c.Contacts
}
