// Package notify renders accident alerts and fans them out to the emergency
// contacts over SMS, WhatsApp and voice calls.
package notify

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/lifeguard/internal/accident"
)

// MapsURLTemplate builds the live location link from latitude and longitude.
const MapsURLTemplate = "https://maps.google.com/?q=%s,%s"

// TimeLayout formats the accident time in alert bodies.
const TimeLayout = "2006-01-02 15:04:05"

// Payload is everything sent for one accident. It is derived from the event
// alone, so rendering the same event twice yields identical bytes.
type Payload struct {
	// Message is the SMS body.
	Message string
	// WhatsApp is the WhatsApp body, which supports light markup.
	WhatsApp string
	// Script is the TwiML read out on the voice call.
	Script string
	Fields map[string]string
}

// MapsURL returns the live location link for a coordinate pair.
func MapsURL(lat, lon string) string {
	return fmt.Sprintf(MapsURLTemplate, lat, lon)
}

// RenderPayload renders the alert for ev.
func RenderPayload(ev accident.Event) Payload {
	ts := ev.Timestamp.Format(TimeLayout)
	mapsURL := MapsURL(ev.Latitude, ev.Longitude)
	count := strconv.Itoa(ev.PassengerCount)

	var msg strings.Builder
	msg.WriteString("🚨 LIFEGUARD AI ALERT 🚨\n\n")
	fmt.Fprintf(&msg, "Incident: %s\n", ev.ID)
	fmt.Fprintf(&msg, "Impact: %s\n", ev.ImpactType)
	fmt.Fprintf(&msg, "Passengers Detected: %s\n", count)
	fmt.Fprintf(&msg, "Time: %s\n\n", ts)
	fmt.Fprintf(&msg, "Live Location:\n%s\n", mapsURL)

	var wa strings.Builder
	wa.WriteString("🚨 *LIFEGUARD EMERGENCY* 🚨\n\n")
	fmt.Fprintf(&wa, "*ID:* %s\n", ev.ID)
	fmt.Fprintf(&wa, "*Impact:* %s\n", ev.ImpactType)
	fmt.Fprintf(&wa, "*Passengers:* %s\n", count)
	fmt.Fprintf(&wa, "*Time:* %s\n", ts)
	fmt.Fprintf(&wa, "*Lat:* %s\n*Lng:* %s\n\n", ev.Latitude, ev.Longitude)
	fmt.Fprintf(&wa, "📍 *LIVE TRACKING:* %s", mapsURL)

	return Payload{
		Message:  msg.String(),
		WhatsApp: wa.String(),
		Script:   CallScript(ev),
		Fields: map[string]string{
			"incident_id":     ev.ID,
			"impact":          ev.ImpactType,
			"passenger_count": count,
			"timestamp":       ev.Timestamp.Format(time.RFC3339),
			"latitude":        ev.Latitude,
			"longitude":       ev.Longitude,
			"maps_url":        mapsURL,
		},
	}
}

// CallScript returns the TwiML for the voice call. The location is not read
// out; the callee is pointed at the message instead.
func CallScript(ev accident.Event) string {
	spoken := fmt.Sprintf("Emergency alert from Lifeguard AI. "+
		"A vehicle accident has been detected. "+
		"Incident I D %s. "+
		"Impact type %s. "+
		"%d passengers detected. "+
		"Location details have been sent by message. "+
		"Please respond immediately.",
		spellOut(ev.ID), ev.ImpactType, ev.PassengerCount)

	var b bytes.Buffer
	b.WriteString(`<Response><Say voice="alice">`)
	xml.EscapeText(&b, []byte(spoken))
	b.WriteString(`</Say></Response>`)
	return b.String()
}

// spellOut separates characters so a text-to-speech engine reads an
// identifier one symbol at a time.
func spellOut(id string) string {
	return strings.Join(strings.Split(id, ""), " ")
}
