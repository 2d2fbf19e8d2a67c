// Package alert holds the values that flow through one poll cycle: the raw
// records read from the alert feed, their dedup identity, and the payload
// posted to the webhook.
package alert

import (
	"time"
)

// Record is one loosely typed entry from the alert feed. Only Data and Date
// are interpreted; Raw keeps the original JSON object untouched.
type Record struct {
	Data string
	Date string
	Raw  []byte
}

// Identity is the dedup key of a record. It is compared, never parsed.
type Identity string

// ID derives the identity from the alert date and text.
func (r Record) ID() Identity {
	return Identity(r.Date + "_" + r.Data)
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	AlertType string `json:"alert_type"`
	Timestamp string `json:"timestamp"`
	AlertDate string `json:"alert_date"`
	AlertData string `json:"alert_data"`
	Source    string `json:"source"`
}

// NewPayload builds the notification for r. now is the dispatch time, not the
// alert time, and is rendered in UTC.
func NewPayload(r Record, alertType, source string, now time.Time) Payload {
	return Payload{
		AlertType: alertType,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		AlertDate: r.Date,
		AlertData: r.Data,
		Source:    source,
	}
}
