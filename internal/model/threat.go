package model

import "time"

// ThreatType identifies what kind of content a detection was made on.
type ThreatType string

const (
	ThreatSMS   ThreatType = "sms"
	ThreatGmail ThreatType = "gmail"
	ThreatURL   ThreatType = "url"
)

// ThreatEvent is a detection confirmed as malicious by the backend.
// It is constructed, routed once and discarded.
type ThreatEvent struct {
	// Type is the channel the content arrived on.
	Type ThreatType `json:"type"`

	// DetectionID is assigned by the backend and is the dedup key.
	DetectionID string `json:"detectionId"`

	Sender    string    `json:"sender"`
	Preview   string    `json:"preview"`
	Severity  string    `json:"severity,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Extra carries any remaining backend log fields untouched.
	Extra map[string]any `json:"extra,omitempty"`
}

// Stream returns the dedup stream the event belongs to.
func (e ThreatEvent) Stream() string {
	switch e.Type {
	case ThreatSMS:
		return "sms-threats"
	case ThreatGmail:
		return "gmail-threats"
	case ThreatURL:
		return "url-threats"
	default:
		return "threats"
	}
}

// Valid reports whether the event carries the fields routing depends on.
func (e ThreatEvent) Valid() bool {
	return e.Type != "" && e.DetectionID != ""
}

// ChannelExpiryEvent signals that a channel's credentials or link became
// invalid. The channel stays off until the user re-links it.
type ChannelExpiryEvent struct {
	Channel Channel   `json:"channel"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}
