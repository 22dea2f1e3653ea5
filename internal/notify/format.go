package notify

import (
	"fmt"

	"github.com/earlfranciss/swiftshield/internal/model"
)

// AlertTitle is the title of every threat notification.
const AlertTitle = "SwiftShield Phishing Alert"

const (
	unknownSender = "Unknown Sender"
	noPreview     = "No preview available."
	maxSnippet    = 100
)

// Format renders a detection as a system notification. Data carries the
// detection fields so a tap can open the matching detail view.
func Format(t model.ThreatEvent) model.SystemNotification {
	sender := t.Sender
	if sender == "" {
		sender = unknownSender
	}
	preview := t.Preview
	if preview == "" {
		preview = noPreview
	}

	var body string
	switch t.Type {
	case model.ThreatSMS:
		body = fmt.Sprintf("SMS from %s: %s...", sender, snippet(preview))
	case model.ThreatGmail:
		body = "Email from " + sender
		if t.Subject != "" {
			body += fmt.Sprintf("\nSubject: %s...", snippet(t.Subject))
		} else {
			body += fmt.Sprintf(": %s...", snippet(preview))
		}
	default:
		body = fmt.Sprintf("Potential phishing detected from %s.", sender)
	}

	data := map[string]string{
		"type":        string(t.Type),
		"detectionId": t.DetectionID,
		"sender":      sender,
	}
	if t.Severity != "" {
		data["severity"] = t.Severity
	}
	if t.Subject != "" {
		data["subject"] = t.Subject
	}
	if t.MessageID != "" {
		data["messageId"] = t.MessageID
	}

	return model.SystemNotification{Title: AlertTitle, Body: body, Data: data}
}

// snippet cuts s to maxSnippet runes.
func snippet(s string) string {
	r := []rune(s)
	if len(r) <= maxSnippet {
		return s
	}
	return string(r[:maxSnippet])
}
