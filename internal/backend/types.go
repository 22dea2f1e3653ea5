package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ClassifyRequest is the body of POST /sms/classify_or_scan.
type ClassifyRequest struct {
	Body      string          `json:"body"`
	Sender    string          `json:"sender"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// EmailScanRequest is the body of POST /scan-email.
type EmailScanRequest struct {
	MessageID    string   `json:"message_id"`
	Source       string   `json:"source"`
	Subject      string   `json:"subject"`
	Date         string   `json:"date,omitempty"`
	BodyPlain    string   `json:"body_plain,omitempty"`
	BodyHTML     string   `json:"body_html,omitempty"`
	DetectedURLs []string `json:"detected_urls"`
}

// ClassifyResult is the backend's verdict. LogDetails is kept loose since
// only a handful of its fields are consumed here.
type ClassifyResult struct {
	Classification string         `json:"classification"`
	LogDetails     map[string]any `json:"log_details,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// IsPhishing reports whether the backend classified the content as
// phishing.
func (r *ClassifyResult) IsPhishing() bool {
	return strings.EqualFold(r.Classification, "phishing")
}

// IsPhishingEmail applies the mail scan rules: an explicit phishing
// classification, an is_phishing flag, or high severity.
func (r *ClassifyResult) IsPhishingEmail() bool {
	if r.IsPhishing() {
		return true
	}
	if v, ok := r.LogDetails["is_phishing"].(bool); ok && v {
		return true
	}
	return strings.EqualFold(r.Detail("severity"), "high")
}

// Detail returns a log_details field rendered as a string, or "" when
// absent.
func (r *ClassifyResult) Detail(key string) string {
	v, ok := r.LogDetails[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// FirstDetail returns the first non-empty log_details field among keys.
func (r *ClassifyResult) FirstDetail(keys ...string) string {
	for _, k := range keys {
		if v := r.Detail(k); v != "" {
			return v
		}
	}
	return ""
}

// LinkStatus is the response of GET /google-status.
type LinkStatus struct {
	Linked bool   `json:"linked"`
	Error  string `json:"error,omitempty"`
}

// ToggleRequest is the body of POST /monitor/toggle.
type ToggleRequest struct {
	Enable       bool `json:"enable"`
	SMSEnabled   bool `json:"sms_enabled"`
	GmailEnabled bool `json:"gmail_enabled"`
}
