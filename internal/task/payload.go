package task

import (
	"encoding/json"
	"errors"
	"fmt"
)

// typeSMSReceived is the envelope type the SMS gateway wraps messages in.
const typeSMSReceived = "SMS_RECEIVED"

// errEmptyBody means the payload parsed but carries no text to classify.
var errEmptyBody = errors.New("sms payload has no body")

// SMSPayload is one inbound SMS.
type SMSPayload struct {
	Body      string          `json:"body"`
	Sender    string          `json:"sender"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`

	// OriginatingAddress is the sender field some gateways use instead of
	// Sender.
	OriginatingAddress string `json:"originatingAddress,omitempty"`
}

// From returns the best known sender.
func (p SMSPayload) From() string {
	if p.Sender != "" {
		return p.Sender
	}
	return p.OriginatingAddress
}

// envelope covers the three accepted payload shapes: a bare SMSPayload,
// {"type":"SMS_RECEIVED","message":{...}} and {"smsData":"<json>"}.
type envelope struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	SMSData *string         `json:"smsData"`
}

// ParsePayload decodes raw into an SMSPayload, unwrapping any envelope.
func ParsePayload(raw []byte) (SMSPayload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return SMSPayload{}, fmt.Errorf("decoding payload: %w", err)
	}

	inner := raw
	switch {
	case env.SMSData != nil:
		inner = []byte(*env.SMSData)
	case env.Type != "":
		if env.Type != typeSMSReceived {
			return SMSPayload{}, fmt.Errorf("unsupported payload type %q", env.Type)
		}
		if len(env.Message) == 0 {
			return SMSPayload{}, fmt.Errorf("%s payload without message", env.Type)
		}
		inner = env.Message
	}

	var p SMSPayload
	if err := json.Unmarshal(inner, &p); err != nil {
		return SMSPayload{}, fmt.Errorf("decoding sms: %w", err)
	}
	if p.Body == "" {
		return SMSPayload{}, errEmptyBody
	}
	return p, nil
}
