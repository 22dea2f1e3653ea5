package store

import (
	"context"

	"github.com/earlfranciss/swiftshield/internal/model"
)

// Keys under which the intended channel state is persisted.
const (
	KeySMSMonitoring   = "smsMonitoringEnabled"
	KeyGmailMonitoring = "gmailMonitoringEnabled"
	KeyMailCursor      = "mailLastSeenUID"
)

// IntentStore persists the user's intended monitoring state. It is the
// single source of truth shared by the UI toggle, expiry events and stop.
type IntentStore interface {
	// SetIntent writes both channel flags together.
	SetIntent(ctx context.Context, sms, gmail bool) error

	// SetChannelIntent writes a single channel flag, leaving the other
	// untouched.
	SetChannelIntent(ctx context.Context, ch model.Channel, enabled bool) error

	// GetIntent returns the intended state. A store that was never written
	// reports everything off.
	GetIntent(ctx context.Context) (model.MonitoringStatus, error)
}

// CursorStore keeps the mail poller's position between runs.
type CursorStore interface {
	GetMailCursor(ctx context.Context) (uint32, bool, error)
	SetMailCursor(ctx context.Context, uid uint32) error
}

// Store is everything the application persists locally.
type Store interface {
	IntentStore
	CursorStore
	Close() error
}

// channelKey maps a channel to its persisted flag key.
func channelKey(ch model.Channel) (string, bool) {
	switch ch {
	case model.ChannelSMS:
		return KeySMSMonitoring, true
	case model.ChannelGmail:
		return KeyGmailMonitoring, true
	default:
		return "", false
	}
}
