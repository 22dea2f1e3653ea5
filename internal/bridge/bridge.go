// Package bridge carries events from code that may run outside the
// foreground application (background tasks, channel listeners) to whatever
// part of the application is listening for them.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/earlfranciss/swiftshield/internal/model"
)

// Kind names an event stream on the bridge.
type Kind string

const (
	KindThreatDetected Kind = "threatDetected"
	KindChannelExpired Kind = "channelExpired"
)

// Kinds lists every kind the bridge accepts.
var Kinds = []Kind{KindThreatDetected, KindChannelExpired}

// ErrUnknownKind is returned when subscribing or publishing a kind the
// bridge does not carry.
var ErrUnknownKind = errors.New("unknown event kind")

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is the envelope published on the bridge. Exactly one payload field
// is set, matching Kind.
type Event struct {
	Kind   Kind                      `json:"kind"`
	Threat *model.ThreatEvent        `json:"threat,omitempty"`
	Expiry *model.ChannelExpiryEvent `json:"expiry,omitempty"`
}

// ThreatDetected wraps a detection for publishing.
func ThreatDetected(t model.ThreatEvent) Event {
	return Event{Kind: KindThreatDetected, Threat: &t}
}

// ChannelExpired wraps an expiry for publishing.
func ChannelExpired(e model.ChannelExpiryEvent) Event {
	return Event{Kind: KindChannelExpired, Expiry: &e}
}

// validate checks the kind and that the matching payload is present.
func (e Event) validate() error {
	switch e.Kind {
	case KindThreatDetected:
		if e.Threat == nil {
			return fmt.Errorf("%s event without threat payload", e.Kind)
		}
	case KindChannelExpired:
		if e.Expiry == nil {
			return fmt.Errorf("%s event without expiry payload", e.Kind)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return nil
}

// Handler receives events of one kind.
type Handler func(ctx context.Context, e Event)

// Subscription is a live registration on the bridge.
type Subscription interface {
	// Unsubscribe removes the registration. Calling it more than once, or
	// after the kind was re-subscribed, is a no-op.
	Unsubscribe()
}

// Bridge delivers published events to at most one handler per kind.
// Subscribing a kind that already has a handler replaces it. Events
// published while no handler is registered are dropped without error.
type Bridge interface {
	Subscribe(kind Kind, h Handler) (Subscription, error)
	Publish(ctx context.Context, e Event) error
}

// DropRecorder is told about events that found no subscriber.
type DropRecorder interface {
	BridgeDropped(kind string)
}
