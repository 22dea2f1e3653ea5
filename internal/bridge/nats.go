package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

const (
	subjectPrefix = "swiftshield."

	// publishTimeout bounds how long a publisher waits for the subscriber
	// to acknowledge receipt.
	publishTimeout = 5 * time.Second
)

// Subject returns the NATS subject events of kind travel on.
func Subject(kind Kind) string {
	return subjectPrefix + string(kind)
}

// NATS carries events between processes over a NATS server. The running
// application subscribes; background processes publish.
//
// Publishing uses request-reply so the publisher can tell a delivered event
// from one nobody was listening for. The subscriber acknowledges before the
// handler runs, so a slow handler never times out the publisher.
type NATS struct {
	nc     *nats.Conn
	owned  bool
	drops  DropRecorder
	logger *log.Logger

	mu   sync.Mutex
	subs map[Kind]*natsSub
}

var _ Bridge = (*NATS)(nil)

type natsSub struct {
	b    *NATS
	kind Kind
	sub  *nats.Subscription
}

// DialNATS connects to url and returns a bridge that closes the connection
// on Close.
func DialNATS(url, name string, drops DropRecorder, logger *log.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}

	b := NewNATS(nc, drops, logger)
	b.owned = true
	return b, nil
}

// NewNATS wraps an existing connection. The caller keeps ownership of nc.
func NewNATS(nc *nats.Conn, drops DropRecorder, logger *log.Logger) *NATS {
	return &NATS{
		nc:     nc,
		drops:  drops,
		logger: logger.With("component", "bridge-nats"),
		subs:   make(map[Kind]*natsSub),
	}
}

// Subscribe registers h for kind, draining any previous subscription.
func (b *NATS) Subscribe(kind Kind, h Handler) (Subscription, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev := b.subs[kind]; prev != nil {
		if err := prev.sub.Unsubscribe(); err != nil {
			b.logger.Warn("unsubscribing previous handler", "kind", kind, "err", err)
		}
		delete(b.subs, kind)
	}

	subject := Subject(kind)
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		if msg.Reply != "" {
			if err := msg.Respond([]byte("ok")); err != nil {
				b.logger.Warn("acknowledging event", "subject", subject, "err", err)
			}
		}

		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			b.logger.Warn("received invalid event", "subject", subject, "err", err)
			return
		}
		if err := e.validate(); err != nil {
			b.logger.Warn("received invalid event", "subject", subject, "err", err)
			return
		}
		h(context.Background(), e)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	// The server must know about the interest before a publisher asks.
	if err := b.nc.Flush(); err != nil {
		b.logger.Warn("flushing subscription", "subject", subject, "err", err)
	}

	s := &natsSub{b: b, kind: kind, sub: sub}
	b.subs[kind] = s
	b.logger.Debug("subscribed", "subject", subject)
	return s, nil
}

// Publish sends e and waits for the subscriber's acknowledgement. An event
// with no subscriber is counted as dropped and nil is returned.
func (b *NATS) Publish(ctx context.Context, e Event) error {
	if err := e.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", e.Kind, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	subject := Subject(e.Kind)
	if _, err := b.nc.RequestWithContext(reqCtx, subject, data); err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			b.logger.Debug("no subscriber, dropping event", "subject", subject)
			if b.drops != nil {
				b.drops.BridgeDropped(string(e.Kind))
			}
			return nil
		}
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains live subscriptions and, when the bridge dialed the
// connection itself, drains the connection too.
func (b *NATS) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[Kind]*natsSub)
	b.mu.Unlock()

	for kind, s := range subs {
		if err := s.sub.Drain(); err != nil {
			b.logger.Warn("draining subscription", "kind", kind, "err", err)
		}
	}

	if b.owned {
		if err := b.nc.Drain(); err != nil {
			return fmt.Errorf("draining nats connection: %w", err)
		}
	}
	return nil
}

func (s *natsSub) Unsubscribe() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.b.subs[s.kind] != s {
		return
	}
	delete(s.b.subs, s.kind)
	if err := s.sub.Unsubscribe(); err != nil {
		s.b.logger.Warn("unsubscribing", "kind", s.kind, "err", err)
		return
	}
	if err := s.b.nc.Flush(); err != nil {
		s.b.logger.Warn("flushing unsubscribe", "kind", s.kind, "err", err)
	}
}
