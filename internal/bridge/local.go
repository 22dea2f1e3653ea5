package bridge

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// Local is an in-process bridge. Publish calls the handler synchronously
// on the caller's goroutine.
type Local struct {
	mu     sync.Mutex
	subs   map[Kind]*localSub
	drops  DropRecorder
	logger *log.Logger
}

var _ Bridge = (*Local)(nil)

type localSub struct {
	b    *Local
	kind Kind
	h    Handler
}

// NewLocal creates an in-process bridge. drops may be nil.
func NewLocal(drops DropRecorder, logger *log.Logger) *Local {
	return &Local{
		subs:   make(map[Kind]*localSub),
		drops:  drops,
		logger: logger.With("component", "bridge"),
	}
}

// Subscribe registers h for kind, replacing any previous handler.
func (b *Local) Subscribe(kind Kind, h Handler) (Subscription, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}

	sub := &localSub{b: b, kind: kind, h: h}

	b.mu.Lock()
	_, replaced := b.subs[kind]
	b.subs[kind] = sub
	b.mu.Unlock()

	if replaced {
		b.logger.Debug("replaced subscription", "kind", kind)
	}
	return sub, nil
}

// Publish delivers e to the current handler for its kind.
func (b *Local) Publish(ctx context.Context, e Event) error {
	if err := e.validate(); err != nil {
		return err
	}

	b.mu.Lock()
	sub := b.subs[e.Kind]
	b.mu.Unlock()

	if sub == nil {
		b.logger.Debug("no subscriber, dropping event", "kind", e.Kind)
		if b.drops != nil {
			b.drops.BridgeDropped(string(e.Kind))
		}
		return nil
	}

	sub.h(ctx, e)
	return nil
}

func (s *localSub) Unsubscribe() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.b.subs[s.kind] == s {
		delete(s.b.subs, s.kind)
	}
}
