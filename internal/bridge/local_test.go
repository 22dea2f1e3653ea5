package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/earlfranciss/swiftshield/internal/logging"
	"github.com/earlfranciss/swiftshield/internal/model"
)

type fakeDrops struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeDrops) BridgeDropped(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func threat(id string) Event {
	return ThreatDetected(model.ThreatEvent{Type: model.ThreatSMS, DetectionID: id})
}

func TestLocalDeliversToSubscriber(t *testing.T) {
	b := NewLocal(nil, logging.Discard())

	var got []string
	_, err := b.Subscribe(KindThreatDetected, func(_ context.Context, e Event) {
		got = append(got, e.Threat.DetectionID)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish(context.Background(), threat("abc123")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0] != "abc123" {
		t.Errorf("expected one delivery of abc123, got %v", got)
	}
}

func TestLocalResubscribeReplacesHandler(t *testing.T) {
	b := NewLocal(nil, logging.Discard())

	var first, second int
	oldSub, _ := b.Subscribe(KindThreatDetected, func(context.Context, Event) { first++ })
	_, _ = b.Subscribe(KindThreatDetected, func(context.Context, Event) { second++ })

	_ = b.Publish(context.Background(), threat("a"))
	if first != 0 || second != 1 {
		t.Errorf("expected only the new handler to run, got first=%d second=%d", first, second)
	}

	// A stale subscription must not remove its replacement.
	oldSub.Unsubscribe()
	_ = b.Publish(context.Background(), threat("b"))
	if second != 2 {
		t.Errorf("expected replacement to survive stale Unsubscribe, got %d deliveries", second)
	}
}

func TestLocalDropsWithoutSubscriber(t *testing.T) {
	drops := &fakeDrops{}
	b := NewLocal(drops, logging.Discard())

	if err := b.Publish(context.Background(), threat("a")); err != nil {
		t.Fatalf("expected nil error on drop, got %v", err)
	}

	sub, _ := b.Subscribe(KindThreatDetected, func(context.Context, Event) {
		t.Error("handler must not run after Unsubscribe")
	})
	sub.Unsubscribe()
	sub.Unsubscribe()

	if err := b.Publish(context.Background(), threat("b")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(drops.kinds) != 2 {
		t.Fatalf("expected 2 drops, got %v", drops.kinds)
	}
	if drops.kinds[0] != string(KindThreatDetected) {
		t.Errorf("expected drop kind %s, got %s", KindThreatDetected, drops.kinds[0])
	}
}

func TestLocalKindsAreIndependent(t *testing.T) {
	b := NewLocal(nil, logging.Discard())

	var expired []model.Channel
	_, _ = b.Subscribe(KindChannelExpired, func(_ context.Context, e Event) {
		expired = append(expired, e.Expiry.Channel)
	})

	_ = b.Publish(context.Background(), threat("a"))
	_ = b.Publish(context.Background(), ChannelExpired(model.ChannelExpiryEvent{Channel: model.ChannelGmail}))

	if len(expired) != 1 || expired[0] != model.ChannelGmail {
		t.Errorf("expected one gmail expiry, got %v", expired)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	b := NewLocal(nil, logging.Discard())

	if _, err := b.Subscribe("smsReceived", func(context.Context, Event) {}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind from Subscribe, got %v", err)
	}
	if err := b.Publish(context.Background(), Event{Kind: "smsReceived"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind from Publish, got %v", err)
	}
	if err := b.Publish(context.Background(), Event{Kind: KindThreatDetected}); err == nil {
		t.Error("expected error for missing payload")
	}
}

func TestEventWireFormat(t *testing.T) {
	data, err := json.Marshal(threat("abc123"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if raw["kind"] != "threatDetected" {
		t.Errorf("expected kind threatDetected, got %v", raw["kind"])
	}
	if _, ok := raw["expiry"]; ok {
		t.Error("expiry must be omitted on threat events")
	}
	if got := Subject(KindChannelExpired); got != "swiftshield.channelExpired" {
		t.Errorf("unexpected subject %s", got)
	}
}
