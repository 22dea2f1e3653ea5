package bridge

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"

	"github.com/earlfranciss/swiftshield/internal/logging"
	"github.com/earlfranciss/swiftshield/internal/model"
)

const deliveryWait = 2 * time.Second

// natsPair returns an app-side and a publisher-side bridge connected to a
// fresh embedded server.
func natsPair(t *testing.T, drops DropRecorder) (sub, pub *NATS) {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	sub, err := DialNATS(srv.ClientURL(), "app", nil, logging.Discard())
	if err != nil {
		t.Fatalf("DialNATS app: %v", err)
	}
	t.Cleanup(func() { _ = sub.Close() })

	pub, err = DialNATS(srv.ClientURL(), "shieldtask", drops, logging.Discard())
	if err != nil {
		t.Fatalf("DialNATS shieldtask: %v", err)
	}
	t.Cleanup(func() { _ = pub.Close() })
	return sub, pub
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(deliveryWait):
		t.Fatal("timed out waiting for delivery")
		return ""
	}
}

func TestNATSDeliversAcrossConnections(t *testing.T) {
	drops := &fakeDrops{}
	sub, pub := natsPair(t, drops)

	got := make(chan string, 1)
	release := make(chan struct{})
	_, err := sub.Subscribe(KindThreatDetected, func(_ context.Context, e Event) {
		got <- e.Threat.DetectionID
		<-release
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer close(release)

	// The handler blocks, so Publish only returns in time if the ack is sent first.
	start := time.Now()
	if err := pub.Publish(context.Background(), threat("abc123")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= publishTimeout {
		t.Errorf("publisher waited on the handler for %s", elapsed)
	}

	if id := receive(t, got); id != "abc123" {
		t.Errorf("expected abc123, got %s", id)
	}
	if len(drops.kinds) != 0 {
		t.Errorf("expected no drops, got %v", drops.kinds)
	}
}

func TestNATSDropsWithoutSubscriber(t *testing.T) {
	drops := &fakeDrops{}
	_, pub := natsPair(t, drops)

	if err := pub.Publish(context.Background(), threat("a")); err != nil {
		t.Fatalf("expected nil error on drop, got %v", err)
	}
	if err := pub.Publish(context.Background(), ChannelExpired(model.ChannelExpiryEvent{Channel: model.ChannelGmail})); err != nil {
		t.Fatalf("expected nil error on drop, got %v", err)
	}

	drops.mu.Lock()
	defer drops.mu.Unlock()
	want := []string{string(KindThreatDetected), string(KindChannelExpired)}
	if len(drops.kinds) != len(want) {
		t.Fatalf("expected drops %v, got %v", want, drops.kinds)
	}
	for i, kind := range want {
		if drops.kinds[i] != kind {
			t.Errorf("drop %d: expected %s, got %s", i, kind, drops.kinds[i])
		}
	}
}

func TestNATSResubscribeReplacesHandler(t *testing.T) {
	drops := &fakeDrops{}
	sub, pub := natsPair(t, drops)

	first := make(chan string, 4)
	second := make(chan string, 4)
	oldSub, err := sub.Subscribe(KindThreatDetected, func(_ context.Context, e Event) {
		first <- e.Threat.DetectionID
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	newSub, err := sub.Subscribe(KindThreatDetected, func(_ context.Context, e Event) {
		second <- e.Threat.DetectionID
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// A stale subscription must not remove its replacement.
	oldSub.Unsubscribe()

	if err := pub.Publish(context.Background(), threat("a")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id := receive(t, second); id != "a" {
		t.Errorf("expected a on the replacement, got %s", id)
	}
	select {
	case id := <-first:
		t.Errorf("replaced handler received %s", id)
	default:
	}

	newSub.Unsubscribe()
	if err := pub.Publish(context.Background(), threat("b")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	drops.mu.Lock()
	defer drops.mu.Unlock()
	if len(drops.kinds) != 1 {
		t.Errorf("expected the event after Unsubscribe to be dropped, got %v", drops.kinds)
	}
}

func TestNATSIgnoresInvalidPayload(t *testing.T) {
	sub, _ := natsPair(t, nil)

	got := make(chan string, 1)
	_, err := sub.Subscribe(KindThreatDetected, func(_ context.Context, e Event) {
		got <- e.Threat.DetectionID
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Malformed events are still acknowledged but never reach the handler.
	if _, err := sub.nc.Request(Subject(KindThreatDetected), []byte("not json"), deliveryWait); err != nil {
		t.Fatalf("Request: %v", err)
	}
	select {
	case id := <-got:
		t.Errorf("handler ran for an invalid payload: %q", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNATSPublishAfterCloseFails(t *testing.T) {
	_, pub := natsPair(t, nil)

	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pub.Publish(context.Background(), threat("a")); err == nil {
		t.Error("expected an error publishing on a closed bridge")
	}
}
