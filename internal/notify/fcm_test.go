package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"firebase.google.com/go/v4/messaging"

	"github.com/earlfranciss/swiftshield/internal/logging"
	"github.com/earlfranciss/swiftshield/internal/model"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []*messaging.Message
	failFor  map[string]bool
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
	if f.failFor[m.Token] {
		return "", errors.New("unregistered")
	}
	return "projects/p/messages/1", nil
}

func TestFCMSendsToEveryDevice(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{"bad-token": true}}
	n := newFCM(sender, []string{"good-token", "bad-token"}, logging.Discard())

	err := n.Notify(context.Background(), model.SystemNotification{
		Title: AlertTitle,
		Body:  "SMS from 12345: hi...",
		Data:  map[string]string{"detectionId": "abc123"},
	})
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(sender.messages) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	if msg.Notification.Title != AlertTitle || msg.Data["detectionId"] != "abc123" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestFCMAllFailed(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{"t1": true}}
	n := newFCM(sender, []string{"t1"}, logging.Discard())

	if err := n.Notify(context.Background(), model.SystemNotification{}); err == nil {
		t.Error("expected error when every device failed")
	}
}

func TestNewFCMRequiresDevices(t *testing.T) {
	_, err := NewFCM(context.Background(), "", "", nil, logging.Discard())
	if !errors.Is(err, ErrNoDevices) {
		t.Errorf("expected ErrNoDevices, got %v", err)
	}
}
