package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/earlfranciss/swiftshield/internal/backend"
	"github.com/earlfranciss/swiftshield/internal/bridge"
	"github.com/earlfranciss/swiftshield/internal/logging"
)

type fakeClassifier struct {
	calls  atomic.Int32
	mu     sync.Mutex
	last   backend.ClassifyRequest
	result *backend.ClassifyResult
	err    error
	block  bool
	panics bool
}

func (f *fakeClassifier) ClassifySMS(ctx context.Context, req backend.ClassifyRequest) (*backend.ClassifyResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()

	if f.panics {
		panic("classifier exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []bridge.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e bridge.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func phishingResult() *backend.ClassifyResult {
	return &backend.ClassifyResult{
		Classification: "phishing",
		LogDetails: map[string]any{
			"detectionId": "abc123",
			"source":      "12345",
			"preview":     "click http://evil...",
		},
	}
}

func newRunner(c Classifier, p Publisher, timeout time.Duration) *Runner {
	return NewRunner(c, p, timeout, nil, logging.Discard())
}

func TestRunPhishingPublishesOnce(t *testing.T) {
	c := &fakeClassifier{result: phishingResult()}
	p := &fakePublisher{}

	newRunner(c, p, time.Second).Run(context.Background(),
		[]byte(`{"body":"click http://evil.example","sender":"12345"}`))

	if len(p.events) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(p.events))
	}
	e := p.events[0]
	if e.Kind != bridge.KindThreatDetected || e.Threat == nil {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.Threat.DetectionID != "abc123" {
		t.Errorf("expected detection abc123, got %s", e.Threat.DetectionID)
	}
	if e.Threat.Sender != "12345" || e.Threat.Preview != "click http://evil..." {
		t.Errorf("unexpected threat %+v", e.Threat)
	}
	if c.last.Body != "click http://evil.example" || c.last.Sender != "12345" {
		t.Errorf("unexpected classify request %+v", c.last)
	}
}

func TestRunMalformedPayload(t *testing.T) {
	for _, payload := range []string{
		`{not json`,
		``,
		`[1,2,3]`,
		`{"sender":"12345"}`,
		`{"type":"CALL_RECEIVED","message":{"body":"x"}}`,
		`{"smsData":"{broken"}`,
	} {
		c := &fakeClassifier{result: phishingResult()}
		p := &fakePublisher{}

		newRunner(c, p, time.Second).Run(context.Background(), []byte(payload))

		if c.calls.Load() != 0 {
			t.Errorf("payload %q: classifier must not be called", payload)
		}
		if len(p.events) != 0 {
			t.Errorf("payload %q: expected no publish, got %d", payload, len(p.events))
		}
	}
}

func TestRunEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		sender  string
	}{
		{
			name:    "sms received",
			payload: `{"type":"SMS_RECEIVED","message":{"originatingAddress":"+63900","body":"hi"}}`,
			sender:  "+63900",
		},
		{
			name:    "sms data string",
			payload: `{"smsData":"{\"body\":\"hi\",\"sender\":\"BANK\",\"timestamp\":1700000000000}"}`,
			sender:  "BANK",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeClassifier{result: &backend.ClassifyResult{Classification: "safe"}}
			newRunner(c, &fakePublisher{}, time.Second).Run(context.Background(), []byte(tt.payload))

			if c.calls.Load() != 1 {
				t.Fatalf("expected one classification, got %d", c.calls.Load())
			}
			if c.last.Body != "hi" || c.last.Sender != tt.sender {
				t.Errorf("unexpected classify request %+v", c.last)
			}
		})
	}
}

func TestRunCleanAndFailuresDoNotPublish(t *testing.T) {
	tests := []struct {
		name string
		c    *fakeClassifier
	}{
		{"clean", &fakeClassifier{result: &backend.ClassifyResult{Classification: "safe"}}},
		{"backend error", &fakeClassifier{err: errors.New("502 bad gateway")}},
		{"phishing without details", &fakeClassifier{result: &backend.ClassifyResult{Classification: "phishing"}}},
		{"phishing without id", &fakeClassifier{result: &backend.ClassifyResult{
			Classification: "phishing",
			LogDetails:     map[string]any{"source": "x"},
		}}},
		{"panic", &fakeClassifier{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePublisher{}
			newRunner(tt.c, p, time.Second).Run(context.Background(), []byte(`{"body":"hi","sender":"1"}`))
			if len(p.events) != 0 {
				t.Errorf("expected no publish, got %d", len(p.events))
			}
		})
	}
}

func TestRunTimeout(t *testing.T) {
	c := &fakeClassifier{block: true}
	p := &fakePublisher{}

	done := make(chan struct{})
	go func() {
		newRunner(c, p, 30*time.Millisecond).Run(context.Background(), []byte(`{"body":"hi"}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after classification timeout")
	}
	if len(p.events) != 0 {
		t.Errorf("expected no publish after timeout, got %d", len(p.events))
	}
}

func TestRunPublishFailureIsContained(t *testing.T) {
	c := &fakeClassifier{result: phishingResult()}
	p := &fakePublisher{err: errors.New("nats: connection closed")}

	newRunner(c, p, time.Second).Run(context.Background(), []byte(`{"body":"hi"}`))

	if len(p.events) != 1 {
		t.Errorf("expected a single publish attempt, got %d", len(p.events))
	}
}

func TestThreatFromResultFallbacks(t *testing.T) {
	res := &backend.ClassifyResult{
		Classification: "phishing",
		LogDetails: map[string]any{
			"_id":     "log-1",
			"content": "verify your account now at http://bad.example",
		},
	}
	threat := ThreatFromResult(res, SMSPayload{Body: "ignored", Sender: "BANK"})

	if threat.DetectionID != "log-1" {
		t.Errorf("expected _id fallback, got %s", threat.DetectionID)
	}
	if threat.Sender != "BANK" {
		t.Errorf("expected payload sender fallback, got %s", threat.Sender)
	}
	if threat.Preview != "verify your account now at http://bad.example..." {
		t.Errorf("unexpected preview %q", threat.Preview)
	}
}
