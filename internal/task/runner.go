// Package task is the unit of work run for each inbound message, possibly
// in a process other than the interactive application. It classifies the
// message once and publishes a threat event on a positive verdict.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/earlfranciss/swiftshield/internal/backend"
	"github.com/earlfranciss/swiftshield/internal/bridge"
	"github.com/earlfranciss/swiftshield/internal/metrics"
	"github.com/earlfranciss/swiftshield/internal/model"
)

// DefaultTimeout bounds a single classification.
const DefaultTimeout = 15 * time.Second

// Classification outcomes recorded in metrics.
const (
	ResultPhishing = "phishing"
	ResultClean    = "clean"
	ResultFailed   = "failed"
	ResultInvalid  = "invalid"
)

const previewLen = 100

// Classifier classifies one SMS against the backend.
type Classifier interface {
	ClassifySMS(ctx context.Context, req backend.ClassifyRequest) (*backend.ClassifyResult, error)
}

// Publisher hands events to the bridge.
type Publisher interface {
	Publish(ctx context.Context, e bridge.Event) error
}

// Runner processes payloads. A run is at most once: failures are logged
// and dropped, never retried.
type Runner struct {
	classifier Classifier
	publisher  Publisher
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *log.Logger
}

// NewRunner creates a runner. A non-positive timeout means DefaultTimeout.
func NewRunner(
	classifier Classifier,
	publisher Publisher,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *log.Logger,
) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		classifier: classifier,
		publisher:  publisher,
		timeout:    timeout,
		metrics:    m,
		logger:     logger.With("component", "task"),
	}
}

// Run processes one payload. It never returns an error and never lets a
// panic escape.
func (r *Runner) Run(ctx context.Context, payload []byte) {
	logger := r.logger.With("run", uuid.NewString()[:8])

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("task panicked", "panic", rec)
			r.metrics.Classified(ResultFailed)
		}
	}()

	result, err := r.run(ctx, payload, logger)
	r.metrics.Classified(result)
	if err != nil {
		logger.Warn("task dropped", "result", result, "err", err)
	}
}

func (r *Runner) run(ctx context.Context, payload []byte, logger *log.Logger) (string, error) {
	sms, err := ParsePayload(payload)
	if err != nil {
		return ResultInvalid, err
	}
	logger.Debug("processing sms", "sender", sms.From())

	classifyCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.classifier.ClassifySMS(classifyCtx, backend.ClassifyRequest{
		Body:      sms.Body,
		Sender:    sms.From(),
		Timestamp: sms.Timestamp,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ResultFailed, fmt.Errorf("classification timed out after %s: %w", r.timeout, err)
		}
		return ResultFailed, fmt.Errorf("classifying sms: %w", err)
	}

	if !res.IsPhishing() {
		logger.Debug("sms classified clean", "classification", res.Classification)
		return ResultClean, nil
	}
	if res.LogDetails == nil {
		return ResultFailed, errors.New("phishing verdict without log details")
	}

	threat := ThreatFromResult(res, sms)
	if !threat.Valid() {
		return ResultFailed, errors.New("phishing verdict without detection id")
	}

	if err := r.publisher.Publish(ctx, bridge.ThreatDetected(threat)); err != nil {
		return ResultFailed, fmt.Errorf("publishing threat %s: %w", threat.DetectionID, err)
	}

	logger.Info("threat published", "detection", threat.DetectionID, "sender", threat.Sender)
	return ResultPhishing, nil
}

// ThreatFromResult builds the SMS threat event from a phishing verdict.
func ThreatFromResult(res *backend.ClassifyResult, sms SMSPayload) model.ThreatEvent {
	sender := res.FirstDetail("source", "sender")
	if sender == "" {
		sender = sms.From()
	}

	preview := res.FirstDetail("text_preview", "preview")
	if preview == "" {
		if content := res.Detail("content"); content != "" {
			preview = truncate(content, previewLen) + "..."
		} else {
			preview = truncate(sms.Body, previewLen) + "..."
		}
	}

	return model.ThreatEvent{
		Type:        model.ThreatSMS,
		DetectionID: res.FirstDetail("detectionId", "_id"),
		Sender:      sender,
		Preview:     preview,
		Severity:    res.Detail("severity"),
		Timestamp:   time.Now().UTC(),
		Extra:       res.LogDetails,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
