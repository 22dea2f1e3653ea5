// Package mail polls a mailbox for new messages, has each one scanned by
// the backend and publishes the ones found to be phishing.
package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/earlfranciss/swiftshield/internal/backend"
	"github.com/earlfranciss/swiftshield/internal/bridge"
	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/store"
)

// PollState represents the current state of the poll loop.
type PollState int

const (
	PollIdle PollState = iota
	PollRunning
	PollError
	PollStopped
)

func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollRunning:
		return "polling"
	case PollError:
		return "error"
	default:
		return "stopped"
	}
}

// Status is a snapshot of the poller for display.
type Status struct {
	State    PollState
	LastPoll time.Time
	Error    error
	Scanned  int
	Threats  int
}

// pollTimeout is the maximum time allowed for a single poll.
const pollTimeout = 2 * time.Minute

const previewLen = 100

// Mailbox is the mail source the poller reads.
type Mailbox interface {
	LatestUID(ctx context.Context) (uint32, error)
	FetchSince(ctx context.Context, after uint32, limit int) ([]Message, error)
}

// Scanner classifies one message.
type Scanner interface {
	ScanEmail(ctx context.Context, req backend.EmailScanRequest) (*backend.ClassifyResult, error)
}

// Publisher hands events to the bridge.
type Publisher interface {
	Publish(ctx context.Context, e bridge.Event) error
}

// PollerConfig holds the poller's collaborators and settings.
type PollerConfig struct {
	Mailbox   Mailbox
	Scanner   Scanner
	Cursor    store.CursorStore
	Publisher Publisher
	Interval  time.Duration
	BatchSize int
	Logger    *log.Logger
}

// Poller is the mail channel listener. It polls on a ticker, scanning
// every message newer than the stored cursor. The first poll on a fresh
// store only records the newest UID, so existing mail is never scanned.
type Poller struct {
	mailbox   Mailbox
	scanner   Scanner
	cursor    store.CursorStore
	publisher Publisher
	interval  time.Duration
	batch     int
	logger    *log.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	done      chan struct{}
	triggerCh chan struct{}
	status    Status
}

// NewPoller creates a stopped poller.
func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	return &Poller{
		mailbox:   cfg.Mailbox,
		scanner:   cfg.Scanner,
		cursor:    cfg.Cursor,
		publisher: cfg.Publisher,
		interval:  interval,
		batch:     batch,
		logger:    cfg.Logger.With("component", "mail"),
		triggerCh: make(chan struct{}, 1),
		status:    Status{State: PollStopped},
	}
}

// Start launches the poll loop. The first poll runs immediately.
func (p *Poller) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.status = Status{State: PollIdle}

	go p.loop(p.stopCh, p.done)

	p.logger.Info("mail poller started", "interval", p.interval)
	return nil
}

// Stop halts the poll loop and waits for an in-progress poll to finish,
// or for ctx to expire.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	close(p.stopCh)
	done := p.done
	p.running = false
	p.status.State = PollStopped
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for mail poll to finish: %w", ctx.Err())
	}

	p.logger.Info("mail poller stopped")
	return nil
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Refresh triggers an immediate poll.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A poll is already pending.
	}
}

// Status returns a snapshot of the poller state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// loop runs until stopCh closes or the mailbox rejects our credentials.
func (p *Poller) loop(stopCh chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.poll(stopCh) {
		return
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		case <-p.triggerCh:
		}
		if p.poll(stopCh) {
			return
		}
	}
}

// poll runs one poll and reports whether the loop must end.
func (p *Poller) poll(stopCh chan struct{}) bool {
	p.setState(PollRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	// Abort the poll promptly on Stop.
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := p.pollOnce(ctx)
	switch {
	case err == nil:
		p.setState(PollIdle, nil)
		return false
	case IsAuthError(err):
		p.expire(ctx, stopCh, err)
		return true
	case errors.Is(err, context.Canceled):
		return true
	default:
		p.logger.Warn("mail poll failed", "err", err)
		p.setState(PollError, err)
		return false
	}
}

// pollOnce scans every message above the cursor, advancing the cursor
// after each one.
func (p *Poller) pollOnce(ctx context.Context) error {
	cursor, ok, err := p.cursor.GetMailCursor(ctx)
	if err != nil {
		return fmt.Errorf("reading mail cursor: %w", err)
	}

	if !ok {
		latest, err := p.mailbox.LatestUID(ctx)
		if err != nil {
			return err
		}
		if err := p.cursor.SetMailCursor(ctx, latest); err != nil {
			return fmt.Errorf("saving mail cursor: %w", err)
		}
		p.logger.Info("mail cursor initialized", "uid", latest)
		return nil
	}

	messages, err := p.mailbox.FetchSince(ctx, cursor, p.batch)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := p.scanner.ScanEmail(ctx, scanRequest(msg))
		switch {
		case backend.IsAuthError(err):
			// Leave the cursor so the message is scanned once the backend
			// accepts us again.
			return fmt.Errorf("scanning message %d: %w", msg.Envelope.UID, err)
		case err != nil:
			p.logger.Warn("scan failed, skipping message", "uid", msg.Envelope.UID, "err", err)
		default:
			p.handleResult(ctx, msg, res)
		}

		if err := p.cursor.SetMailCursor(ctx, msg.Envelope.UID); err != nil {
			return fmt.Errorf("saving mail cursor: %w", err)
		}
	}

	if len(messages) > 0 {
		p.logger.Debug("mail poll complete", "scanned", len(messages))
	}
	return nil
}

func (p *Poller) handleResult(ctx context.Context, msg Message, res *backend.ClassifyResult) {
	p.mu.Lock()
	p.status.Scanned++
	p.mu.Unlock()

	if !res.IsPhishingEmail() {
		return
	}

	threat := ThreatFromScan(res, msg)
	if err := p.publisher.Publish(ctx, bridge.ThreatDetected(threat)); err != nil {
		p.logger.Error("publishing mail threat", "detection", threat.DetectionID, "err", err)
		return
	}

	p.mu.Lock()
	p.status.Threats++
	p.mu.Unlock()
	p.logger.Info("mail threat published", "detection", threat.DetectionID, "sender", threat.Sender)
}

// expire marks the poller stopped and announces that the mail link
// expired. It runs on the loop goroutine, so a Stop issued by the expiry
// handler returns without waiting for this loop. When a Stop already ended
// this loop the expiry is only logged: the stopping caller is waiting for
// the loop and may hold locks the expiry handler needs.
func (p *Poller) expire(ctx context.Context, stopCh chan struct{}, cause error) {
	p.mu.Lock()
	current := p.running && p.stopCh == stopCh
	if current {
		p.running = false
		p.status.State = PollStopped
		p.status.Error = cause
	}
	p.mu.Unlock()

	if !current {
		p.logger.Warn("mail credentials rejected while stopping", "err", cause)
		return
	}

	p.logger.Warn("mail credentials rejected, stopping", "err", cause)

	err := p.publisher.Publish(ctx, bridge.ChannelExpired(model.ChannelExpiryEvent{
		Channel: model.ChannelGmail,
		Reason:  cause.Error(),
		At:      time.Now().UTC(),
	}))
	if err != nil {
		p.logger.Error("publishing mail expiry", "err", err)
	}
}

func (p *Poller) setState(state PollState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.status.State = state
	p.status.Error = err
	if state == PollIdle {
		p.status.LastPoll = time.Now()
	}
}

// scanRequest builds the backend scan body for msg.
func scanRequest(msg Message) backend.EmailScanRequest {
	req := backend.EmailScanRequest{
		MessageID:    msg.Envelope.MessageID,
		Source:       msg.Envelope.FromAddr,
		Subject:      msg.Envelope.Subject,
		BodyPlain:    msg.TextBody,
		BodyHTML:     msg.HTMLBody,
		DetectedURLs: msg.DetectURLs(),
	}
	if req.Source == "" {
		req.Source = msg.Envelope.From
	}
	if !msg.Envelope.Date.IsZero() {
		req.Date = msg.Envelope.Date.UTC().Format(time.RFC3339)
	}
	return req
}

// ThreatFromScan builds the mail threat event from a phishing verdict.
// The backend log id is the detection id; the Message-ID stands in when
// the backend did not log the scan.
func ThreatFromScan(res *backend.ClassifyResult, msg Message) model.ThreatEvent {
	id := res.FirstDetail("_id", "detectionId")
	if id == "" {
		id = msg.Envelope.MessageID
	}

	sender := res.FirstDetail("source", "sender")
	if sender == "" {
		sender = msg.Envelope.From
	}

	subject := res.Detail("subject")
	if subject == "" {
		subject = msg.Envelope.Subject
	}

	preview := res.FirstDetail("preview", "text_preview")
	if preview == "" && msg.TextBody != "" {
		preview = truncate(msg.TextBody, previewLen) + "..."
	}

	return model.ThreatEvent{
		Type:        model.ThreatGmail,
		DetectionID: id,
		Sender:      sender,
		Preview:     preview,
		Severity:    res.Detail("severity"),
		Subject:     subject,
		MessageID:   msg.Envelope.MessageID,
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
