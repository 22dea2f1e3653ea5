// Package sms receives inbound SMS from a gateway webhook and hands each
// message to the background task runner.
package sms

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TokenHeader carries the shared webhook secret.
const TokenHeader = "X-Webhook-Token"

// maxPayload caps a single webhook body.
const maxPayload = 64 << 10

// Runner processes one SMS payload.
type Runner interface {
	Run(ctx context.Context, payload []byte)
}

// Listener serves the SMS webhook while the channel is on.
type Listener struct {
	addr   string
	token  string
	runner Runner
	logger *log.Logger

	mu      sync.Mutex
	srv     *http.Server
	ln      net.Listener
	running bool

	// inflight tracks payloads handed to the runner.
	inflight sync.WaitGroup
}

// NewListener creates a listener that binds addr on Start. An empty token
// disables the webhook secret check.
func NewListener(addr, token string, runner Runner, logger *log.Logger) *Listener {
	return &Listener{
		addr:   addr,
		token:  token,
		runner: runner,
		logger: logger.With("component", "sms"),
	}
}

// Start binds the webhook address and serves in the background. A bind
// failure is returned; starting a running listener is a no-op.
func (l *Listener) Start(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("binding sms webhook %s: %w", l.addr, err)
	}

	srv := &http.Server{
		Handler:           l.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("webhook server stopped", "err", err)
		}
	}()

	l.srv, l.ln, l.running = srv, ln, true
	l.logger.Info("sms webhook listening", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the server down and waits for in-flight payloads, or for ctx
// to expire.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	srv := l.srv
	l.srv, l.ln, l.running = nil, nil, false
	l.mu.Unlock()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down sms webhook: %w", err)
	}

	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight sms: %w", ctx.Err())
	}

	l.logger.Info("sms webhook stopped")
	return nil
}

// Running reports whether the webhook is being served.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Addr returns the bound address, or "" when stopped.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

// Handler returns the webhook routes.
func (l *Listener) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/sms", l.handleSMS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func (l *Listener) handleSMS(w http.ResponseWriter, r *http.Request) {
	if l.token != "" {
		got := r.Header.Get(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(l.token)) != 1 {
			http.Error(w, "invalid webhook token", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayload))
	if err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty payload", http.StatusBadRequest)
		return
	}

	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		l.runner.Run(context.Background(), body)
	}()

	w.WriteHeader(http.StatusAccepted)
}
