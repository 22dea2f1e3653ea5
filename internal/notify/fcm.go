package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/charmbracelet/log"
	"google.golang.org/api/option"

	"github.com/earlfranciss/swiftshield/internal/model"
)

// ErrNoDevices is returned by NewFCM when no device tokens are configured.
var ErrNoDevices = errors.New("no push device tokens configured")

// messageSender is the part of *messaging.Client FCM uses.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM delivers system notifications through Firebase Cloud Messaging to
// every configured device.
type FCM struct {
	client messageSender
	tokens []string
	logger *log.Logger
}

var _ SystemNotifier = (*FCM)(nil)

// NewFCM initializes a Firebase app from a service account file and
// returns a notifier for tokens.
func NewFCM(
	ctx context.Context,
	credentialsFile string,
	projectID string,
	tokens []string,
	logger *log.Logger,
) (*FCM, error) {
	if len(tokens) == 0 {
		return nil, ErrNoDevices
	}

	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting messaging client: %w", err)
	}

	return newFCM(client, tokens, logger), nil
}

func newFCM(client messageSender, tokens []string, logger *log.Logger) *FCM {
	return &FCM{
		client: client,
		tokens: tokens,
		logger: logger.With("component", "push"),
	}
}

// Notify sends n to every device. It fails only when no device accepted
// the message.
func (f *FCM) Notify(ctx context.Context, n model.SystemNotification) error {
	failed := 0
	for _, token := range f.tokens {
		msg := &messaging.Message{
			Notification: &messaging.Notification{
				Title: n.Title,
				Body:  n.Body,
			},
			Data:  n.Data,
			Token: token,
		}

		id, err := f.client.Send(ctx, msg)
		if err != nil {
			failed++
			f.logger.Warn("push failed", "device", tokenPrefix(token), "err", err)
			continue
		}
		f.logger.Debug("push sent", "device", tokenPrefix(token), "id", id)
	}

	if failed == len(f.tokens) {
		return fmt.Errorf("all %d push notification(s) failed", failed)
	}
	return nil
}

func tokenPrefix(token string) string {
	return token[:min(10, len(token))] + "..."
}
