package notify

import (
	"context"

	"github.com/earlfranciss/swiftshield/internal/model"
)

// SystemNotifier delivers a notification outside the application, for
// when the user is not looking at it.
type SystemNotifier interface {
	Notify(ctx context.Context, n model.SystemNotification) error
}

// Nop is a SystemNotifier that does nothing. Used when push is disabled
// and in tests.
type Nop struct{}

func (Nop) Notify(context.Context, model.SystemNotification) error { return nil }

// InApp receives toasts raised while the application is in the
// foreground. ShowToast reports whether the toast was accepted; a rejected
// toast is delivered as a system notification instead.
type InApp interface {
	ShowToast(t model.Toast) bool
}

// InAppFunc adapts a function to InApp.
type InAppFunc func(t model.Toast) bool

func (f InAppFunc) ShowToast(t model.Toast) bool { return f(t) }
