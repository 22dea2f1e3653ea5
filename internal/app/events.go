package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/notify"
)

// toastMsg carries a toast raised by the router to the UI.
type toastMsg struct {
	toast model.Toast
}

// toastExpiredMsg is the auto dismiss for the toast shown with token.
type toastExpiredMsg struct {
	token uint64
}

// changedMsg is sent when the orchestrator reports a change.
type changedMsg struct{}

// ToastQueue is the router's in-app sink. Toasts are buffered until the
// UI picks them up.
type ToastQueue struct {
	ch chan model.Toast
}

var _ notify.InApp = (*ToastQueue)(nil)

// NewToastQueue creates a queue holding up to size pending toasts.
func NewToastQueue(size int) *ToastQueue {
	return &ToastQueue{ch: make(chan model.Toast, size)}
}

// ShowToast queues t for display. It never blocks: when the UI has fallen
// behind, t is rejected and the router sends it as a system notification.
func (q *ToastQueue) ShowToast(t model.Toast) bool {
	select {
	case q.ch <- t:
		return true
	default:
		return false
	}
}

// wait returns a tea.Cmd that delivers the next queued toast.
func (q *ToastQueue) wait() tea.Cmd {
	return func() tea.Msg {
		t, ok := <-q.ch
		if !ok {
			return nil
		}
		return toastMsg{toast: t}
	}
}

// waitForChange returns a tea.Cmd that fires on the next signal from ch.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

// FocusSource turns terminal focus reports into lifecycle transitions.
// Focus gained means foreground, focus lost means background.
type FocusSource struct {
	mu     sync.Mutex
	update func(notify.State)
}

var _ notify.Source = (*FocusSource)(nil)

// Watch registers the lifecycle callback.
func (f *FocusSource) Watch(update func(notify.State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.update = update
}

// Report forwards s to the registered callback, if any.
func (f *FocusSource) Report(s notify.State) {
	f.mu.Lock()
	update := f.update
	f.mu.Unlock()
	if update != nil {
		update(s)
	}
}
