package notify

import (
	"sync"
	"time"

	"github.com/earlfranciss/swiftshield/internal/model"
)

// ToastTimeout is how long a toast stays up without interaction.
const ToastTimeout = 5 * time.Second

// Banner holds the toast currently on screen. Each Show returns a token;
// an Expire carrying an outdated token is ignored, which is how a pending
// auto dismiss gets cancelled by a newer toast or by interaction.
type Banner struct {
	mu      sync.Mutex
	current *model.Toast
	token   uint64
}

// Show puts t on screen and returns the token its auto dismiss must carry.
func (b *Banner) Show(t model.Toast) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token++
	b.current = &t
	return b.token
}

// Expire clears the toast if token still identifies it. It reports whether
// anything was cleared.
func (b *Banner) Expire(token uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || token != b.token {
		return false
	}
	b.current = nil
	return true
}

// Interact takes the toast off screen for the detail view and cancels its
// pending auto dismiss.
func (b *Banner) Interact() (model.Toast, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return model.Toast{}, false
	}
	t := *b.current
	b.current = nil
	b.token++
	return t, true
}

// Dismiss clears the toast without opening it.
func (b *Banner) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
	b.token++
}

// Current returns the toast on screen, if any.
func (b *Banner) Current() (model.Toast, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return model.Toast{}, false
	}
	return *b.current, true
}
