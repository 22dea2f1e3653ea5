package notify

import "sync"

// DedupState decides whether a detection was already notified.
type DedupState interface {
	ShouldSuppress(stream, id string) bool
	Record(stream, id string)
}

// LastIDDedup remembers only the last id per stream. A repeat separated by
// a different id in the same stream (A, B, A) is not suppressed.
type LastIDDedup struct {
	mu   sync.Mutex
	last map[string]string
}

var _ DedupState = (*LastIDDedup)(nil)

// NewLastIDDedup returns an empty dedup state.
func NewLastIDDedup() *LastIDDedup {
	return &LastIDDedup{last: make(map[string]string)}
}

// ShouldSuppress reports whether id equals the last id recorded for stream.
func (d *LastIDDedup) ShouldSuppress(stream, id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last[stream] == id
}

// Record makes id the last id for stream.
func (d *LastIDDedup) Record(stream, id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	d.last[stream] = id
	d.mu.Unlock()
}
