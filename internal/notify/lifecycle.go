package notify

import "sync"

// State is the process lifecycle state the router decides on.
type State int

const (
	Foreground State = iota
	Background
)

func (s State) String() string {
	switch s {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Source reports lifecycle transitions. Watch is called once and must
// arrange for update to be called on every transition.
type Source interface {
	Watch(update func(State))
}

// Lifecycle holds the most recently observed lifecycle state. It starts in
// the foreground, which is where the application is when it launches.
type Lifecycle struct {
	mu    sync.RWMutex
	state State

	once sync.Once
}

// NewLifecycle returns a lifecycle tracker in the foreground state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: Foreground}
}

// Install attaches src. Only the first call per Lifecycle has any effect;
// it returns false for every later call.
func (l *Lifecycle) Install(src Source) bool {
	installed := false
	l.once.Do(func() {
		src.Watch(l.set)
		installed = true
	})
	return installed
}

// State returns the last observed state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Foreground reports whether the last observed state is Foreground.
func (l *Lifecycle) Foreground() bool {
	return l.State() == Foreground
}

func (l *Lifecycle) set(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
