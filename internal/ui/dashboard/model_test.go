package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/monitor"
)

func TestOutcome(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		intended bool
		res      monitor.ChannelResult
		want     string
	}{
		{"off", false, monitor.ChannelResult{}, "idle"},
		{"expired", false, monitor.ChannelResult{Err: errors.New("link expired"), At: now}, "expired"},
		{"not attempted yet", true, monitor.ChannelResult{}, "pending"},
		{"running", true, monitor.ChannelResult{Attempted: true, Started: true, At: now}, "running"},
		{"unlinked", true, monitor.ChannelResult{Skipped: true, At: now}, "not linked"},
		{"no listener", true, monitor.ChannelResult{Err: monitor.ErrNoService, At: now}, "unavailable"},
		{"start failed", true, monitor.ChannelResult{Attempted: true, Err: fmt.Errorf("bind: %w", errors.New("in use")), At: now}, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Outcome(tt.intended, tt.res)
			if got != tt.want {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestViewShowsChannels(t *testing.T) {
	m := New(80, 20)
	if !strings.Contains(m.View(), "Loading") {
		t.Error("expected loading placeholder before the first status")
	}

	m.SetStatus(
		model.MonitoringStatus{IsActive: true, SMS: true},
		map[model.Channel]monitor.ChannelResult{
			model.ChannelSMS: {Attempted: true, Started: true, At: time.Now()},
		},
	)
	view := m.View()
	for _, want := range []string{"SMS", "Mail", "ON", "OFF", "running", "Monitoring is on"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
