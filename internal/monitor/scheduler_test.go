package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/earlfranciss/swiftshield/internal/logging"
	"github.com/earlfranciss/swiftshield/internal/monitor"
	"github.com/earlfranciss/swiftshield/tests/testutil"
)

func TestSchedulerRejectsBadSpec(t *testing.T) {
	orch := monitor.New(monitor.Config{Store: testutil.NewTestStore(t), Logger: logging.Discard()})

	if _, err := monitor.NewScheduler(orch, "every so often", logging.Discard()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	orch := monitor.New(monitor.Config{Store: testutil.NewTestStore(t), Logger: logging.Discard()})

	s, err := monitor.NewScheduler(orch, "@every 15m", logging.Discard())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	if ctx.Err() != nil {
		t.Error("idle scheduler should stop immediately")
	}
}
