package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// reconcileTimeout bounds one reconcile pass.
const reconcileTimeout = time.Minute

// Scheduler runs Reconcile on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *log.Logger
}

// NewScheduler schedules o.Reconcile with spec, a standard cron
// expression or a descriptor such as "@every 15m".
func NewScheduler(o *Orchestrator, spec string, logger *log.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	s := &Scheduler{
		cron:   c,
		logger: logger.With("component", "reconcile"),
	}

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		s.logger.Debug("reconcile pass")
		o.Reconcile(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("parsing reconcile schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("reconcile pass still running at shutdown")
	}
}
