package engine

import (
	"context"
	"fmt"
	"time"

	"trade_engine/internal/modules/config"
	"trade_engine/pkg/logger"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Scheduler drives the orchestrator's cycles. Every job is wrapped in
// SkipIfStillRunning, so a scan that outlives its interval delays the next
// tick instead of stacking a concurrent run.
type Scheduler struct {
	cron *cron.Cron
	orch *Orchestrator
	cfg  *config.Config
}

func NewScheduler(orch *Orchestrator, cfg *config.Config) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "timezone %q", cfg.Timezone)
	}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLog{})),
	)
	return &Scheduler{cron: c, orch: orch, cfg: cfg}, nil
}

// Start registers the recurring jobs and launches the cron loop. The context
// bounds every cycle the scheduler triggers.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"scan", every(s.cfg.ScanInterval), func() { s.orch.RunScanCycle(ctx) }},
		{"monitor", every(s.cfg.MonitorInterval), func() { s.orch.RunMonitorCycle(ctx) }},
		{"daily_reset", s.cfg.DailyResetCron, func() { s.orch.DailyReset(ctx) }},
		{"heartbeat", every(s.cfg.HealthInterval), s.orch.Heartbeat},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return errors.Wrapf(err, "schedule %s (%q)", j.name, j.spec)
		}
		logger.Info("[SCHEDULER] %s: %s", j.name, j.spec)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("[SCHEDULER] stopped")
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

type cronLog struct{}

func (cronLog) Info(msg string, kv ...interface{}) {
	logger.Info("[SCHEDULER] %s %v", msg, kv)
}

func (cronLog) Error(err error, msg string, kv ...interface{}) {
	logger.Error("[SCHEDULER] %s: %v %v", msg, err, kv)
}
