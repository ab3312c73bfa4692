package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/xelth-com/proxyfleet/internal/config"
	"github.com/xelth-com/proxyfleet/internal/lifecycle"
)

// Scheduler runs the periodic lifecycle jobs: the sweep over all tracked
// proxies and the provider reconciliation pass.
type Scheduler struct {
	cfg        config.SchedulerConfig
	sweeper    *lifecycle.Sweeper
	reconciler *lifecycle.Reconciler
	cron       *cron.Cron
	mu         sync.Mutex
	running    bool
}

// New creates a Scheduler
func New(cfg config.SchedulerConfig, sweeper *lifecycle.Sweeper, reconciler *lifecycle.Reconciler) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		sweeper:    sweeper,
		reconciler: reconciler,
		cron:       cron.New(),
	}
}

// Start validates the configured schedules and begins running them. Jobs
// stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(s.cfg.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.SweepSchedule, err)
	}
	if _, err := cron.ParseStandard(s.cfg.ReconcileSchedule); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", s.cfg.ReconcileSchedule, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, func() {
		s.sweeper.TickAll(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.ReconcileSchedule, func() {
		s.reconciler.SyncAll(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	s.cron.Start()
	s.running = true

	log.WithFields(log.Fields{
		"sweep":     s.cfg.SweepSchedule,
		"reconcile": s.cfg.ReconcileSchedule,
	}).Info("scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	log.Info("scheduler stopped")
}
