package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler runs a named task on a fixed interval until stopped. Used for
// the challenge expiry sweep and rate-limiter pruning.
type Scheduler struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
	logger   *logrus.Logger
	stopCh   chan struct{}
}

func NewScheduler(name string, interval time.Duration, task func(ctx context.Context) error, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("task", s.name).Info("Starting scheduler")

	s.run(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.WithField("task", s.name).Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.WithField("task", s.name).Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run(ctx context.Context) {
	if err := s.task(ctx); err != nil {
		s.logger.WithError(err).WithField("task", s.name).Error("Scheduled task failed")
	}
}
