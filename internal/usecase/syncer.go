package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"Prospector/internal/logging"
	"Prospector/internal/ports"
)

// Syncer wires the interval driver with the controller's periodic sync.
type Syncer struct {
	driver     ports.Scheduler
	controller *Controller
	logger     *slog.Logger
	running    atomic.Bool
}

// NewSyncer returns a helper to start/stop periodic remote sync.
func NewSyncer(driver ports.Scheduler, controller *Controller, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Syncer{driver: driver, controller: controller, logger: logger}
}

// Start registers the sync job with the provided scheduler.
func (s *Syncer) Start(ctx context.Context) error {
	if s.driver == nil || s.controller == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) {
		s.Tick(ctx, trigger)
	})
}

// Tick runs one sync pass. A tick arriving while the previous pass is still
// running is skipped.
func (s *Syncer) Tick(ctx context.Context, trigger time.Time) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("sync skipped, previous pass still running", "trigger", trigger)
		return
	}
	defer s.running.Store(false)

	reports := s.controller.SyncAll(ctx)
	failed := 0
	for _, r := range reports {
		if r.LocalOnly() || r.Local != nil {
			failed++
		}
	}
	s.logger.Debug("sync pass finished", "pipelines", len(reports), "degraded", failed)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Syncer) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
