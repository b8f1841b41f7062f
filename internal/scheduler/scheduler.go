// Package scheduler refreshes the dashboard in the background so the cached
// snapshot stays warm between user visits. This is the service analogue of
// periodic background sync.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/mbeverdam/weatherdash/internal/dashboard"
)

// Scheduler periodically forces a dashboard refresh.
type Scheduler struct {
	scheduler *gocron.Scheduler
	dash      *dashboard.Dashboard
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler. A non-positive interval disables scheduling.
func New(dash *dashboard.Dashboard, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		dash:      dash,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic refresh job and starts the scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("background refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		view := s.dash.Refresh(ctx)
		s.logger.Debug("background refresh completed",
			zap.String("location", view.Location.Name),
			zap.Bool("synthetic", view.Weather.Synthetic))
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("background refresh scheduled", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
