package scheduler

import (
	"context"
	"time"

	"github.com/Elogic360/neatify/pkg/logger"
	"github.com/Elogic360/neatify/pkg/metrics"
	"github.com/robfig/cron/v3"
)

const cartSweepJob = "cart-expiration-sweep"

// Sweeper expires every active cart whose expiration is before now.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// CartExpirationScheduler runs the expiration sweep on a cron schedule.
type CartExpirationScheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	metrics  *metrics.CronJobMetrics
	now      func() time.Time
}

func NewCartExpirationScheduler(sweeper Sweeper, schedule string, jobMetrics *metrics.CronJobMetrics) *CartExpirationScheduler {
	return &CartExpirationScheduler{
		cron:     cron.New(),
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  time.Minute,
		metrics:  jobMetrics,
		now:      time.Now,
	}
}

// Start registers the sweep and starts the cron runner.
func (s *CartExpirationScheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		_ = s.RunOnce(context.Background())
	})
	if err != nil {
		logger.Error("Failed to add cron job for cart expiration sweep", err, map[string]interface{}{
			"schedule": s.schedule,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Cart expiration scheduler started", map[string]interface{}{
		"schedule": s.schedule,
	})
	return nil
}

// RunOnce performs a single sweep.
func (s *CartExpirationScheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	logger.Info("Starting scheduled cart expiration sweep", nil)

	count, err := s.sweeper.SweepExpired(ctx, s.now())
	s.metrics.ObserveDuration(cartSweepJob, time.Since(started))
	if err != nil {
		s.metrics.IncFailure(cartSweepJob)
		logger.Error("Failed to sweep expired carts", err)
		return err
	}

	s.metrics.IncSuccess(cartSweepJob)
	logger.Info("Cart expiration sweep completed", map[string]interface{}{
		"expired": count,
	})
	return nil
}

// Stop waits for a running sweep to finish.
func (s *CartExpirationScheduler) Stop() {
	logger.Info("Stopping cart expiration scheduler...", nil)
	<-s.cron.Stop().Done()
	logger.Info("Cart expiration scheduler stopped", nil)
}
