package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/logging"
	"github.com/dmitrijs2005/fieldauth/internal/server/metrics"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/tokens"
)

// Sweeper periodically purges revoked tokens and tokens that expired more
// than grace ago. The cutoff always lies in the past, so a token being
// issued or still active can never qualify.
type Sweeper struct {
	store    tokens.Store
	interval time.Duration
	grace    time.Duration
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewSweeper(store tokens.Store, interval, grace time.Duration, logger logging.Logger, m *metrics.Metrics) *Sweeper {
	if m == nil {
		m = metrics.New()
	}
	if grace < 0 {
		grace = 0
	}
	return &Sweeper{store: store, interval: interval, grace: grace, logger: logger, metrics: m, now: time.Now}
}

// RunOnce performs a single purge and returns the number of removed tokens.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	started := s.now()
	cutoff := started.Add(-s.grace)

	n, err := s.store.Purge(ctx, cutoff, false)
	s.metrics.SweepPurged.Add(float64(n))
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error(ctx, "token sweep failed", "removed", n, "error", err)
		return n, err
	}
	s.metrics.SweepRuns.WithLabelValues(metrics.ResultOK).Inc()
	s.logger.Info(ctx, "token sweep done", "removed", n, "cutoff", cutoff, "took", s.now().Sub(started))
	return n, nil
}

// Run sweeps every interval until ctx is done. A failed run is logged and
// retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "token sweeper started", "interval", s.interval, "grace", s.grace)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "token sweeper stopped")
			return nil
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}
