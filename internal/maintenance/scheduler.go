// Package maintenance runs the periodic housekeeping tasks: cache sweeps
// and best-effort statistics resync with the remote dashboard.
package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
)

// Scheduler drives two independent periodic tasks. Both are best-effort:
// failures are logged and never halt the scheduler.
type Scheduler struct {
	cache      core.ResultCache
	classifier core.Classifier
	stats      *core.StatisticsStore
	session    *core.SessionContext
	logger     *zap.Logger

	sweepFreq  time.Duration
	resyncFreq time.Duration

	stopCh chan struct{}
}

// NewScheduler creates a maintenance scheduler.
func NewScheduler(
	cache core.ResultCache,
	classifier core.Classifier,
	stats *core.StatisticsStore,
	session *core.SessionContext,
	logger *zap.Logger,
	sweepFreq time.Duration,
	resyncFreq time.Duration,
) *Scheduler {
	return &Scheduler{
		cache:      cache,
		classifier: classifier,
		stats:      stats,
		session:    session,
		logger:     logger,
		sweepFreq:  sweepFreq,
		resyncFreq: resyncFreq,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the periodic tasks.
func (s *Scheduler) Start() {
	go s.runSweep()
	go s.runResync()
	s.logger.Info("Maintenance scheduler started",
		zap.Duration("sweep_frequency", s.sweepFreq),
		zap.Duration("resync_frequency", s.resyncFreq))
}

// Stop stops the periodic tasks.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runSweep() {
	ticker := time.NewTicker(s.sweepFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.cache.Cleanup(context.Background()); err != nil {
				s.logger.Error("Cache sweep failed", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runResync() {
	ticker := time.NewTicker(s.resyncFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.resync()
		case <-s.stopCh:
			return
		}
	}
}

// resync overwrites local counters with the dashboard's. Only runs with an
// authenticated session; the remote store is the source of truth once the
// user has logged in.
func (s *Scheduler) resync() {
	if _, ok := s.session.Credentials(); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snapshot, err := s.classifier.FetchStats(ctx)
	if err != nil {
		s.logger.Warn("Dashboard resync failed", zap.Error(err))
		return
	}

	s.stats.Overwrite(ctx, snapshot)
	s.logger.Debug("Statistics resynced from dashboard",
		zap.Int64("total_scanned", snapshot.TotalScanned),
		zap.Int64("threats_detected", snapshot.ThreatsDetected))
}
