package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/metrics"
)

// QuarantineDispatcher decides and requests automatic quarantine of
// confirmed threats through the provider monitor's capability interface.
type QuarantineDispatcher struct {
	mu           sync.RWMutex
	capabilities map[string]QuarantineCapability

	stats    *StatisticsStore
	notifier Notifier
	logger   *zap.Logger
	metrics  *metrics.Metrics

	enabled     bool
	threshold   float64
	settleDelay time.Duration
}

// NewQuarantineDispatcher creates a quarantine dispatcher. Capabilities are
// registered per provider as monitors come online.
func NewQuarantineDispatcher(
	stats *StatisticsStore,
	notifier Notifier,
	logger *zap.Logger,
	m *metrics.Metrics,
	enabled bool,
	threshold float64,
	settleDelay time.Duration,
) *QuarantineDispatcher {
	return &QuarantineDispatcher{
		capabilities: make(map[string]QuarantineCapability),
		stats:        stats,
		notifier:     notifier,
		logger:       logger,
		metrics:      m,
		enabled:      enabled,
		threshold:    threshold,
		settleDelay:  settleDelay,
	}
}

// Register installs the quarantine capability for a provider, replacing any
// previous registration.
func (d *QuarantineDispatcher) Register(provider string, capability QuarantineCapability) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capabilities[provider] = capability
}

// MaybeQuarantine requests quarantine of a threat when auto-quarantine is
// enabled and the confidence exceeds the configured threshold. A bounded
// settle delay lets the host UI stabilize before the monitor acts. On total
// failure a user-visible notice is emitted and no further retry is made;
// threat statistics are left untouched.
func (d *QuarantineDispatcher) MaybeQuarantine(ctx context.Context, record *EmailRecord, result *AnalysisResult) {
	if !result.Threat || !d.enabled || result.Confidence <= d.threshold {
		return
	}

	capability := d.capabilityFor(record.Provider)
	if capability == nil {
		d.logger.Warn("No quarantine capability registered",
			zap.String("provider", record.Provider))
		d.reportFailure(ctx, record)
		return
	}

	if d.settleDelay > 0 {
		select {
		case <-time.After(d.settleDelay):
		case <-ctx.Done():
			return
		}
	}

	outcome, err := capability.AttemptQuarantine(ctx, record)
	if err != nil || outcome == nil || !outcome.OK {
		d.logger.Warn("Quarantine attempt failed",
			zap.Error(err),
			zap.String("provider", record.Provider),
			zap.String("sender", record.Sender))
		d.reportFailure(ctx, record)
		return
	}

	d.logger.Info("Email quarantined",
		zap.String("provider", record.Provider),
		zap.String("sender", record.Sender),
		zap.String("method", outcome.Method))
	if d.metrics != nil {
		d.metrics.Quarantined.Inc()
	}
	d.stats.RecordQuarantine(ctx)
}

func (d *QuarantineDispatcher) capabilityFor(provider string) QuarantineCapability {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.capabilities[provider]
}

func (d *QuarantineDispatcher) reportFailure(ctx context.Context, record *EmailRecord) {
	if d.notifier == nil {
		return
	}
	d.notifier.Notify(ctx, Notification{
		Title:    "Quarantine failed",
		Body:     fmt.Sprintf("Could not quarantine email from %s, please remove it manually", record.Sender),
		Severity: ThreatLevelHigh,
		Actions:  []string{"ViewDetails"},
	})
}
