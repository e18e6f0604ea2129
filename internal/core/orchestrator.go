package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/metrics"
)

// resyncTimeout bounds the fire-and-forget statistics resync issued after an
// authenticated analysis.
const resyncTimeout = 10 * time.Second

// Orchestrator composes the analysis pipeline: cache lookup, feature
// extraction, remote classification, local fallback, cache write and the
// asynchronous side effects (notification, quarantine, statistics).
//
// Analyze never fails from the caller's perspective: every path yields a
// usable result. The one surfaced condition is ErrAuthExpired, returned
// alongside a fallback result so the caller is never blocked on
// re-authentication.
type Orchestrator struct {
	classifier Classifier
	cache      ResultCache
	stats      *StatisticsStore
	session    *SessionContext
	notifier   Notifier
	quarantine *QuarantineDispatcher
	logger     *zap.Logger
	metrics    *metrics.Metrics

	enabled              bool
	cacheEnabled         bool
	cacheTTL             time.Duration
	notificationsEnabled bool
	whitelistedDomains   []string
}

// NewOrchestrator creates the analysis orchestrator.
func NewOrchestrator(
	classifier Classifier,
	cache ResultCache,
	stats *StatisticsStore,
	session *SessionContext,
	notifier Notifier,
	quarantine *QuarantineDispatcher,
	logger *zap.Logger,
	m *metrics.Metrics,
	enabled bool,
	cacheEnabled bool,
	cacheTTL time.Duration,
	notificationsEnabled bool,
	whitelistedDomains []string,
) *Orchestrator {
	normalized := make([]string, len(whitelistedDomains))
	for i, domain := range whitelistedDomains {
		normalized[i] = strings.ToLower(strings.TrimSpace(domain))
	}

	return &Orchestrator{
		classifier:           classifier,
		cache:                cache,
		stats:                stats,
		session:              session,
		notifier:             notifier,
		quarantine:           quarantine,
		logger:               logger,
		metrics:              m,
		enabled:              enabled,
		cacheEnabled:         cacheEnabled,
		cacheTTL:             cacheTTL,
		notificationsEnabled: notificationsEnabled,
		whitelistedDomains:   normalized,
	}
}

// Analyze runs the full pipeline for one email record. The returned error is
// nil except for ErrAuthExpired, and even then the result is a best-effort
// fallback classification.
func (o *Orchestrator) Analyze(ctx context.Context, record *EmailRecord) (*AnalysisResult, error) {
	started := time.Now()

	if record == nil {
		return nil, fmt.Errorf("analyze: nil email record")
	}

	// Scanning disabled: inert result, no cache interaction, no network.
	if !o.enabled {
		return inertResult("disabled"), nil
	}

	if o.isWhitelisted(record.Sender) {
		o.logger.Debug("Skipping analysis for whitelisted sender",
			zap.String("sender", record.Sender))
		return inertResult("whitelist"), nil
	}

	key := CacheKey(record)
	if o.cacheEnabled {
		if cached, ok := o.cache.Get(ctx, key); ok {
			o.logger.Debug("Cache hit", zap.String("key", key))
			if o.metrics != nil {
				o.metrics.CacheHits.Inc()
			}
			return cached, nil
		}
	}

	features := ExtractFeatures(record)

	result, authErr := o.classify(ctx, features, record)
	result.ProcessingTimeMs = time.Since(started).Milliseconds()

	// Fallback results are cached too; TTL eviction makes that cheap to
	// accept since local heuristics cost nothing to recompute.
	if o.cacheEnabled {
		o.cache.Set(ctx, key, result, o.cacheTTL)
	}

	o.fanOut(ctx, record, result)

	return result, authErr
}

// classify attempts remote classification and falls back to the local
// heuristic scorer on any exhausted failure. Only ErrAuthExpired is
// propagated, paired with the fallback result.
func (o *Orchestrator) classify(ctx context.Context, features *FeatureVector, record *EmailRecord) (*AnalysisResult, error) {
	result, err := o.classifier.Classify(ctx, features, record)
	if err == nil {
		return result, nil
	}

	if o.metrics != nil {
		o.metrics.Fallbacks.Inc()
	}

	local := ScoreLocally(features)

	if errors.Is(err, ErrAuthExpired) {
		// Credentials were already cleared by the client; surface the
		// condition so the user layer can re-authenticate.
		o.logger.Warn("Session expired during classification, using local scorer",
			zap.String("sender", record.Sender))
		return local, fmt.Errorf("classify %q: %w", record.Provider, ErrAuthExpired)
	}

	o.logger.Warn("Remote classification failed, using local scorer",
		zap.Error(err),
		zap.String("sender", record.Sender),
		zap.String("provider", record.Provider))
	return local, nil
}

// fanOut dispatches the side effects of a completed analysis. Notification,
// quarantine and the statistics resync are asynchronous and never fail the
// caller; the statistics update is synchronous so a follow-up snapshot
// observes it.
func (o *Orchestrator) fanOut(ctx context.Context, record *EmailRecord, result *AnalysisResult) {
	if o.metrics != nil {
		o.metrics.EmailsScanned.Inc()
		if result.Threat {
			o.metrics.ThreatsDetected.Inc()
		}
	}

	if result.Threat && o.notificationsEnabled && o.notifier != nil {
		detached := context.WithoutCancel(ctx)
		go o.notifier.Notify(detached, Notification{
			Title:    "Phishing threat detected",
			Body:     fmt.Sprintf("From %s: %s", record.Sender, record.Subject),
			Severity: result.ThreatLevel,
			Actions:  []string{"ViewDetails", "Quarantine"},
		})
	}

	o.stats.Record(ctx, record, result)

	if result.Threat && o.quarantine != nil {
		detached := context.WithoutCancel(ctx)
		go o.quarantine.MaybeQuarantine(detached, record, result)
	}

	if _, ok := o.session.Credentials(); ok {
		detached := context.WithoutCancel(ctx)
		go o.resyncStats(detached)
	}
}

// resyncStats pulls authoritative counters from the dashboard. Best-effort:
// failure is logged and never reaches the caller of Analyze.
func (o *Orchestrator) resyncStats(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, resyncTimeout)
	defer cancel()

	snapshot, err := o.classifier.FetchStats(ctx)
	if err != nil {
		o.logger.Debug("Statistics resync failed", zap.Error(err))
		return
	}
	o.stats.Overwrite(ctx, snapshot)
}

func (o *Orchestrator) isWhitelisted(sender string) bool {
	domain := domainOf(sender)
	if domain == "" {
		return false
	}
	for _, whitelisted := range o.whitelistedDomains {
		if whitelisted == domain {
			return true
		}
	}
	return false
}

// inertResult is the legit result returned when analysis is bypassed.
func inertResult(reason string) *AnalysisResult {
	return &AnalysisResult{
		Prediction:   PredictionLegit,
		Threat:       false,
		Confidence:   0,
		ThreatLevel:  ThreatLevelLow,
		ModelVersion: reason,
		AnalyzedAt:   time.Now(),
	}
}
