package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// scanHistoryCap bounds the detection-event log.
	scanHistoryCap = 100
	// analysisHistoryCap bounds the richer classification log.
	analysisHistoryCap = 50

	statsStorageKey = "stats"
)

// StatisticsStore tracks running counters, the per-provider breakdown and
// the bounded history ring buffers. All methods are safe for concurrent use;
// Snapshot never exposes a torn read.
type StatisticsStore struct {
	mu sync.RWMutex

	totalScanned      int64
	threatsDetected   int64
	emailsQuarantined int64
	lastScan          time.Time
	providerStats     map[string]ProviderStats

	scanHistory     []ScanEvent
	analysisHistory []AnalysisEvent

	store  KeyValueStore
	logger *zap.Logger
}

// persistedStats is the storage shape of the counters. History buffers are
// persisted alongside so a restart does not blank the dashboard.
type persistedStats struct {
	Snapshot        StatisticsSnapshot `json:"snapshot"`
	ScanHistory     []ScanEvent        `json:"scan_history"`
	AnalysisHistory []AnalysisEvent    `json:"analysis_history"`
}

// NewStatisticsStore creates a statistics store, restoring persisted
// counters from the key-value store when present.
func NewStatisticsStore(store KeyValueStore, logger *zap.Logger) *StatisticsStore {
	s := &StatisticsStore{
		providerStats: make(map[string]ProviderStats),
		store:         store,
		logger:        logger,
	}

	if store != nil {
		if raw, err := store.Get(context.Background(), statsStorageKey); err == nil && len(raw) > 0 {
			var saved persistedStats
			if err := json.Unmarshal(raw, &saved); err != nil {
				logger.Warn("Discarding unreadable persisted statistics", zap.Error(err))
			} else {
				s.totalScanned = saved.Snapshot.TotalScanned
				s.threatsDetected = saved.Snapshot.ThreatsDetected
				s.emailsQuarantined = saved.Snapshot.EmailsQuarantined
				s.lastScan = saved.Snapshot.LastScan
				for provider, ps := range saved.Snapshot.ProviderStats {
					s.providerStats[provider] = ps
				}
				s.scanHistory = saved.ScanHistory
				s.analysisHistory = saved.AnalysisHistory
			}
		}
	}

	return s
}

// Record updates all counters and both history buffers for one completed
// analysis.
func (s *StatisticsStore) Record(ctx context.Context, record *EmailRecord, result *AnalysisResult) {
	now := time.Now()

	s.mu.Lock()
	s.totalScanned++
	if result.Threat {
		s.threatsDetected++
	}
	s.lastScan = now

	ps := s.providerStats[record.Provider]
	ps.Scanned++
	if result.Threat {
		ps.Threats++
	}
	s.providerStats[record.Provider] = ps

	s.scanHistory = appendCapped(s.scanHistory, ScanEvent{
		Timestamp:   now,
		Provider:    record.Provider,
		Sender:      record.Sender,
		Subject:     record.Subject,
		Threat:      result.Threat,
		Confidence:  result.Confidence,
		ThreatLevel: result.ThreatLevel,
	}, scanHistoryCap)

	s.analysisHistory = appendCapped(s.analysisHistory, AnalysisEvent{
		Timestamp: now,
		Provider:  record.Provider,
		Sender:    record.Sender,
		Subject:   record.Subject,
		Result:    result,
	}, analysisHistoryCap)
	s.mu.Unlock()

	s.persist(ctx)
}

// RecordExternal applies a monitor-reported scan that did not pass through
// the orchestrator.
func (s *StatisticsStore) RecordExternal(ctx context.Context, isThreat bool, provider string) {
	s.mu.Lock()
	s.totalScanned++
	if isThreat {
		s.threatsDetected++
	}
	s.lastScan = time.Now()

	ps := s.providerStats[provider]
	ps.Scanned++
	if isThreat {
		ps.Threats++
	}
	s.providerStats[provider] = ps
	s.mu.Unlock()

	s.persist(ctx)
}

// RecordQuarantine counts one successfully quarantined email.
func (s *StatisticsStore) RecordQuarantine(ctx context.Context) {
	s.mu.Lock()
	s.emailsQuarantined++
	s.mu.Unlock()

	s.persist(ctx)
}

// Overwrite replaces the aggregate counters with authoritative values from
// the remote dashboard. History buffers and the provider breakdown are local
// only and stay untouched.
func (s *StatisticsStore) Overwrite(ctx context.Context, snapshot *StatisticsSnapshot) {
	s.mu.Lock()
	s.totalScanned = snapshot.TotalScanned
	s.threatsDetected = snapshot.ThreatsDetected
	s.emailsQuarantined = snapshot.EmailsQuarantined
	s.mu.Unlock()

	s.persist(ctx)
}

// Snapshot returns an immutable copy of the counters for display.
func (s *StatisticsStore) Snapshot() *StatisticsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	providers := make(map[string]ProviderStats, len(s.providerStats))
	for provider, ps := range s.providerStats {
		providers[provider] = ps
	}

	return &StatisticsSnapshot{
		TotalScanned:      s.totalScanned,
		ThreatsDetected:   s.threatsDetected,
		EmailsQuarantined: s.emailsQuarantined,
		LastScan:          s.lastScan,
		ProviderStats:     providers,
	}
}

// ScanHistory returns a copy of the detection-event log, oldest first.
func (s *StatisticsStore) ScanHistory() []ScanEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]ScanEvent, len(s.scanHistory))
	copy(history, s.scanHistory)
	return history
}

// AnalysisHistory returns a copy of the classification log, oldest first.
func (s *StatisticsStore) AnalysisHistory() []AnalysisEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]AnalysisEvent, len(s.analysisHistory))
	copy(history, s.analysisHistory)
	return history
}

// persist writes the current state through the key-value store. Best-effort:
// failures are logged, never propagated.
func (s *StatisticsStore) persist(ctx context.Context) {
	if s.store == nil {
		return
	}

	s.mu.RLock()
	saved := persistedStats{
		Snapshot: StatisticsSnapshot{
			TotalScanned:      s.totalScanned,
			ThreatsDetected:   s.threatsDetected,
			EmailsQuarantined: s.emailsQuarantined,
			LastScan:          s.lastScan,
			ProviderStats:     make(map[string]ProviderStats, len(s.providerStats)),
		},
		ScanHistory:     append([]ScanEvent(nil), s.scanHistory...),
		AnalysisHistory: append([]AnalysisEvent(nil), s.analysisHistory...),
	}
	for provider, ps := range s.providerStats {
		saved.Snapshot.ProviderStats[provider] = ps
	}
	s.mu.RUnlock()

	raw, err := json.Marshal(&saved)
	if err == nil {
		err = s.store.Set(ctx, statsStorageKey, raw)
	}
	if err != nil {
		s.logger.Error("Failed to persist statistics", zap.Error(err))
	}
}

// appendCapped appends to a FIFO ring buffer, evicting the oldest entry once
// the cap is reached.
func appendCapped[T any](buf []T, entry T, limit int) []T {
	buf = append(buf, entry)
	if len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return buf
}
