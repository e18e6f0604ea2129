package core

import (
	"context"
	"time"
)

// Classifier defines the interface to the remote classification service.
type Classifier interface {
	// Classify submits a feature vector and email summary for remote
	// classification. It fails only by exhausting retries or on
	// ErrAuthExpired; the orchestrator decides whether to fall back.
	Classify(ctx context.Context, features *FeatureVector, record *EmailRecord) (*AnalysisResult, error)

	// FetchStats pulls authoritative aggregate counters from the dashboard.
	FetchStats(ctx context.Context) (*StatisticsSnapshot, error)

	// ReportFalsePositive notifies the service of a misclassification.
	// Best-effort, fire-and-forget from the caller's perspective.
	ReportFalsePositive(ctx context.Context, record *EmailRecord, result *AnalysisResult) error
}

// ResultCache defines the interface for caching analysis results by content
// hash. Get must never return an entry older than its TTL; expired entries
// are treated as misses but deleted only by Cleanup.
type ResultCache interface {
	// Get retrieves a cached result, reporting whether a fresh entry exists.
	Get(ctx context.Context, key string) (*AnalysisResult, bool)

	// Set stores a result under key, overwriting any existing entry.
	Set(ctx context.Context, key string, result *AnalysisResult, ttl time.Duration)

	// Cleanup removes all expired entries.
	Cleanup(ctx context.Context) error
}

// KeyValueStore models the host's persistent key-value storage. Operations
// are atomic per key; no ordering is guaranteed across distinct keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Notifier is the external notification sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// QuarantineCapability is the minimal operation a provider monitor must
// implement for the core to drive quarantine generically. The monitor owns
// the action chain (primary control, then simulated shortcut) and reports
// which method succeeded.
type QuarantineCapability interface {
	AttemptQuarantine(ctx context.Context, record *EmailRecord) (*QuarantineOutcome, error)
}
