package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/core"
)

type countingCache struct {
	mu       sync.Mutex
	cleanups int
}

func (c *countingCache) Get(ctx context.Context, key string) (*core.AnalysisResult, bool) {
	return nil, false
}

func (c *countingCache) Set(ctx context.Context, key string, result *core.AnalysisResult, ttl time.Duration) {
}

func (c *countingCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups++
	return nil
}

func (c *countingCache) cleanupCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanups
}

type statsOnlyClassifier struct {
	mu       sync.Mutex
	fetches  int
	snapshot *core.StatisticsSnapshot
}

func (c *statsOnlyClassifier) Classify(ctx context.Context, features *core.FeatureVector, record *core.EmailRecord) (*core.AnalysisResult, error) {
	return nil, core.ErrRetriesExhausted
}

func (c *statsOnlyClassifier) FetchStats(ctx context.Context) (*core.StatisticsSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	return c.snapshot, nil
}

func (c *statsOnlyClassifier) ReportFalsePositive(ctx context.Context, record *core.EmailRecord, result *core.AnalysisResult) error {
	return nil
}

func (c *statsOnlyClassifier) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func TestSchedulerSweepsCachePeriodically(t *testing.T) {
	defer goleak.VerifyNone(t)

	cache := &countingCache{}
	classifier := &statsOnlyClassifier{snapshot: &core.StatisticsSnapshot{}}
	stats := core.NewStatisticsStore(nil, zap.NewNop())
	session := core.NewSessionContext(nil, zap.NewNop())

	scheduler := NewScheduler(cache, classifier, stats, session, zap.NewNop(),
		5*time.Millisecond, time.Hour)
	scheduler.Start()

	require.Eventually(t, func() bool {
		return cache.cleanupCount() >= 2
	}, 2*time.Second, time.Millisecond)

	scheduler.Stop()
}

func TestSchedulerResyncRequiresSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	cache := &countingCache{}
	classifier := &statsOnlyClassifier{snapshot: &core.StatisticsSnapshot{TotalScanned: 500}}
	stats := core.NewStatisticsStore(nil, zap.NewNop())
	session := core.NewSessionContext(nil, zap.NewNop())

	scheduler := NewScheduler(cache, classifier, stats, session, zap.NewNop(),
		time.Hour, 5*time.Millisecond)
	scheduler.Start()
	defer scheduler.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, classifier.fetchCount(), "no resync without a session")

	session.Set(context.Background(), &core.Credentials{Token: "tok", UserID: "u-1"})

	require.Eventually(t, func() bool {
		return stats.Snapshot().TotalScanned == 500
	}, 2*time.Second, time.Millisecond, "dashboard counters take over once authenticated")
}
