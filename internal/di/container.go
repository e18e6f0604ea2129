package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/phishguard/phishguard/internal/adapters/msgapi"
	"github.com/phishguard/phishguard/internal/adapters/notify"
	"github.com/phishguard/phishguard/internal/adapters/remote"
	"github.com/phishguard/phishguard/internal/config"
	"github.com/phishguard/phishguard/internal/core"
	"github.com/phishguard/phishguard/internal/factory"
	"github.com/phishguard/phishguard/internal/logging"
	"github.com/phishguard/phishguard/internal/maintenance"
	"github.com/phishguard/phishguard/internal/metrics"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.New); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}

	// Register key-value store
	if err := container.Provide(func(f *factory.StoreFactory) (core.KeyValueStore, error) {
		return f.CreateKeyValueStore()
	}); err != nil {
		return nil, err
	}

	// Register session context
	if err := container.Provide(func(store core.KeyValueStore, logger *zap.Logger) *core.SessionContext {
		return core.NewSessionContext(store, logger)
	}); err != nil {
		return nil, err
	}

	// Register statistics store
	if err := container.Provide(func(store core.KeyValueStore, logger *zap.Logger) *core.StatisticsStore {
		return core.NewStatisticsStore(store, logger)
	}); err != nil {
		return nil, err
	}

	// Register result cache
	if err := container.Provide(func(f *factory.CacheFactory) (core.ResultCache, error) {
		return f.CreateResultCache()
	}); err != nil {
		return nil, err
	}

	// Register classification service client
	if err := container.Provide(func(
		cfg *config.Config,
		session *core.SessionContext,
		logger *zap.Logger,
		m *metrics.Metrics,
	) (core.Classifier, error) {
		apiCfg, err := cfg.GetAPI()
		if err != nil {
			return nil, err
		}
		return remote.NewClient(
			apiCfg.Endpoint,
			apiCfg.Key,
			apiCfg.DemoKey,
			session,
			logger,
			m,
			apiCfg.MaxAttempts,
			apiCfg.BaseDelay,
			apiCfg.Timeout,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register notification sink
	if err := container.Provide(func(logger *zap.Logger) core.Notifier {
		return notify.NewLogNotifier(logger)
	}); err != nil {
		return nil, err
	}

	// Register quarantine dispatcher
	if err := container.Provide(func(
		cfg *config.Config,
		stats *core.StatisticsStore,
		notifier core.Notifier,
		logger *zap.Logger,
		m *metrics.Metrics,
	) (*core.QuarantineDispatcher, error) {
		qCfg, err := cfg.GetQuarantine()
		if err != nil {
			return nil, err
		}
		return core.NewQuarantineDispatcher(
			stats,
			notifier,
			logger,
			m,
			qCfg.Auto,
			qCfg.ConfidenceThreshold,
			qCfg.SettleDelay,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register analysis orchestrator
	if err := container.Provide(func(
		cfg *config.Config,
		classifier core.Classifier,
		cache core.ResultCache,
		stats *core.StatisticsStore,
		session *core.SessionContext,
		notifier core.Notifier,
		quarantine *core.QuarantineDispatcher,
		logger *zap.Logger,
		m *metrics.Metrics,
		cacheFactory *factory.CacheFactory,
	) (*core.Orchestrator, error) {
		cacheTTL, err := cacheFactory.GetCacheTTL()
		if err != nil {
			return nil, err
		}
		scanCfg := cfg.GetScan()
		return core.NewOrchestrator(
			classifier,
			cache,
			stats,
			session,
			notifier,
			quarantine,
			logger,
			m,
			scanCfg.Enabled,
			cacheFactory.IsCacheEnabled(),
			cacheTTL,
			scanCfg.NotificationsEnabled,
			scanCfg.WhitelistedDomains,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register message API server
	if err := container.Provide(func(
		cfg *config.Config,
		orchestrator *core.Orchestrator,
		stats *core.StatisticsStore,
		session *core.SessionContext,
		classifier core.Classifier,
		logger *zap.Logger,
		m *metrics.Metrics,
	) *msgapi.Server {
		return msgapi.NewServer(
			orchestrator,
			stats,
			session,
			classifier,
			logger,
			m,
			cfg.GetString("server.listen_address"),
		)
	}); err != nil {
		return nil, err
	}

	// Register maintenance scheduler
	if err := container.Provide(func(
		cfg *config.Config,
		cache core.ResultCache,
		classifier core.Classifier,
		stats *core.StatisticsStore,
		session *core.SessionContext,
		logger *zap.Logger,
	) (*maintenance.Scheduler, error) {
		sweepFreq, err := cfg.GetDuration("cache.sweep_frequency")
		if err != nil {
			return nil, err
		}
		resyncFreq, err := cfg.GetDuration("stats.resync_frequency")
		if err != nil {
			return nil, err
		}
		return maintenance.NewScheduler(cache, classifier, stats, session, logger, sweepFreq, resyncFreq), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}
