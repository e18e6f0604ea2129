package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instruments of the analysis pipeline.
type Metrics struct {
	Registry *prometheus.Registry

	EmailsScanned   prometheus.Counter
	ThreatsDetected prometheus.Counter
	CacheHits       prometheus.Counter
	Fallbacks       prometheus.Counter
	Quarantined     prometheus.Counter
	RemoteAttempts  prometheus.Counter
	RemoteFailures  prometheus.Counter
}

// New creates the pipeline metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		EmailsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "phishguard_emails_scanned_total",
			Help: "Total number of emails run through the analysis pipeline.",
		}),
		ThreatsDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "phishguard_threats_detected_total",
			Help: "Total number of emails classified as threats.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "phishguard_cache_hits_total",
			Help: "Analyses answered from the result cache.",
		}),
		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "phishguard_fallback_total",
			Help: "Analyses answered by the local heuristic scorer.",
		}),
		Quarantined: factory.NewCounter(prometheus.CounterOpts{
			Name: "phishguard_quarantined_total",
			Help: "Emails successfully quarantined.",
		}),
		RemoteAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "phishguard_remote_attempts_total",
			Help: "Attempts issued against the classification service.",
		}),
		RemoteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "phishguard_remote_failures_total",
			Help: "Failed attempts against the classification service.",
		}),
	}
}
