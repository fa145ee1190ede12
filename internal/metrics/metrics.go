// Package metrics holds the Prometheus collectors exported by sqlitekit.
//
// Collectors are package-level and updated directly by the packages that
// own the measured behavior. Nothing is registered by default; hosts call
// Register with their own registerer.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Collectors for connmgr.Database, observer.Broker and txn.Coordinator.
var (
	WriterWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sqlitekit_writer_wait_seconds",
		Help:    "Time spent waiting for the single write connection.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	})
	WriterAcquiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlitekit_writer_acquired_total",
		Help: "Cumulative number of write connection acquisitions, by outcome.",
	}, []string{"outcome"})
	ChangesPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlitekit_changes_published_total",
		Help: "Cumulative number of committed table changes published to subscribers.",
	}, []string{"table"})
	ChangesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sqlitekit_changes_dropped_total",
		Help: "Cumulative number of committed table changes dropped for lack of subscribers.",
	})
	SubscriberLagTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sqlitekit_subscriber_lag_total",
		Help: "Cumulative number of change notifications missed by lagging subscribers.",
	})
	InterruptibleSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sqlitekit_interruptible_sessions",
		Help: "Number of open interruptible transaction sessions.",
	})
)

// Collectors returns every collector defined by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		WriterWaitSeconds,
		WriterAcquiredTotal,
		ChangesPublishedTotal,
		ChangesDroppedTotal,
		SubscriberLagTotal,
		InterruptibleSessions,
	}
}

// Register registers all collectors with reg. Collectors that are already
// registered are skipped, so Register may be called more than once.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
