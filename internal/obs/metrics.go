package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheStoreFail  *prometheus.CounterVec
	offlineFallback *prometheus.CounterVec
	lifecycle       *prometheus.CounterVec
	sweepDeleted    prometheus.Counter
	syncReplays     *prometheus.CounterVec
	syncDepth       prometheus.Gauge
	notifications   prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total handled requests",
	}, []string{"class", "outcome", "status_class"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_lookups_total",
		Help: "Total cache lookups",
	}, []string{"class", "status"})

	cacheStoreFail := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_store_failures_total",
		Help: "Total failed cache writes",
	}, []string{"class"})

	offlineFallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_offline_fallbacks_total",
		Help: "Total synthesized offline responses",
	}, []string{"class"})

	lifecycle := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_lifecycle_transitions_total",
		Help: "Total lifecycle state transitions",
	}, []string{"state"})

	sweepDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sweep_deleted_total",
		Help: "Total cache entries removed by expiry sweeps",
	})

	syncReplays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sync_replays_total",
		Help: "Total background sync replay attempts",
	}, []string{"result"})

	syncDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sync_queue_depth",
		Help: "Pending actions in the background sync queue",
	})

	notifications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_notifications_shown_total",
		Help: "Total notifications displayed",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Request handling duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"class"})

	registry.MustRegister(requests, cacheLookups, cacheStoreFail, offlineFallback,
		lifecycle, sweepDeleted, syncReplays, syncDepth, notifications, requestDuration)

	return &Metrics{
		registry:        registry,
		requests:        requests,
		cacheLookups:    cacheLookups,
		cacheStoreFail:  cacheStoreFail,
		offlineFallback: offlineFallback,
		lifecycle:       lifecycle,
		sweepDeleted:    sweepDeleted,
		syncReplays:     syncReplays,
		syncDepth:       syncDepth,
		notifications:   notifications,
		requestDuration: requestDuration,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(class, outcome string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(class, outcome, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(class).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheLookup(class, status string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(class, status).Inc()
}

func (m *Metrics) RecordCacheStoreFailure(class string) {
	if m == nil {
		return
	}
	m.cacheStoreFail.WithLabelValues(class).Inc()
}

func (m *Metrics) RecordOfflineFallback(class string) {
	if m == nil {
		return
	}
	m.offlineFallback.WithLabelValues(class).Inc()
}

func (m *Metrics) RecordLifecycleTransition(state string) {
	if m == nil {
		return
	}
	m.lifecycle.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordSweepDeleted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sweepDeleted.Add(float64(count))
}

func (m *Metrics) RecordSyncReplay(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.syncReplays.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSyncQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.syncDepth.Set(float64(depth))
}

func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
