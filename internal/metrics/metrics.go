// Package metrics — prometheus-метрики forum-service. Методы безопасны для
// nil-получателя: компоненты работают и без метрик (тесты).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forum"

// Metrics — набор метрик сервиса.
type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	ratingRetries   prometheus.Counter
	ratingConflicts prometheus.Counter
	cascadeDeleted  prometheus.Counter
	cascadeFailed   prometheus.Counter
	rateLimited     prometheus.Counter
}

// New создаёт и регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ratingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "occ_retries_total",
			Help:      "Rating writes retried after a revision conflict.",
		}),
		ratingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratings",
			Name:      "occ_exhausted_total",
			Help:      "Rating writes that gave up after max retries.",
		}),
		cascadeDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "deleted_total",
			Help:      "Messages deleted by cascades.",
		}),
		cascadeFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "failed_total",
			Help:      "Cascade deletions that failed and were skipped.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Write requests rejected by the per-principal rate limiter.",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.ratingRetries,
		m.ratingConflicts,
		m.cascadeDeleted,
		m.cascadeFailed,
		m.rateLimited,
	)

	return m
}

// RegisterIndexSize публикует размер каждой проекции индекса как GaugeFunc.
func RegisterIndexSize(reg prometheus.Registerer, names []string, size func(name string) int) {
	for _, n := range names {
		n := n
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "index",
			Name:        "entries",
			Help:        "Entries per secondary index projection.",
			ConstLabels: prometheus.Labels{"projection": n},
		}, func() float64 { return float64(size(n)) }))
	}
}

// ObserveHTTP учитывает завершённый HTTP-запрос.
func (m *Metrics) ObserveHTTP(method, route string, code int, took time.Duration) {
	if m == nil {
		return
	}

	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// RatingRetry — повтор OCC-цикла.
func (m *Metrics) RatingRetry() {
	if m == nil {
		return
	}

	m.ratingRetries.Inc()
}

// RatingConflict — OCC-цикл исчерпал попытки.
func (m *Metrics) RatingConflict() {
	if m == nil {
		return
	}

	m.ratingConflicts.Inc()
}

// Cascade учитывает итог каскадного удаления.
func (m *Metrics) Cascade(deleted, failed int) {
	if m == nil {
		return
	}

	m.cascadeDeleted.Add(float64(deleted))
	m.cascadeFailed.Add(float64(failed))
}

// RateLimited — запрос отклонён лимитером.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}

	m.rateLimited.Inc()
}
