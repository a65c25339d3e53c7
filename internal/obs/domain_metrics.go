package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ChargeTotal counts charge attempts against invoices by outcome.
	ChargeTotal *prometheus.CounterVec
	// CompleteTotal counts redirect-flow completion outcomes.
	CompleteTotal *prometheus.CounterVec
	// GatewayRequestTotal counts remote gateway calls by operation and result.
	GatewayRequestTotal *prometheus.CounterVec
	// GatewayRequestLatency records remote gateway call latency in milliseconds.
	GatewayRequestLatency *prometheus.HistogramVec
	// SourceCreatedTotal counts payment sources persisted per driver.
	SourceCreatedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ChargeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charge_total",
			Help:      "Count of invoice charge attempts by outcome.",
		}, []string{"driver", "result"})
		CompleteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "complete_total",
			Help:      "Count of redirect-flow completion attempts by outcome.",
		}, []string{"driver", "result"})
		GatewayRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Count of remote gateway requests by operation and result.",
		}, []string{"operation", "result"})
		GatewayRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_ms",
			Help:      "Latency of remote gateway requests in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation"})
		SourceCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_created_total",
			Help:      "Count of payment sources persisted per driver.",
		}, []string{"driver"})

		mustRegisterCollector(reg, ChargeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ChargeTotal = v
			}
		})
		mustRegisterCollector(reg, CompleteTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CompleteTotal = v
			}
		})
		mustRegisterCollector(reg, GatewayRequestTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				GatewayRequestTotal = v
			}
		})
		mustRegisterCollector(reg, GatewayRequestLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				GatewayRequestLatency = v
			}
		})
		mustRegisterCollector(reg, SourceCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SourceCreatedTotal = v
			}
		})
	})
}
