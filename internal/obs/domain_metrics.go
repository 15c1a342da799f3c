package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceResolutionsTotal counts price resolution outcomes by winning tier.
	PriceResolutionsTotal *prometheus.CounterVec
	// RecalcRecordsTotal counts per-record recalculation outcomes.
	RecalcRecordsTotal *prometheus.CounterVec
	// RecalcRunsTotal counts whole recalculation runs by outcome.
	RecalcRunsTotal *prometheus.CounterVec
	// CatalogRequestsTotal counts outbound catalog calls by outcome.
	CatalogRequestsTotal *prometheus.CounterVec
	// CatalogRequestLatency records catalog call latency in milliseconds.
	CatalogRequestLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PriceResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_resolutions_total",
			Help:      "Count of price resolutions by winning source tier and result.",
		}, []string{"source", "result"})
		RecalcRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_recalc_records_total",
			Help:      "Count of commission records processed during recalculation by outcome.",
		}, []string{"result"})
		RecalcRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_recalc_runs_total",
			Help:      "Count of commission recalculation runs by outcome.",
		}, []string{"result"})
		CatalogRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_requests_total",
			Help:      "Count of outbound commerce-platform catalog calls by outcome.",
		}, []string{"result"})
		CatalogRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_request_duration_ms",
			Help:      "Latency of outbound catalog calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})

		mustRegisterCollector(reg, PriceResolutionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceResolutionsTotal = v
			}
		})
		mustRegisterCollector(reg, RecalcRecordsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RecalcRecordsTotal = v
			}
		})
		mustRegisterCollector(reg, RecalcRunsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RecalcRunsTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CatalogRequestsTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogRequestLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CatalogRequestLatency = v
			}
		})
	})
}
