package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of a scrape run. They are registered
// on an explicit registry so tests can construct metrics in isolation.
type Metrics struct {
	URLsTotal     *prometheus.CounterVec
	LotsTotal     *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		URLsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_urls_processed_total",
			Help: "Announcement URLs processed, by outcome.",
		}, []string{"outcome"}), // completed, failed, skipped
		LotsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_lots_scraped_total",
			Help: "Lot records stored, by parse status.",
		}, []string{"parse_status"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Errors encountered, by type.",
		}, []string{"type"}), // e.g. 'fetch_lots_page', 'fetch_lot_detail', 'store'
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Duration of portal fetches including retry backoff.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		}, []string{"kind"}), // 'lots_page', 'lot_detail'
	}
}

func (m *Metrics) IncURL(outcome string) {
	m.URLsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncLot(parseStatus string) {
	m.LotsTotal.WithLabelValues(parseStatus).Inc()
}

func (m *Metrics) IncError(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) ObserveFetch(kind string, d time.Duration) {
	m.FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}
