package composer

import (
	"time"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Metrics ---

// Metrics holds all the Prometheus metrics for the composer.
type Metrics struct {
	composeDuration *prometheus.HistogramVec
	compositions    *prometheus.CounterVec
	swapQuotes      *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for the composer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		composeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "composer_compose_duration_seconds",
			Help:    "Time taken to compose a logic sequence, labeled by action.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		compositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "composer_compositions_total",
			Help: "Total number of compositions, labeled by action and result.",
		}, []string{"action", "result"}),
		swapQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "composer_swap_quotes_total",
			Help: "Total number of swap quotes requested, labeled by swapper and result.",
		}, []string{"swapper", "result"}),
	}
	reg.MustRegister(m.composeDuration, m.compositions, m.swapQuotes)
	return m
}

func (m *Metrics) observeCompose(action Action, started time.Time, err error) {
	if m == nil {
		return
	}
	m.composeDuration.WithLabelValues(string(action)).Observe(time.Since(started).Seconds())
	m.compositions.WithLabelValues(string(action), resultLabel(err)).Inc()
}

func (m *Metrics) observeSwapQuote(id adapter.SwapperID, err error) {
	if m == nil {
		return
	}
	m.swapQuotes.WithLabelValues(string(id), resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
