package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a scan run.
type Metrics struct {
	Registry           *prometheus.Registry
	PagesTotal         *prometheus.CounterVec
	GamesScannedTotal  prometheus.Counter
	AchievementsTotal  prometheus.Counter
	ParseFailuresTotal prometheus.Counter
	DiscardedRowsTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steamscope_pages_total",
			Help: "Stats pages fetched, by classifier verdict.",
		},
		[]string{"verdict"},
	)
	games := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "steamscope_games_scanned_total",
			Help: "Games fully scanned.",
		},
	)
	achievements := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "steamscope_achievements_total",
			Help: "Achievement details produced after reconciliation.",
		},
	)
	parseFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "steamscope_time_parse_failures_total",
			Help: "Unlock-time fragments that could not be parsed.",
		},
	)
	discarded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "steamscope_discarded_rows_total",
			Help: "Scraped rows discarded because no schema entry matched.",
		},
	)

	registry.MustRegister(pages, games, achievements, parseFailures, discarded)

	return &Metrics{
		Registry:           registry,
		PagesTotal:         pages,
		GamesScannedTotal:  games,
		AchievementsTotal:  achievements,
		ParseFailuresTotal: parseFailures,
		DiscardedRowsTotal: discarded,
	}
}

func (m *Metrics) incPage(verdict string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(verdict).Inc()
}

func (m *Metrics) incGames() {
	if m == nil {
		return
	}
	m.GamesScannedTotal.Inc()
}

func (m *Metrics) addAchievements(n int) {
	if m == nil {
		return
	}
	m.AchievementsTotal.Add(float64(n))
}

func (m *Metrics) addParseFailures(n int) {
	if m == nil {
		return
	}
	m.ParseFailuresTotal.Add(float64(n))
}

func (m *Metrics) addDiscarded(n int) {
	if m == nil {
		return
	}
	m.DiscardedRowsTotal.Add(float64(n))
}
