package research

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	fragments prometheus.Counter
	duration  prometheus.Histogram
	scores    prometheus.Histogram
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scour",
			Name:      "research_runs_total",
			Help:      "Research runs by terminal state.",
		}, []string{"state"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scour",
			Name:      "report_fragments_total",
			Help:      "Report text fragments sent to clients.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scour",
			Name:      "research_run_duration_seconds",
			Help:      "Wall time of research runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scour",
			Name:      "sentiment_score",
			Help:      "Distribution of sentiment scores.",
			Buckets:   prometheus.LinearBuckets(0, 20, 6),
		}),
	}
	reg.MustRegister(m.runs, m.fragments, m.duration, m.scores)
	return m
}

func (m *Metrics) observeRun(state State, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state.String()).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeFragment() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

func (m *Metrics) observeScore(score float64) {
	if m == nil {
		return
	}
	m.scores.Observe(score)
}
