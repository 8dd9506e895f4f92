package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/signalnine/gauntlet/eval"
)

const namespace = "gauntlet"

// Metrics exports run progress to Prometheus. It implements eval.Observer.
type Metrics struct {
	cases          *prometheus.CounterVec
	caseDuration   prometheus.Histogram
	scores         *prometheus.HistogramVec
	scorerFailures *prometheus.CounterVec
	traces         prometheus.Counter
	tokens         *prometheus.CounterVec
	passRate       *prometheus.GaugeVec
	avgScore       *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: outcome (passed, failed, error)
		cases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_total",
			Help:      "Cases finished by outcome",
		}, []string{"outcome"}),
		caseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "case_duration_seconds",
			Help:      "Wall time per case including scoring",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		scores: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_value",
			Help:      "Distribution of score values by scorer",
			Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}, []string{"scorer"}),
		scorerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scorer_failures_total",
			Help:      "Scorer errors and panics by scorer",
		}, []string{"scorer"}),
		traces: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_total",
			Help:      "Traces emitted by tasks",
		}),
		// Labels: direction (input, output)
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Model tokens reported in traces",
		}, []string{"direction"}),
		passRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pass_rate",
			Help:      "Pass rate of the last finished run by label",
		}, []string{"label"}),
		avgScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "avg_score",
			Help:      "Average score of the last finished run by label",
		}, []string{"label"}),
	}
}

func (m *Metrics) CaseFinished(cr eval.CaseResult, elapsed time.Duration) {
	switch {
	case cr.Error != "":
		m.cases.WithLabelValues("error").Inc()
	case cr.Passed():
		m.cases.WithLabelValues("passed").Inc()
	default:
		m.cases.WithLabelValues("failed").Inc()
	}
	m.caseDuration.Observe(elapsed.Seconds())
	for _, s := range cr.Scores {
		m.scores.WithLabelValues(s.Name).Observe(s.Value)
	}
	for _, t := range cr.Traces {
		m.traces.Inc()
		if t.Usage != nil {
			m.tokens.WithLabelValues("input").Add(float64(t.Usage.InputTokens))
			m.tokens.WithLabelValues("output").Add(float64(t.Usage.OutputTokens))
		}
	}
}

func (m *Metrics) ScorerFailed(scorer string, _ error) {
	m.scorerFailures.WithLabelValues(scorer).Inc()
}

// RunFinished records the summary of a completed run.
func (m *Metrics) RunFinished(label string, s eval.EvalSummary) {
	m.passRate.WithLabelValues(label).Set(s.PassRate)
	m.avgScore.WithLabelValues(label).Set(s.AvgScore)
}

var _ eval.Observer = (*Metrics)(nil)
