package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Generations        prometheus.Counter
	Evaluated          prometheus.Counter
	MissingResults     prometheus.Counter
	EvaluationFailures prometheus.Counter
	ActiveRuns         prometheus.Gauge
	BestFitness        *prometheus.GaugeVec
	Diversity          *prometheus.GaugeVec
	EvaluationSeconds  prometheus.Histogram
}

// NewMetrics builds the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentevo_generations_total",
			Help: "Generations produced and evaluated.",
		}),
		Evaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentevo_chromosomes_evaluated_total",
			Help: "Chromosomes submitted to the fitness evaluator.",
		}),
		MissingResults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentevo_missing_results_total",
			Help: "Chromosomes the evaluator returned no result for.",
		}),
		EvaluationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentevo_evaluation_failures_total",
			Help: "Batches whose evaluation returned an error.",
		}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentevo_active_runs",
			Help: "Runs currently evolving.",
		}),
		BestFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentevo_best_fitness",
			Help: "Best fitness observed so far per run.",
		}, []string{"run_id"}),
		Diversity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentevo_population_diversity",
			Help: "Mean pairwise compatibility distance of the latest generation.",
		}, []string{"run_id"}),
		EvaluationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentevo_evaluation_seconds",
			Help:    "Wall time of one batch evaluation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Generations,
		m.Evaluated,
		m.MissingResults,
		m.EvaluationFailures,
		m.ActiveRuns,
		m.BestFitness,
		m.Diversity,
		m.EvaluationSeconds,
	}
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

func (m *Metrics) RunFinished(runID string) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.BestFitness.DeleteLabelValues(runID)
	m.Diversity.DeleteLabelValues(runID)
}

func (m *Metrics) ObserveEvaluation(seconds float64, evaluated, missing int, failed bool) {
	if m == nil {
		return
	}
	m.EvaluationSeconds.Observe(seconds)
	m.Evaluated.Add(float64(evaluated))
	m.MissingResults.Add(float64(missing))
	if failed {
		m.EvaluationFailures.Inc()
	}
}

func (m *Metrics) ObserveGeneration(runID string, bestFitness, diversity float64) {
	if m == nil {
		return
	}
	m.Generations.Inc()
	m.BestFitness.WithLabelValues(runID).Set(bestFitness)
	m.Diversity.WithLabelValues(runID).Set(diversity)
}
