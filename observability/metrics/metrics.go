// Package metrics exposes the prometheus counters hivemind/state emits,
// grounded on the teacher's observability/metrics.go lazy-singleton-via-
// sync.Once pattern (moduleMetrics/ModuleMetrics()).
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type stateMetrics struct {
	optionsAdded       *prometheus.CounterVec
	opinionsSubmitted  *prometheus.CounterVec
	resultsCalculated  *prometheus.CounterVec
	selections         *prometheus.CounterVec
}

var (
	stateMetricsOnce sync.Once
	stateRegistry    *stateMetrics
)

// State returns the lazily-initialised State metrics registry.
func State() *stateMetrics {
	stateMetricsOnce.Do(func() {
		stateRegistry = &stateMetrics{
			optionsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hivemind",
				Subsystem: "state",
				Name:      "options_added_total",
				Help:      "Total options appended to a State.",
			}, []string{"issue"}),
			opinionsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hivemind",
				Subsystem: "state",
				Name:      "opinions_submitted_total",
				Help:      "Total opinions accepted by AddOpinion, keyed by question index.",
			}, []string{"question"}),
			resultsCalculated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hivemind",
				Subsystem: "state",
				Name:      "results_calculated_total",
				Help:      "Total CalculateResults invocations, keyed by question index.",
			}, []string{"question"}),
			selections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hivemind",
				Subsystem: "state",
				Name:      "selections_total",
				Help:      "Total SelectConsensus invocations, keyed by the on_selection effect applied.",
			}, []string{"on_selection"}),
		}
		prometheus.MustRegister(
			stateRegistry.optionsAdded,
			stateRegistry.opinionsSubmitted,
			stateRegistry.resultsCalculated,
			stateRegistry.selections,
		)
	})
	return stateRegistry
}

// RecordOptionAdded increments the options-added counter for issue.
func (m *stateMetrics) RecordOptionAdded(issue string) {
	if m == nil {
		return
	}
	if issue == "" {
		issue = "unknown"
	}
	m.optionsAdded.WithLabelValues(issue).Inc()
}

// RecordOpinionSubmitted increments the opinions-submitted counter for
// question index q.
func (m *stateMetrics) RecordOpinionSubmitted(q int) {
	if m == nil {
		return
	}
	m.opinionsSubmitted.WithLabelValues(questionLabel(q)).Inc()
}

// RecordResultsCalculated increments the results-calculated counter for
// question index q.
func (m *stateMetrics) RecordResultsCalculated(q int) {
	if m == nil {
		return
	}
	m.resultsCalculated.WithLabelValues(questionLabel(q)).Inc()
}

// RecordSelection increments the selections counter for the applied
// on_selection effect.
func (m *stateMetrics) RecordSelection(onSelection string) {
	if m == nil {
		return
	}
	if onSelection == "" {
		onSelection = "None"
	}
	m.selections.WithLabelValues(onSelection).Inc()
}

func questionLabel(q int) string {
	return strconv.Itoa(q)
}
