package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// searchTotal counts searches by outcome
	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perturb_search_total",
		Help: "Total beam searches by result",
	}, []string{"result"}) // ok, frozen, budget, canceled, error

	// searchDuration tracks end-to-end search latency
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "perturb_search_duration_seconds",
		Help:    "Beam search duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	// candidatesTotal counts candidates produced by rule expansion
	candidatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perturb_candidates_total",
		Help: "Total candidate strings produced by rule expansion",
	})

	// scorerCalls counts scorer invocations by outcome
	scorerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perturb_scorer_calls_total",
		Help: "Total scorer invocations by result",
	}, []string{"result"})

	// frontierSize tracks the frontier width after each round
	frontierSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "perturb_frontier_size",
		Help:    "Frontier size after pruning",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
	})
)
