// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Loads
	GenerationLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medgraph_generation_loads_total",
		Help: "Corpus loads by outcome (promoted, rejected, failed)",
	}, []string{"outcome"})

	LoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "medgraph_load_duration_seconds",
		Help:    "Time to validate, store, resolve and index a corpus",
		Buckets: prometheus.DefBuckets,
	})

	GenerationSeq = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "medgraph_generation_seq",
		Help: "Sequence number of the live generation",
	})

	// Live generation contents
	Records = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "medgraph_records",
		Help: "Records in the live generation by state (accepted, quarantined)",
	}, []string{"state"})

	Resolution = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "medgraph_resolution_findings",
		Help: "Resolver findings in the live generation by kind",
	}, []string{"kind"})

	// Queries
	Queries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medgraph_queries_total",
		Help: "Queries served by operation and result (ok, not_found, invalid, error)",
	}, []string{"op", "result"})

	QueryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medgraph_query_latency_seconds",
		Help:    "Query latency by operation",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(GenerationLoads)
	prometheus.MustRegister(LoadDuration)
	prometheus.MustRegister(GenerationSeq)
	prometheus.MustRegister(Records)
	prometheus.MustRegister(Resolution)
	prometheus.MustRegister(Queries)
	prometheus.MustRegister(QueryLatency)
}
