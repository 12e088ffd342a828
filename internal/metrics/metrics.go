// Package metrics defines the Prometheus collectors for the search engine.
//
// Collectors live on their own registry so tests and embedded uses do not
// collide with the default one. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "catalogsearch"

// Search outcome labels
const (
	OutcomeSuccess     = "success"
	OutcomeEmpty       = "empty"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomeCancelled   = "cancelled"
)

// Metrics holds the engine's collectors
type Metrics struct {
	registry *prometheus.Registry

	SearchesTotal      *prometheus.CounterVec
	SearchDuration     *prometheus.HistogramVec
	CandidatesTotal    *prometheus.CounterVec
	MalformedRowsTotal *prometheus.CounterVec
	CacheTotal         *prometheus.CounterVec
	ImportsTotal       *prometheus.CounterVec
	ImportedRecords    *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of searches by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Search duration in seconds",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		CandidatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidates_total",
				Help:      "Candidate rows retrieved per field",
			},
			[]string{"field"},
		),
		MalformedRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_rows_total",
				Help:      "Repository rows skipped because they could not become candidates",
			},
			[]string{"source"},
		),
		CacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_cache_total",
				Help:      "Result cache hits and misses",
			},
			[]string{"result"}, // "hit" / "miss"
		),
		ImportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imports_total",
				Help:      "Catalog imports by outcome",
			},
			[]string{"outcome"},
		),
		ImportedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_records_total",
				Help:      "Catalog records written or rejected by the loader",
			},
			[]string{"kind", "status"},
		),
	}

	m.registry.MustRegister(
		m.SearchesTotal,
		m.SearchDuration,
		m.CandidatesTotal,
		m.MalformedRowsTotal,
		m.CacheTotal,
		m.ImportsTotal,
		m.ImportedRecords,
	)
	return m
}

// Registry exposes the registry for scraping or inspection
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSearch records one finished search
func (m *Metrics) ObserveSearch(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(mode, outcome).Inc()
	m.SearchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// AddCandidates counts rows retrieved for a field
func (m *Metrics) AddCandidates(field string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.CandidatesTotal.WithLabelValues(field).Add(float64(n))
}

// MalformedRow counts one skipped row
func (m *Metrics) MalformedRow(source string) {
	if m == nil {
		return
	}
	m.MalformedRowsTotal.WithLabelValues(source).Inc()
}

// CacheResult records a cache hit or miss
func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}

// ObserveImport records a finished import and its record counts
func (m *Metrics) ObserveImport(outcome string, written, rejected map[string]int) {
	if m == nil {
		return
	}
	m.ImportsTotal.WithLabelValues(outcome).Inc()
	for kind, n := range written {
		m.ImportedRecords.WithLabelValues(kind, "written").Add(float64(n))
	}
	for kind, n := range rejected {
		m.ImportedRecords.WithLabelValues(kind, "rejected").Add(float64(n))
	}
}
