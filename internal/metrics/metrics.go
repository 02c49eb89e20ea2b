// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics registers the pipeline's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SearchRequests counts provider calls.
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_agents_search_requests_total",
			Help: "Search provider requests",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	// Scrapes counts scrape attempts by outcome.
	Scrapes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_agents_scrapes_total",
			Help: "Scrape attempts by outcome",
		},
		[]string{"outcome"}, // success, blocked, failed, duplicate, pdf
	)

	// GarbageFiltered counts items rejected by the quality filter.
	GarbageFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "research_agents_garbage_filtered_total",
		Help: "Scraped items rejected as garbage",
	})

	// LLMCalls counts completions by model tier.
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_agents_llm_calls_total",
			Help: "LLM completion calls",
		},
		[]string{"tier", "status"},
	)

	// CleaningDuration observes one cleaning pass over a batch of items.
	CleaningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "research_agents_cleaning_duration_seconds",
		Help:    "Content cleaning duration per batch",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	// ReportStrategy counts reports by processing approach.
	ReportStrategy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_agents_reports_total",
			Help: "Reports written by processing approach",
		},
		[]string{"strategy"},
	)

	// CollectorRuns counts orchestrated agent runs.
	CollectorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_agents_agent_runs_total",
			Help: "Orchestrated agent runs by outcome",
		},
		[]string{"agent", "status"},
	)

	// StateWrites counts persisted state documents.
	StateWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_agents_state_writes_total",
			Help: "State document writes",
		},
		[]string{"status"},
	)
)

// Status maps an error to the status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Since observes the elapsed time since start on h.
func Since(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
