package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OpenMeteoCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climatematch_openmeteo_calls_total",
			Help: "Total Open-Meteo API calls",
		},
		[]string{"endpoint", "status"},
	)

	OpenMeteoLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "climatematch_openmeteo_latency_seconds",
			Help:    "Open-Meteo API call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)

	CitiesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climatematch_cities_processed_total",
			Help: "Cities run through the scoring pipeline, by outcome",
		},
		[]string{"status"},
	)

	ScoreCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climatematch_score_cache_lookups_total",
			Help: "Scored series cache lookups, by result",
		},
		[]string{"result"},
	)

	DaysScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climatematch_days_scored_total",
			Help: "Daily score records computed, by source",
		},
		[]string{"source"},
	)

	PayloadCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climatematch_payload_cache_lookups_total",
			Help: "Raw API payload cache lookups, by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)
)
