package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storiesGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_stories_generated_total",
			Help: "Total number of story generation runs by final status.",
		},
		[]string{"status"}, // complete, failed, insufficient_funds
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_ai_request_duration_seconds",
			Help:    "Histogram of text-generation request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "status"},
	)
	imageStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_image_pipeline_stage_total",
			Help: "Total number of pages resolved by each image pipeline stage.",
		},
		[]string{"stage"}, // remote, durable, transient, placeholder
	)
	ledgerMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_ledger_mutations_total",
			Help: "Total number of coin ledger mutations by reason.",
		},
		[]string{"reason", "direction"},
	)
)
