package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP API
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forager_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forager_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Fetch pipeline
	FeedFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forager_feed_fetches_total",
			Help: "Total number of feed fetches by outcome",
		},
		[]string{"status"},
	)

	FeedFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forager_feed_fetch_duration_seconds",
			Help:    "Time spent fetching, parsing and storing a single feed",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	ArticlesInsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forager_articles_inserted_total",
			Help: "Total number of new articles stored",
		},
	)

	EntriesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forager_entries_skipped_total",
			Help: "Feed entries not stored, by reason",
		},
		[]string{"reason"},
	)

	// Config reconciliation
	SyncChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forager_sync_changes_total",
			Help: "Feeds touched by subscription sync, by action",
		},
		[]string{"action"},
	)

	// Messaging
	MessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forager_messages_published_total",
			Help: "Article events published to the broker",
		},
		[]string{"status"},
	)
)
