// Package metrics exposes Prometheus collectors for upstream calls, parsing
// and Notion writes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequestDuration tracks provider and Notion calls in seconds.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoscan_upstream_request_duration_seconds",
			Help:    "Upstream API call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"provider", "status"},
	)

	// UpstreamRetries counts retry attempts after a transient failure.
	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoscan_upstream_retries_total",
			Help: "Total number of retried upstream calls",
		},
		[]string{"provider"},
	)

	// ParseStageCount records which parser stage produced the items.
	ParseStageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoscan_parse_stage_total",
			Help: "Total number of parsed model responses by stage",
		},
		[]string{"stage"},
	)

	// NotionUpsertCount counts upserts by resulting action: created, updated, failed.
	NotionUpsertCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoscan_notion_upsert_total",
			Help: "Total number of Notion upserts by action",
		},
		[]string{"action"},
	)
)

// RecordUpstreamRequest observes one upstream call.
func RecordUpstreamRequest(provider, status string, duration time.Duration) {
	UpstreamRequestDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// IncrementRetry counts a retry against provider.
func IncrementRetry(provider string) {
	UpstreamRetries.WithLabelValues(provider).Inc()
}

// IncrementParseStage counts a parse that finished at stage.
func IncrementParseStage(stage string) {
	ParseStageCount.WithLabelValues(stage).Inc()
}

// IncrementNotionUpsert counts an upsert outcome.
func IncrementNotionUpsert(action string) {
	NotionUpsertCount.WithLabelValues(action).Inc()
}
