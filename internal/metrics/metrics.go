package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetadataFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartmark_metadata_fetch_total",
		Help: "Metadata enrichment attempts by outcome.",
	}, []string{"result"})

	MetadataFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smartmark_metadata_fetch_duration_seconds",
		Help:    "Time spent fetching and parsing a page for metadata.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	BookmarksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartmark_bookmarks_created_total",
		Help: "Bookmarks successfully persisted.",
	})

	BookmarksDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartmark_bookmarks_deleted_total",
		Help: "Bookmarks successfully deleted.",
	})

	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartmark_store_errors_total",
		Help: "Bookmark store failures by operation.",
	}, []string{"op"})

	RealtimeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smartmark_realtime_subscriptions",
		Help: "Change-feed subscriptions currently attached.",
	})

	RealtimeEventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartmark_realtime_events_published_total",
		Help: "Change events published to the feed by kind.",
	}, []string{"kind"})

	RealtimeEventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartmark_realtime_events_dropped_total",
		Help: "Change events dropped because a subscriber fell behind.",
	})

	LiveViews = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smartmark_live_views",
		Help: "Open live dashboard connections.",
	})
)
