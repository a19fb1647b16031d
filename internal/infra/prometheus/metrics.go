package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Allocation
	LinksAllocated = promauto.NewCounter(prom.CounterOpts{
		Name: "clicklink_links_allocated_total",
		Help: "Short codes successfully allocated",
	})

	AllocationCollisions = promauto.NewCounter(prom.CounterOpts{
		Name: "clicklink_allocation_collisions_total",
		Help: "Candidate codes rejected because the key already existed",
	})

	AllocationExhausted = promauto.NewCounter(prom.CounterOpts{
		Name: "clicklink_allocation_exhausted_total",
		Help: "Allocations that failed after every attempt collided",
	})

	// Resolution
	Redirects = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "clicklink_redirects_total",
			Help: "Redirect lookups by outcome",
		},
		[]string{"outcome"}, // "found", "not_found", "error"
	)

	// Click pipeline
	ClicksPublished = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "clicklink_click_events_published_total",
			Help: "Click events handed to the queue by result",
		},
		[]string{"result"}, // "ok", "failed"
	)

	ClicksProcessed = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "clicklink_click_events_processed_total",
			Help: "Delivered click events by result",
		},
		[]string{"result"}, // "acked", "failed"
	)

	ConsumerBatchSize = promauto.NewHistogram(prom.HistogramOpts{
		Name:    "clicklink_consumer_batch_size",
		Help:    "Number of click events per delivered batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
	})

	ConsumerBacklog = promauto.NewGaugeVec(
		prom.GaugeOpts{
			Name: "clicklink_consumer_backlog",
			Help: "JetStream consumer backlog as last observed",
		},
		[]string{"state"}, // "pending", "ack_pending", "redelivered"
	)

	// HTTP
	RequestDuration = promauto.NewHistogramVec(
		prom.HistogramOpts{
			Name:    "clicklink_http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "clicklink_http_requests_total",
			Help: "Total number of requests",
		},
		[]string{"method", "route", "status"},
	)
)
