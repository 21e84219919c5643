package update

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed_aggregator",
		Subsystem: "update",
		Name:      "fetches_total",
		Help:      "Fetch attempts by result code.",
	}, []string{"result"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feed_aggregator",
		Subsystem: "update",
		Name:      "retries_total",
		Help:      "Requests requeued after transient errors.",
	})

	// ParseFailuresTotal counts fetched documents that could not be parsed
	// as a feed. Incremented by the subscription processor.
	ParseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feed_aggregator",
		Subsystem: "update",
		Name:      "parse_failures_total",
		Help:      "Fetched documents that could not be parsed as a feed.",
	})

	notModifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feed_aggregator",
		Subsystem: "update",
		Name:      "not_modified_total",
		Help:      "Conditional GETs answered with 304.",
	})

	queueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "feed_aggregator",
		Subsystem: "update",
		Name:      "queue_length",
		Help:      "Pending requests per priority queue.",
	}, []string{"priority"})
)
