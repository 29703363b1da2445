// Package metrics holds the Prometheus instruments shared by the API and the
// notifier. Everything is registered on the default registry and served via
// promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebookstore_events_consumed_total",
		Help: "Domain events consumed from the bus, by routing key and result.",
	}, []string{"routing_key", "result"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebookstore_events_published_total",
		Help: "Outbox events published to the bus, by routing key and result.",
	}, []string{"routing_key", "result"})

	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ebookstore_notifications_created_total",
		Help: "In-app notification rows actually inserted (duplicates excluded).",
	})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebookstore_emails_sent_total",
		Help: "Emails handed to the SMTP sender, by kind.",
	}, []string{"kind"})

	EmailsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebookstore_emails_failed_total",
		Help: "Email sends that returned an error, by kind.",
	}, []string{"kind"})

	IdempotencyHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ebookstore_idempotency_hits_total",
		Help: "Deliveries skipped because the work was already done.",
	})

	DeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ebookstore_dead_lettered_total",
		Help: "Deliveries routed to the final dead letter queue.",
	})

	OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ebookstore_outbox_pending",
		Help: "Outbox rows waiting to be published, sampled each worker tick.",
	})
)
