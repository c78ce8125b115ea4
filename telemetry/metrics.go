// Package telemetry exposes prometheus counters for the fan-out pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FanoutEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_fanout_events_total",
		Help: "Number of stream.online events fanned out",
	})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_messages_sent_total",
		Help: "Number of alert messages delivered to channels",
	})
	MessagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_messages_failed_total",
		Help: "Number of alert messages that failed to deliver",
	})
	TopicsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_topics_registered_total",
		Help: "Number of EventSub topics registered",
	})
	TopicsDeregistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_topics_deregistered_total",
		Help: "Number of EventSub topics deregistered",
	})
	TopicDeregisterFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamwatch_topic_deregister_failures_total",
		Help: "Number of EventSub topic deregistrations that failed upstream",
	})
)
