// Package metrics exposes client-side Prometheus metrics for admin API calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopbridge"

// Collector owns a private registry so several clients can coexist in one
// process. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec   // protocol, resource, outcome
	duration  *prometheus.HistogramVec // protocol
	retries   *prometheus.CounterVec   // reason
	callUsed  *prometheus.GaugeVec     // shop
	callCap   *prometheus.GaugeVec     // shop
	followUps *prometheus.CounterVec   // step, outcome
	webhooks  *prometheus.CounterVec   // topic, outcome
}

// NewCollector creates and registers every metric.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Admin API calls by protocol, resource and outcome",
		}, []string{"protocol", "resource", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Admin API call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"protocol"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "HTTP attempts retried, by reason",
		}, []string{"reason"}),
		callUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_limit_used",
			Help:      "Calls in the shop's leaky bucket as last reported by the API",
		}, []string{"shop"}),
		callCap: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_limit_cap",
			Help:      "Capacity of the shop's leaky bucket",
		}, []string{"shop"}),
		followUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "follow_ups_total",
			Help:      "Follow-up operations of composed mutations, by step and outcome",
		}, []string{"step", "outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Webhook deliveries received, by topic and outcome",
		}, []string{"topic", "outcome"}),
	}
	c.registry.MustRegister(c.requests, c.duration, c.retries, c.callUsed, c.callCap, c.followUps, c.webhooks)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRequest records one logical call.
func (c *Collector) RecordRequest(protocol, resource string, d time.Duration, success bool) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(protocol, resource, outcome(success)).Inc()
	c.duration.WithLabelValues(protocol).Observe(d.Seconds())
}

// RecordRetry records a retried HTTP attempt. reason is a status code or "network".
func (c *Collector) RecordRetry(status int) {
	if c == nil {
		return
	}
	reason := "network"
	if status > 0 {
		reason = strconv.Itoa(status)
	}
	c.retries.WithLabelValues(reason).Inc()
}

// RecordCallLimit stores the last call-limit header seen for shop.
func (c *Collector) RecordCallLimit(shop string, used, limit int) {
	if c == nil {
		return
	}
	c.callUsed.WithLabelValues(shop).Set(float64(used))
	c.callCap.WithLabelValues(shop).Set(float64(limit))
}

// RecordFollowUp records one follow-up step of a composed mutation.
func (c *Collector) RecordFollowUp(step string, success bool) {
	if c == nil {
		return
	}
	c.followUps.WithLabelValues(step, outcome(success)).Inc()
}

// RecordWebhook matches the webhook handler's observer signature.
func (c *Collector) RecordWebhook(topic, result string) {
	if c == nil {
		return
	}
	c.webhooks.WithLabelValues(topic, result).Inc()
}
