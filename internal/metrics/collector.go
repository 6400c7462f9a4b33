// Package metrics exposes hub state to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coachpo/messenger/pkg/messenger"
)

// StatsSource is satisfied by *messenger.Hub.
type StatsSource interface {
	Stats() messenger.Stats
}

// HubCollector reads a hub snapshot on every scrape.
type HubCollector struct {
	source StatsSource

	subscribers   *prometheus.Desc
	weak          *prometheus.Desc
	tagged        *prometheus.Desc
	pendingPurges *prometheus.Desc
	published     *prometheus.Desc
	delivered     *prometheus.Desc
	dead          *prometheus.Desc
	dropped       *prometheus.Desc
	faults        *prometheus.Desc
	sweeps        *prometheus.Desc
	purged        *prometheus.Desc
}

// NewHubCollector builds a collector over source.
func NewHubCollector(source StatsSource) *HubCollector {
	return &HubCollector{
		source:        source,
		subscribers:   prometheus.NewDesc("messenger_subscribers", "Current subscriptions per message kind", []string{"kind"}, nil),
		weak:          prometheus.NewDesc("messenger_weak_subscribers", "Current weak subscriptions per message kind", []string{"kind"}, nil),
		tagged:        prometheus.NewDesc("messenger_tagged_subscribers", "Current subscriptions per message kind and tag", []string{"kind", "tag"}, nil),
		pendingPurges: prometheus.NewDesc("messenger_pending_purges", "Message kinds awaiting a purge sweep", nil, nil),
		published:     prometheus.NewDesc("messenger_published_total", "Messages published", nil, nil),
		delivered:     prometheus.NewDesc("messenger_delivered_total", "Handler invocations a runner accepted", nil, nil),
		dead:          prometheus.NewDesc("messenger_dead_deliveries_total", "Deliveries skipped because the handler was reclaimed", nil, nil),
		dropped:       prometheus.NewDesc("messenger_dropped_deliveries_total", "Deliveries a runner could not schedule", nil, nil),
		faults:        prometheus.NewDesc("messenger_handler_faults_total", "Handler panics recovered", nil, nil),
		sweeps:        prometheus.NewDesc("messenger_purge_sweeps_total", "Purge sweeps executed", nil, nil),
		purged:        prometheus.NewDesc("messenger_purged_subscriptions_total", "Reclaimed subscriptions removed", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *HubCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.subscribers
	ch <- c.weak
	ch <- c.tagged
	ch <- c.pendingPurges
	ch <- c.published
	ch <- c.delivered
	ch <- c.dead
	ch <- c.dropped
	ch <- c.faults
	ch <- c.sweeps
	ch <- c.purged
}

// Collect implements prometheus.Collector.
func (c *HubCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	for _, kind := range stats.Kinds {
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(kind.Subscribers), kind.Kind)
		ch <- prometheus.MustNewConstMetric(c.weak, prometheus.GaugeValue, float64(kind.Weak), kind.Kind)
		for tag, n := range kind.Tags {
			ch <- prometheus.MustNewConstMetric(c.tagged, prometheus.GaugeValue, float64(n), kind.Kind, tag)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.pendingPurges, prometheus.GaugeValue, float64(stats.PendingPurges))
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(stats.Published))
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(stats.Delivered))
	ch <- prometheus.MustNewConstMetric(c.dead, prometheus.CounterValue, float64(stats.Dead))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(stats.Dropped))
	ch <- prometheus.MustNewConstMetric(c.faults, prometheus.CounterValue, float64(stats.Faults))
	ch <- prometheus.MustNewConstMetric(c.sweeps, prometheus.CounterValue, float64(stats.Sweeps))
	ch <- prometheus.MustNewConstMetric(c.purged, prometheus.CounterValue, float64(stats.Purged))
}

// NewRegistry returns a registry with the hub collector and the Go runtime collectors.
func NewRegistry(source StatsSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewHubCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
