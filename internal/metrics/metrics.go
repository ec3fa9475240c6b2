// Package metrics exposes a radiusclient.Client's activity counters and
// registered-server count as Prometheus metrics, collected on-demand the
// way pkg/exporter's TCPInfoCollector pulls from its own live connection
// map rather than pushing updates as they happen. Socket-pool slot
// occupancy is not exported.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lordbasex/go-radius-client/radiusclient"
)

// Collector implements prometheus.Collector over one Client's stats
// snapshot. It holds no state of its own beyond the Client reference, so
// registering it twice for two different clients (e.g. in a test) is
// safe as long as constLabels distinguish them.
type Collector struct {
	client      *radiusclient.Client
	constLabels prometheus.Labels

	sent        *prometheus.Desc
	retries     *prometheus.Desc
	failovers   *prometheus.Desc
	timeouts    *prometheus.Desc
	completions *prometheus.Desc
	degraded    *prometheus.Desc
	servers     *prometheus.Desc
}

// NewCollector builds a Collector for client. constLabels is attached to
// every metric this collector emits (e.g. {"instance": "nas-1"}) the same
// way NewTCPInfoCollector takes constLabels for process-wide identity.
func NewCollector(client *radiusclient.Client, constLabels prometheus.Labels) *Collector {
	return &Collector{
		client:      client,
		constLabels: constLabels,

		sent: prometheus.NewDesc(
			"radiusclient_queries_sent_total", "RADIUS requests sent.", nil, constLabels),
		retries: prometheus.NewDesc(
			"radiusclient_retries_total", "Retransmissions sent.", nil, constLabels),
		failovers: prometheus.NewDesc(
			"radiusclient_failovers_total", "Failovers to the next server.", nil, constLabels),
		timeouts: prometheus.NewDesc(
			"radiusclient_timeouts_total", "Queries that exhausted every server's retry budget.", nil, constLabels),
		completions: prometheus.NewDesc(
			"radiusclient_completions_total", "Queries completed with a verified reply.", nil, constLabels),
		degraded: prometheus.NewDesc(
			"radiusclient_degraded_deliveries_total", "Completions delivered by direct call after a full mailbox.", nil, constLabels),
		servers: prometheus.NewDesc(
			"radiusclient_servers_registered", "Servers currently registered.", nil, constLabels),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.sent
	descs <- c.retries
	descs <- c.failovers
	descs <- c.timeouts
	descs <- c.completions
	descs <- c.degraded
	descs <- c.servers
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	s := c.client.Stats()
	metrics <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(s.QueriesSent))
	metrics <- prometheus.MustNewConstMetric(c.retries, prometheus.CounterValue, float64(s.Retries))
	metrics <- prometheus.MustNewConstMetric(c.failovers, prometheus.CounterValue, float64(s.Failovers))
	metrics <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	metrics <- prometheus.MustNewConstMetric(c.completions, prometheus.CounterValue, float64(s.Completions))
	metrics <- prometheus.MustNewConstMetric(c.degraded, prometheus.CounterValue, float64(s.DegradedDeliveries))
	metrics <- prometheus.MustNewConstMetric(c.servers, prometheus.GaugeValue, float64(c.client.ServerCount()))
}
