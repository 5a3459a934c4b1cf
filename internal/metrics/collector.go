package metrics

import (
	"github.com/llxisdsh/synctable"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "synctable"

type tableStatsCollector struct {
	stats func() *synctable.TableStats

	size      *prometheus.Desc
	capacity  *prometheus.Desc
	threshold *prometheus.Desc
	rehashes  *prometheus.Desc
	modCount  *prometheus.Desc
	maxChain  *prometheus.Desc
}

// NewCollector creates a Prometheus collector reporting the statistics of a
// table. Each scrape calls stats once, which walks the whole table.
func NewCollector(name string, stats func() *synctable.TableStats) prometheus.Collector {
	labels := prometheus.Labels{"table": name}
	return &tableStatsCollector{
		stats: stats,
		size: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "entries"),
			"Number of entries in the table.",
			nil, labels,
		),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "buckets"),
			"Number of buckets in the table.",
			nil, labels,
		),
		threshold: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "threshold"),
			"Size at which the next insert grows the table.",
			nil, labels,
		),
		rehashes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "rehashes_total"),
			"Number of times the table grew.",
			nil, labels,
		),
		modCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "modifications_total"),
			"Number of structural modifications of the table.",
			nil, labels,
		),
		maxChain: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "max_chain_length"),
			"Length of the longest bucket chain.",
			nil, labels,
		),
	}
}

func (c *tableStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.capacity
	ch <- c.threshold
	ch <- c.rehashes
	ch <- c.modCount
	ch <- c.maxChain
}

func (c *tableStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.stats()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(stats.Size))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(stats.Capacity))
	ch <- prometheus.MustNewConstMetric(c.threshold, prometheus.GaugeValue, float64(stats.Threshold))
	ch <- prometheus.MustNewConstMetric(c.rehashes, prometheus.CounterValue, float64(stats.Rehashes))
	ch <- prometheus.MustNewConstMetric(c.modCount, prometheus.CounterValue, float64(stats.ModCount))
	ch <- prometheus.MustNewConstMetric(c.maxChain, prometheus.GaugeValue, float64(stats.MaxChain))
}

var _ prometheus.Collector = new(tableStatsCollector)
