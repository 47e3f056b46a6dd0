package metrics_collectors

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// collectTimeout bounds one scrape of all host collectors.
const collectTimeout = 2 * time.Second

// MetricsRegistry exposes the registered host collectors as prometheus gauges,
// sampled on every scrape.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
	descs      map[string]*prometheus.Desc
	logger     zerolog.Logger
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry(logger zerolog.Logger) *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
		descs:      make(map[string]*prometheus.Desc),
		logger:     logger,
	}
}

// NewHostMetricsRegistry returns a registry with the CPU, memory and disk collectors.
func NewHostMetricsRegistry(diskPath string, logger zerolog.Logger) *MetricsRegistry {
	r := NewMetricsRegistry(logger)
	r.Register(&CPUMetricCollector{})
	r.Register(&MemoryMetricCollector{})
	r.Register(&DiskMetricCollector{Path: diskPath})
	return r
}

// Register adds a new metric collector to the registry.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	name := collector.Name()
	r.collectors[name] = collector
	r.descs[name] = prometheus.NewDesc(
		"kiln_console_host_"+name+"_percent",
		collector.Description(),
		nil, nil,
	)
}

// GetCollectors returns the registered collector names in sorted order.
func (r *MetricsRegistry) GetCollectors() []string {
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe implements prometheus.Collector.
func (r *MetricsRegistry) Describe(ch chan<- *prometheus.Desc) {
	for _, name := range r.GetCollectors() {
		ch <- r.descs[name]
	}
}

// Collect implements prometheus.Collector. Collectors that fail are skipped for
// this scrape.
func (r *MetricsRegistry) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	for _, name := range r.GetCollectors() {
		value, err := r.collectors[name].Collect(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("metric", name).Msg("Failed to collect host metric")
			continue
		}
		ch <- prometheus.MustNewConstMetric(r.descs[name], prometheus.GaugeValue, value)
	}
}
