package metrics_collectors

import "context"

// MetricCollector samples one resource of the machine the console runs on.
type MetricCollector interface {
	Name() string                                 // Name of the metric (e.g., "cpu", "memory")
	Collect(ctx context.Context) (float64, error) // Current usage in percent
	Description() string                          // Description of the metric
}
