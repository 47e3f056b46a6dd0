package observability

import (
	"errors"

	"github.com/benmeehan/kiln-console/pkg/device"
	"github.com/prometheus/client_golang/prometheus"
)

// Fetch result labels.
const (
	ResultOK        = "ok"
	ResultNetwork   = "network"
	ResultMalformed = "malformed"
	ResultStale     = "stale"
	ResultBusy      = "busy"
	ResultError     = "error"
)

// Metrics holds the console's prometheus collectors.
type Metrics struct {
	StatusFetches  *prometheus.CounterVec
	HistoryFetches *prometheus.CounterVec
	Redraws        prometheus.Counter
	Commands       *prometheus.CounterVec
	LastSampleTime prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StatusFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiln_status_fetch_total",
			Help: "Status fetches by result.",
		}, []string{"result"}),
		HistoryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiln_history_fetch_total",
			Help: "History fetches by result.",
		}, []string{"result"}),
		Redraws: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kiln_redraws_total",
			Help: "Graph frames successfully rendered.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kiln_commands_total",
			Help: "Operator commands by command and outcome.",
		}, []string{"command", "outcome"}),
		LastSampleTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kiln_last_sample_time",
			Help: "Timestamp of the newest logged sample reported by the controller.",
		}),
	}

	reg.MustRegister(m.StatusFetches, m.HistoryFetches, m.Redraws, m.Commands, m.LastSampleTime)
	return m
}

// ResultLabel classifies a fetch error for the result label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, device.ErrNetwork):
		return ResultNetwork
	case errors.Is(err, device.ErrMalformed):
		return ResultMalformed
	default:
		return ResultError
	}
}
