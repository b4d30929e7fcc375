// Package metrics exposes the testbed's prometheus collectors
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/celestiaorg/testbed/internal/types"
)

const metricNamespace = "testbed"

// Metrics holds every collector of one testbed, registered on its own registry
type Metrics struct {
	Registry *prometheus.Registry

	OperationDuration *prometheus.HistogramVec
	Instances         *prometheus.GaugeVec
}

// New creates the collectors and registers them, along with the go and process collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of lifecycle operations, by action and outcome",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"action", "status"}),
		Instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "instances",
			Help:      "Number of instances in the last snapshot, by region and power status",
		}, []string{"region", "power_status"}),
	}

	m.Registry.MustRegister(
		m.OperationDuration,
		m.Instances,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOperation records the duration of one lifecycle operation
func (m *Metrics) ObserveOperation(action, status string, duration time.Duration) {
	m.OperationDuration.WithLabelValues(action, status).Observe(duration.Seconds())
}

// SetFleet replaces the instance gauges with the counts of the given snapshot.
// Every configured region reports all power statuses, so absent series read as zero.
func (m *Metrics) SetFleet(regions []string, instances []types.Instance) {
	m.Instances.Reset()

	statuses := []types.PowerStatus{
		types.PowerStatusActive, types.PowerStatusInactive, types.PowerStatusBooting, types.PowerStatusTerminated,
	}
	for _, region := range regions {
		for _, status := range statuses {
			m.Instances.WithLabelValues(region, status.String()).Set(0)
		}
	}
	for _, instance := range instances {
		m.Instances.WithLabelValues(instance.Region, instance.PowerStatus.String()).Inc()
	}
}
