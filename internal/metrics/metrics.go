// Package metrics exposes the daemon's Prometheus counters.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swervectl"

// Registry holds every collector this package defines.
var Registry = prometheus.NewRegistry()

var (
	odometryPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "odometry",
			Name:      "passes_total",
			Help:      "Count of completed odometry sampling passes.",
		},
	)
	droppedSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "odometry",
			Name:      "dropped_samples_total",
			Help:      "Count of samples discarded because a queue was full before it was drained.",
		},
		[]string{"queue"},
	)
	refreshFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "odometry",
			Name:      "refresh_failures_total",
			Help:      "Count of sampling passes whose batch refresh reported an error.",
		},
	)
	configExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "config_exhausted_total",
			Help:      "Count of configuration writes that were never acknowledged within the retry budget.",
		},
		[]string{"device", "operation"},
	)
	droppedTasks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workpool",
			Name:      "dropped_tasks_total",
			Help:      "Count of tasks rejected because the worker queue was full.",
		},
	)
	droppedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "dropped_records_total",
			Help:      "Count of telemetry records discarded because the write buffer was full.",
		},
	)
	connected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "connected",
			Help:      "Debounced connection state per module channel (1 connected, 0 disconnected).",
		},
		[]string{"module", "channel"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(odometryPasses)
		Registry.MustRegister(droppedSamples)
		Registry.MustRegister(refreshFailures)
		Registry.MustRegister(configExhausted)
		Registry.MustRegister(droppedTasks)
		Registry.MustRegister(droppedRecords)
		Registry.MustRegister(connected)
	})
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordOdometryPass counts one completed sampling pass.
func RecordOdometryPass() {
	odometryPasses.Inc()
}

// RecordDroppedSamples counts samples discarded from queue on overflow.
func RecordDroppedSamples(queue string, n int) {
	if n <= 0 {
		return
	}
	droppedSamples.WithLabelValues(queue).Add(float64(n))
}

// RecordRefreshFailure counts a sampling pass with a failed refresh.
func RecordRefreshFailure() {
	refreshFailures.Inc()
}

// RecordConfigExhausted counts a configuration write that ran out of retries.
func RecordConfigExhausted(device, operation string) {
	configExhausted.WithLabelValues(device, operation).Inc()
}

// RecordDroppedTask counts a rejected worker pool task.
func RecordDroppedTask() {
	droppedTasks.Inc()
}

// RecordDroppedRecords counts telemetry records discarded on overflow.
func RecordDroppedRecords(n int) {
	if n <= 0 {
		return
	}
	droppedRecords.Add(float64(n))
}

// SetConnected publishes the debounced state of one module channel.
func SetConnected(module, channel string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	connected.WithLabelValues(module, channel).Set(v)
}
