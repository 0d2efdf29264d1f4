package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report orchestrator activity.
type Metrics struct {
	tasksTotal      *prometheus.CounterVec
	subtaskDuration *prometheus.HistogramVec
	subtaskRetries  prometheus.Counter
	tasksActive     prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered
// with the global Prometheus registry. The collectors are created only
// once to avoid duplicate registration panics when the orchestrator is
// instantiated multiple times (e.g. in unit tests).
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided
// registerer. The caller supplies a fresh registry when unique metric
// names are required (for example in tests). Any registration error
// other than duplicate registration panics, which mirrors the promauto
// helpers and surfaces configuration bugs early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	tasksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "orchestrator",
			Name:      "tasks_total",
			Help:      "Tasks reaching a terminal state, by status.",
		},
		[]string{"status"},
	)
	subtaskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "studio",
			Subsystem: "orchestrator",
			Name:      "subtask_duration_seconds",
			Help:      "Execution duration of delegated subtasks.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type", "status"},
	)
	subtaskRetries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "orchestrator",
			Name:      "subtask_retries_total",
			Help:      "Number of subtask dispatches that were retries.",
		},
	)
	tasksActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "studio",
			Subsystem: "orchestrator",
			Name:      "tasks_active",
			Help:      "Number of tasks currently executing.",
		},
	)

	collectors := []prometheus.Collector{tasksTotal, subtaskDuration, subtaskRetries, tasksActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				// Gauge before Counter: every Gauge also satisfies the
				// Counter interface.
				switch collector.(type) {
				case *prometheus.CounterVec:
					tasksTotal = already.ExistingCollector.(*prometheus.CounterVec)
				case *prometheus.HistogramVec:
					subtaskDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case prometheus.Gauge:
					tasksActive = already.ExistingCollector.(prometheus.Gauge)
				case prometheus.Counter:
					subtaskRetries = already.ExistingCollector.(prometheus.Counter)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		tasksTotal:      tasksTotal,
		subtaskDuration: subtaskDuration,
		subtaskRetries:  subtaskRetries,
		tasksActive:     tasksActive,
	}
}

// IncTask counts one task reaching a terminal status.
func (m *Metrics) IncTask(status string) {
	if m == nil || m.tasksTotal == nil {
		return
	}
	m.tasksTotal.WithLabelValues(status).Inc()
}

// ObserveSubtask records the duration of one subtask execution.
func (m *Metrics) ObserveSubtask(taskType, status string, duration time.Duration) {
	if m == nil || m.subtaskDuration == nil {
		return
	}
	m.subtaskDuration.WithLabelValues(taskType, status).Observe(duration.Seconds())
}

// IncRetry counts one retried subtask dispatch.
func (m *Metrics) IncRetry() {
	if m == nil || m.subtaskRetries == nil {
		return
	}
	m.subtaskRetries.Inc()
}

// IncActiveTasks marks a task as executing.
func (m *Metrics) IncActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Inc()
}

// DecActiveTasks marks a task as no longer executing.
func (m *Metrics) DecActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Dec()
}
