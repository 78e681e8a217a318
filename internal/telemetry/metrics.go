package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus instrumentation for the motion core,
// grouped by subsystem the same way the teacher's observability package
// groups its metrics.
type Metrics struct {
	JogTickLatency      prometheus.Histogram
	JogTicksTotal       prometheus.Counter
	BroadcastDropped    prometheus.Counter
	BroadcastQueueDepth prometheus.Gauge
	MotorLinkCommands   *prometheus.CounterVec
	ProgramSteps        *prometheus.CounterVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GlobalMetrics returns the process-wide Metrics singleton, registering
// its collectors with the default Prometheus registry on first use.
func GlobalMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			JogTickLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "pendant",
				Subsystem: "motion",
				Name:      "jog_tick_latency_seconds",
				Help:      "Latency of a single jog-loop tick.",
				Buckets:   prometheus.DefBuckets,
			}),
			JogTicksTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "pendant",
				Subsystem: "motion",
				Name:      "jog_ticks_total",
				Help:      "Total jog-loop ticks processed.",
			}),
			BroadcastDropped: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "pendant",
				Subsystem: "broadcast",
				Name:      "subscribers_dropped_total",
				Help:      "Total subscribers dropped for stalling.",
			}),
			BroadcastQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "pendant",
				Subsystem: "broadcast",
				Name:      "subscriber_count",
				Help:      "Current number of registered broadcast subscribers.",
			}),
			MotorLinkCommands: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pendant",
				Subsystem: "motorlink",
				Name:      "commands_total",
				Help:      "Total commands sent to the motor controller, by command and result.",
			}, []string{"cmd", "result"}),
			ProgramSteps: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pendant",
				Subsystem: "program",
				Name:      "steps_total",
				Help:      "Total program steps executed, by step type and outcome.",
			}, []string{"step_type", "outcome"}),
		}
	})
	return globalMetrics
}
