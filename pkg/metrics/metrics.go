// Package metrics exposes pipeline activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "txpipe"

// Collector records executor and server activity. It implements
// pipeline.Observer.
type Collector struct {
	reg prometheus.Gatherer

	// PipelinesTotal counts finished invocations.
	// Labels: pipeline, result (success, failure)
	PipelinesTotal *prometheus.CounterVec

	// ItemsTotal counts item outcomes.
	// Labels: pipeline, outcome (ok, failed)
	ItemsTotal *prometheus.CounterVec

	// ItemAttempts is the number of handler calls one item needed.
	// Labels: pipeline
	ItemAttempts *prometheus.HistogramVec

	// RollbacksTotal counts compensation runs.
	// Labels: pipeline, result (ok, error)
	RollbacksTotal *prometheus.CounterVec

	// PipelineDuration is the wall time of one invocation in seconds.
	// Labels: pipeline
	PipelineDuration *prometheus.HistogramVec

	// RejectedTotal counts requests answered without running a pipeline.
	// Labels: reason (decode, invalid)
	RejectedTotal *prometheus.CounterVec
}

// New registers the txpipe metrics on a fresh registry, which also carries
// the Go runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWith(reg)
}

// NewWith registers the txpipe metrics on reg.
func NewWith(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		PipelinesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipelines_total",
			Help:      "Pipeline invocations by pipeline and result",
		}, []string{"pipeline", "result"}),
		ItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Processed items by pipeline and outcome",
		}, []string{"pipeline", "outcome"}),
		ItemAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_attempts",
			Help:      "Handler attempts needed per item",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}, []string{"pipeline"}),
		RollbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Rollback runs by pipeline and result",
		}, []string{"pipeline", "result"}),
		PipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline invocation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pipeline"}),
		RejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Requests answered with a validation error",
		}, []string{"reason"}),
	}
}

func (c *Collector) ObserveItem(pipeline string, ok bool, attempts int) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	c.ItemsTotal.WithLabelValues(pipeline, outcome).Inc()
	c.ItemAttempts.WithLabelValues(pipeline).Observe(float64(attempts))
}

func (c *Collector) ObservePipeline(pipeline string, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.PipelinesTotal.WithLabelValues(pipeline, result).Inc()
	c.PipelineDuration.WithLabelValues(pipeline).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRollback(pipeline string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.RollbacksTotal.WithLabelValues(pipeline, result).Inc()
}

// ObserveRejected counts a request the server refused before execution.
func (c *Collector) ObserveRejected(reason string) {
	c.RejectedTotal.WithLabelValues(reason).Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
