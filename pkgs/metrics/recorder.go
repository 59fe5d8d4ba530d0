package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exposes the processor pipeline's decode/validate outcomes as
// Prometheus metrics, the way cmd/state-tracker wires CounterVec and
// HistogramVec for its own pipeline stages. It complements, rather than
// replaces, the package's own Registry: Registry serves ad hoc in-process
// metrics (e.g. queue depth), Recorder serves the fixed set of stages the
// processor pipeline always runs.
//
// A nil *Recorder is valid and every method is a no-op, so callers that
// don't want metrics can pass nil instead of threading a feature flag
// through the pipeline.
type Recorder struct {
	decodeTotal   *prometheus.CounterVec
	decodeLatency *prometheus.HistogramVec

	validateTotal   *prometheus.CounterVec
	validateLatency *prometheus.HistogramVec
}

// NewRecorder registers the processor's metrics on reg and returns a
// Recorder backed by them.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		decodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redstone_decode_total",
			Help: "RedStone payload decode attempts by outcome.",
		}, []string{"outcome"}),
		decodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redstone_decode_seconds",
			Help:    "RedStone payload decode latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		validateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redstone_validate_total",
			Help: "RedStone payload validation attempts by outcome.",
		}, []string{"outcome"}),
		validateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redstone_validate_seconds",
			Help:    "RedStone payload validation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	reg.MustRegister(r.decodeTotal, r.decodeLatency, r.validateTotal, r.validateLatency)
	return r
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObserveDecode records one DecodePayload attempt.
func (r *Recorder) ObserveDecode(success bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	label := outcomeLabel(success)
	r.decodeTotal.WithLabelValues(label).Inc()
	r.decodeLatency.WithLabelValues(label).Observe(elapsed.Seconds())
}

// ObserveValidate records one validation-stage attempt (timestamp
// freshness and quorum together).
func (r *Recorder) ObserveValidate(success bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	label := outcomeLabel(success)
	r.validateTotal.WithLabelValues(label).Inc()
	r.validateLatency.WithLabelValues(label).Observe(elapsed.Seconds())
}
