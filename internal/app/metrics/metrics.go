package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mahaseias/sendzap/internal/domain/wizard"
)

// Recorder implements wizard.Observer and dispatch.Observer on Prometheus.
type Recorder struct {
	gatherer prometheus.Gatherer

	messagesTotal    *prometheus.CounterVec
	replaysTotal     prometheus.Counter
	proposalsTotal   *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a fresh registry, so
// several recorders can live in one process (tests).
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Recorder{
		gatherer: reg,
		messagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendzap_wizard_messages_total",
				Help: "Wizard messages handled, by state before and after the step",
			},
			[]string{"from", "to"},
		),
		replaysTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "sendzap_wizard_replays_total",
			Help: "Redelivered messages answered from the stored reply",
		}),
		proposalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendzap_proposals_total",
				Help: "Proposal dispatches by outcome",
			},
			[]string{"outcome"},
		),
		dispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sendzap_dispatch_duration_seconds",
				Help:    "Time spent assembling, rendering and sending a proposal",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}

func (r *Recorder) ObserveStep(from, to wizard.State) {
	r.messagesTotal.WithLabelValues(from.String(), to.String()).Inc()
}

func (r *Recorder) ObserveReplay() { r.replaysTotal.Inc() }

func (r *Recorder) ObserveDispatch(outcome string, took time.Duration) {
	r.proposalsTotal.WithLabelValues(outcome).Inc()
	r.dispatchDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
