// Package metricsvc counts domain state transitions with prometheus.
package metricsvc

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/feedesk/core"
)

type Prometheus struct {
	registry      *prometheus.Registry
	payments      *prometheus.CounterVec
	subscriptions *prometheus.CounterVec
	locks         *prometheus.CounterVec
}

var _ core.Metrics = (*Prometheus)(nil)

func NewPrometheus(conf *core.Config) *Prometheus {
	labels := prometheus.Labels{"app": conf.AppName, "env": conf.Env}
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "feedesk",
			Name:        "payment_transitions_total",
			Help:        "Student installment payments by resulting status.",
			ConstLabels: labels,
		}, []string{"status"}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "feedesk",
			Name:        "subscription_transitions_total",
			Help:        "Teacher subscription payments by resulting status.",
			ConstLabels: labels,
		}, []string{"status"}),
		locks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "feedesk",
			Name:        "student_lock_toggles_total",
			Help:        "Student lock toggles by resulting state.",
			ConstLabels: labels,
		}, []string{"locked"}),
	}
	p.registry.MustRegister(
		p.payments,
		p.subscriptions,
		p.locks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) PaymentTransition(status string) {
	p.payments.WithLabelValues(status).Inc()
}

func (p *Prometheus) SubscriptionTransition(status string) {
	p.subscriptions.WithLabelValues(status).Inc()
}

func (p *Prometheus) LockToggled(locked bool) {
	p.locks.WithLabelValues(strconv.FormatBool(locked)).Inc()
}

// Handler exposes the registry, mounted on the debug server.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
