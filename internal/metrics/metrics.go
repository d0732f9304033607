package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hook_deployer"

// Metrics holds the collectors updated by the runner and the notifier.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	deployments        *prometheus.CounterVec
	deploymentDuration *prometheus.HistogramVec
	steps              *prometheus.CounterVec
	notifications      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Deployment runs by application and result.",
		}, []string{"app", "result"}),
		deploymentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_duration_seconds",
			Help:      "Wall time of deployment runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"app"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Executed deployment steps by application and result.",
		}, []string{"app", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts by channel and result.",
		}, []string{"channel", "result"}),
	}

	reg.MustRegister(m.deployments, m.deploymentDuration, m.steps, m.notifications)
	return m
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) ObserveDeployment(app string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues(app, result(err)).Inc()
	m.deploymentDuration.WithLabelValues(app).Observe(took.Seconds())
}

func (m *Metrics) ObserveStep(app string, err error) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(app, result(err)).Inc()
}

func (m *Metrics) ObserveNotification(channel string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, result(err)).Inc()
}
