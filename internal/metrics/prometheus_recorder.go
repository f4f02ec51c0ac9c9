package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	webhookEvents  *prom.CounterVec
	deployOutcomes *prom.CounterVec
	pushRetries    prom.Counter
	deployDuration *prom.HistogramVec
}

// NewPrometheusRecorder constructs the metrics and registers them on
// reg. A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		webhookEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dawbrn",
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by event type",
		}, []string{"event"}),
		deployOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dawbrn",
			Name:      "deploy_outcomes_total",
			Help:      "Deployments by trigger and terminal outcome",
		}, []string{"trigger", "outcome"}),
		pushRetries: prom.NewCounter(prom.CounterOpts{
			Namespace: "dawbrn",
			Name:      "publish_push_retries_total",
			Help:      "Publication pushes rejected because the remote advanced",
		}),
		deployDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "dawbrn",
			Name:      "deploy_duration_seconds",
			Help:      "Wall time of deployments from claim to terminal state",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}, []string{"outcome"}),
	}
	reg.MustRegister(pr.webhookEvents, pr.deployOutcomes, pr.pushRetries, pr.deployDuration)
	return pr
}

func (p *PrometheusRecorder) IncWebhookEvent(event string) {
	if p == nil || p.webhookEvents == nil {
		return
	}
	p.webhookEvents.WithLabelValues(event).Inc()
}

func (p *PrometheusRecorder) IncDeployOutcome(trigger string, outcome OutcomeLabel) {
	if p == nil || p.deployOutcomes == nil {
		return
	}
	p.deployOutcomes.WithLabelValues(trigger, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncPushRetry() {
	if p == nil || p.pushRetries == nil {
		return
	}
	p.pushRetries.Inc()
}

func (p *PrometheusRecorder) ObserveDeployDuration(outcome OutcomeLabel, d time.Duration) {
	if p == nil || p.deployDuration == nil {
		return
	}
	p.deployDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}
