package metrics

import (
	"badgerland/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. Register it once per
// registry; tests use prometheus.NewRegistry().
type Metrics struct {
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobOutcomes   *prometheus.CounterVec
	overageCents  prometheus.Counter
	webhookEvents *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	notifySends   *prometheus.CounterVec
}

func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badgerland_job_runs_total",
				Help: "Batch job runs by job and result",
			},
			[]string{"job", "result"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "badgerland_job_duration_seconds",
				Help:    "Batch job wall time",
				Buckets: prometheus.ExponentialBuckets(0.05, 4, 7),
			},
			[]string{"job"},
		),
		jobOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badgerland_job_subjects_total",
				Help: "Per-subscriber outcomes inside batch jobs",
			},
			[]string{"job", "outcome"},
		),
		overageCents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "badgerland_overage_billed_cents_total",
				Help: "Overage amount sent to Stripe as invoice items, in cents",
			},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badgerland_stripe_webhook_events_total",
				Help: "Stripe webhook events by type and result",
			},
			[]string{"type", "result"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "badgerland_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		notifySends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "badgerland_notification_sends_total",
				Help: "Outbound email and SMS sends by channel and result",
			},
			[]string{"channel", "result"},
		),
	}
}

// ObserveJob records one finished run.
func (m *Metrics) ObserveJob(report *models.JobReport, err error) {
	if m == nil || report == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobRuns.WithLabelValues(report.Job, result).Inc()
	if !report.FinishedAt.IsZero() {
		m.jobDuration.WithLabelValues(report.Job).Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}
	m.jobOutcomes.WithLabelValues(report.Job, models.OutcomeCreated).Add(float64(report.Created))
	m.jobOutcomes.WithLabelValues(report.Job, models.OutcomeSkipped).Add(float64(report.Skipped))
	m.jobOutcomes.WithLabelValues(report.Job, models.OutcomeFailed).Add(float64(report.Failed))
}

func (m *Metrics) AddOverageCents(cents int64) {
	if m == nil {
		return
	}
	m.overageCents.Add(float64(cents))
}

func (m *Metrics) IncWebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) IncNotificationSend(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifySends.WithLabelValues(channel, result).Inc()
}
