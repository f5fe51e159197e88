// Package metrics exposes the Prometheus instruments of the points service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	transactions   *prometheus.CounterVec
	pointsIssued   *prometheus.CounterVec
	redemptions    *prometheus.CounterVec
	completions    prometheus.Counter
	duplicates     prometheus.Counter
	compensations  *prometheus.CounterVec
	prizes         prometheus.Counter
	recalcDuration prometheus.Histogram
	driftPanelists prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers every instrument with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panelpoints_ledger_transactions_total",
			Help: "ledger transactions attempted, by type and outcome",
		}, []string{"type", "outcome"}),
		pointsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panelpoints_ledger_points_total",
			Help: "absolute points moved through the ledger, by direction",
		}, []string{"direction"}),
		redemptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panelpoints_redemptions_total",
			Help: "offer redemptions, by final status",
		}, []string{"status"}),
		completions: f.NewCounter(prometheus.CounterOpts{
			Name: "panelpoints_survey_completions_total",
			Help: "survey completions that were awarded points",
		}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "panelpoints_survey_completion_conflicts_total",
			Help: "survey completions rejected because the survey was already completed",
		}),
		compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panelpoints_compensations_total",
			Help: "compensating deletes run after a failed award or debit, by flow",
		}, []string{"flow"}),
		prizes: f.NewCounter(prometheus.CounterOpts{
			Name: "panelpoints_contest_prizes_total",
			Help: "contest prizes paid",
		}),
		recalcDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "panelpoints_leaderboard_recalc_seconds",
			Help:    "time spent recomputing a contest leaderboard",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		driftPanelists: f.NewGauge(prometheus.GaugeOpts{
			Name: "panelpoints_balance_drift_panelists",
			Help: "panelists whose cached balance disagreed with the ledger at the last reconcile",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panelpoints_http_requests_total",
			Help: "HTTP requests served, by method and status code",
		}, []string{"method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panelpoints_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Transaction records one ledger issue attempt. outcome is "ok" or an error
// code.
func (m *Metrics) Transaction(txType, outcome string, points int64) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(txType, outcome).Inc()
	if outcome != "ok" {
		return
	}
	if points > 0 {
		m.pointsIssued.WithLabelValues("credit").Add(float64(points))
	} else {
		m.pointsIssued.WithLabelValues("debit").Add(float64(-points))
	}
}

func (m *Metrics) Redemption(status string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(status).Inc()
}

func (m *Metrics) SurveyCompleted() {
	if m == nil {
		return
	}
	m.completions.Inc()
}

func (m *Metrics) SurveyConflict() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) Compensation(flow string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(flow).Inc()
}

func (m *Metrics) PrizeAwarded() {
	if m == nil {
		return
	}
	m.prizes.Inc()
}

func (m *Metrics) LeaderboardRecalc(d time.Duration) {
	if m == nil {
		return
	}
	m.recalcDuration.Observe(d.Seconds())
}

func (m *Metrics) Drift(panelists int) {
	if m == nil {
		return
	}
	m.driftPanelists.Set(float64(panelists))
}

func (m *Metrics) HTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}
