package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_requests_total",
			Help: "Total number of API requests per schedule and path",
		},
		[]string{"schedule", "path"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerdash_request_duration_seconds",
			Help:    "Request duration in seconds per schedule and path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"schedule", "path"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_request_errors_total",
			Help: "Total number of error responses per schedule, path and status code",
		},
		[]string{"schedule", "path", "code"},
	)
)

var (
	CostCalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_cost_calculations_total",
			Help: "Cost resolutions per schedule and method (reported, metered, estimated)",
		},
		[]string{"schedule", "method"},
	)

	TodayCost = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powerdash_today_cost",
			Help: "Most recently resolved cost for today per schedule",
		},
		[]string{"schedule"},
	)

	TodayKWh = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powerdash_today_kwh",
			Help: "Consumption (kWh) behind the most recent cost for today per schedule",
		},
		[]string{"schedule"},
	)

	BudgetAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_budget_alerts_total",
			Help: "Budget alerts sent per channel",
		},
		[]string{"channel"},
	)
)

// RecordCost updates the cost gauges after a successful resolution.
func RecordCost(schedule, method string, kwh, cost float64) {
	CostCalculationsTotal.WithLabelValues(schedule, method).Inc()
	TodayCost.WithLabelValues(schedule).Set(cost)
	TodayKWh.WithLabelValues(schedule).Set(kwh)
}

var (
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_upstream_requests_total",
			Help: "Requests to the telemetry backend per endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	UpstreamRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerdash_upstream_request_duration_seconds",
			Help:    "Telemetry backend request duration per endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	LiveFeedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerdash_live_feed_connected",
			Help: "1 while the live feed websocket is connected",
		},
	)

	LiveFeedReadingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerdash_live_feed_readings_total",
			Help: "Readings received over the live feed",
		},
	)
)

// ObserveUpstream records one telemetry backend request.
func ObserveUpstream(endpoint string, startedAt time.Time, err error) {
	UpstreamRequestDurationSeconds.WithLabelValues(endpoint).Observe(time.Since(startedAt).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powerdash_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powerdash_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerdash_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
