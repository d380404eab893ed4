package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the job collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	reminders       *prometheus.CounterVec
	channelAttempts *prometheus.CounterVec
	overdueMarked   prometheus.Counter
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maintcue",
			Name:      "job_runs_total",
			Help:      "Job invocations by job, trigger and outcome.",
		}, []string{"job", "trigger", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maintcue",
			Name:      "job_duration_seconds",
			Help:      "Wall time of completed job runs.",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maintcue",
			Name:      "reminders_total",
			Help:      "Reminders resolved by final status.",
		}, []string{"status"}),
		channelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maintcue",
			Name:      "channel_attempts_total",
			Help:      "Notification delivery attempts by channel and result.",
		}, []string{"channel", "result"}),
		overdueMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maintcue",
			Name:      "overdue_tasks_marked_total",
			Help:      "Task assignments moved from pending to overdue.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobRuns, m.jobDuration, m.reminders, m.channelAttempts, m.overdueMarked,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobRun(job, trigger, outcome string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, trigger, outcome).Inc()
}

func (m *Metrics) JobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) ReminderResolved(status string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(status).Inc()
}

func (m *Metrics) ChannelAttempt(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.channelAttempts.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) OverdueMarked(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.overdueMarked.Add(float64(n))
}
