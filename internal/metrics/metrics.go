// Package metrics records run counters in a private Prometheus registry
// and exports them as a node_exporter textfile after each run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vthunder/worklog-sync/internal/reconcile"
	"github.com/vthunder/worklog-sync/internal/resolve"
	"github.com/vthunder/worklog-sync/internal/worklog"
)

// Recorder is a reconcile.Observer backed by its own registry
type Recorder struct {
	reg *prometheus.Registry

	// summariesTotal counts summary writes by outcome (created, updated, failed)
	summariesTotal *prometheus.CounterVec

	// lookupFailures counts relation lookups that exhausted retries, by kind
	lookupFailures *prometheus.CounterVec

	// summaryHours tracks credited hours per written summary
	summaryHours prometheus.Histogram

	lastRunTimestamp prometheus.Gauge
	lastRunDuration  prometheus.Gauge
	lastRunSuccess   prometheus.Gauge
	logsFetched      prometheus.Gauge
	logsDropped      prometheus.Gauge
	groups           prometheus.Gauge
	unresolvedRefs   prometheus.Gauge
}

// New creates a recorder with a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		summariesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worklog_sync_summaries_total",
			Help: "Summary upserts by outcome",
		}, []string{"outcome"}),
		lookupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worklog_sync_lookup_failures_total",
			Help: "Relation lookups that failed after retries, by kind",
		}, []string{"kind"}),
		summaryHours: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "worklog_sync_summary_hours",
			Help:    "Credited hours per written summary",
			Buckets: []float64{0, 1, 2, 4, 6, 7, 8},
		}),
		lastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_sync_last_run_timestamp_seconds",
			Help: "Unix time the last run started",
		}),
		lastRunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_sync_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		lastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_sync_last_run_success",
			Help: "1 if the last run completed, 0 if it aborted",
		}),
		logsFetched: f.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_sync_logs_fetched",
			Help: "Log records fetched by the last run",
		}),
		logsDropped: f.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_sync_logs_dropped",
			Help: "Malformed log records skipped by the last run",
		}),
		groups: f.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_sync_groups",
			Help: "Distinct (name, date) groups in the last run",
		}),
		unresolvedRefs: f.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_sync_unresolved_refs",
			Help: "Project references that did not resolve in the last run",
		}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile writes the registry in text exposition format. The file
// is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

func (r *Recorder) RunStarted(_ string, at time.Time) {
	r.lastRunTimestamp.Set(float64(at.Unix()))
}

func (r *Recorder) SummaryWritten(_ string, s worklog.Summary, outcome reconcile.Outcome, _ string) {
	r.summariesTotal.WithLabelValues(string(outcome)).Inc()
	r.summaryHours.Observe(s.TotalHours)
}

func (r *Recorder) WriteFailed(_ string, _ reconcile.KeyFailure) {
	r.summariesTotal.WithLabelValues("failed").Inc()
}

func (r *Recorder) LookupFailed(_ string, f resolve.Failure) {
	r.lookupFailures.WithLabelValues(string(f.Kind)).Inc()
}

func (r *Recorder) RunFinished(rep *reconcile.Report) {
	r.lastRunDuration.Set(rep.Duration.Seconds())
	if rep.Aborted() {
		r.lastRunSuccess.Set(0)
	} else {
		r.lastRunSuccess.Set(1)
	}
	r.logsFetched.Set(float64(rep.Fetched))
	r.logsDropped.Set(float64(rep.Dropped))
	r.groups.Set(float64(rep.Groups))
	r.unresolvedRefs.Set(float64(len(rep.Unresolved)))
}
