// Package reconcile drives one worklog run: fetch logs, group, resolve
// relations, aggregate, then upsert one summary per (name, date).
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/worklog-sync/internal/logging"
	"github.com/vthunder/worklog-sync/internal/resolve"
	"github.com/vthunder/worklog-sync/internal/retry"
	"github.com/vthunder/worklog-sync/internal/store"
	"github.com/vthunder/worklog-sync/internal/worklog"
)

// ErrFetchLogs wraps a failure of the initial log fetch, the only error
// that aborts a run.
var ErrFetchLogs = errors.New("fetch logs")

// KeyFailure is one summary that could not be written
type KeyFailure struct {
	Key   worklog.GroupKey `json:"key" yaml:"key"`
	Stage Stage            `json:"stage" yaml:"stage"`
	Err   string           `json:"error" yaml:"error"`
}

// Report describes a finished run
type Report struct {
	RunID       string            `json:"run_id" yaml:"run_id"`
	StartedAt   time.Time         `json:"started_at" yaml:"started_at"`
	Duration    time.Duration     `json:"duration" yaml:"duration"`
	DryRun      bool              `json:"dry_run" yaml:"dry_run"`
	Period      string            `json:"period,omitempty" yaml:"period,omitempty"`
	Fetched     int               `json:"fetched" yaml:"fetched"`
	Valid       int               `json:"valid" yaml:"valid"`
	Dropped     int               `json:"dropped" yaml:"dropped"`
	OutOfPeriod int               `json:"out_of_period,omitempty" yaml:"out_of_period,omitempty"`
	Groups      int               `json:"groups" yaml:"groups"`
	Lookups     int               `json:"lookups" yaml:"lookups"`
	Created     int               `json:"created" yaml:"created"`
	Updated     int               `json:"updated" yaml:"updated"`
	Failed      int               `json:"failed" yaml:"failed"`
	Unresolved  []string          `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	Failures    []KeyFailure      `json:"failures,omitempty" yaml:"failures,omitempty"`
	Summaries   []worklog.Summary `json:"summaries,omitempty" yaml:"summaries,omitempty"`

	// Error is set when the run aborted
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Aborted reports whether the run stopped on a fatal error
func (r *Report) Aborted() bool {
	return r.Error != ""
}

// Observer is told about run progress. Journal and metrics hang off it.
type Observer interface {
	RunStarted(runID string, at time.Time)
	SummaryWritten(runID string, s worklog.Summary, outcome Outcome, recordID string)
	WriteFailed(runID string, f KeyFailure)
	LookupFailed(runID string, f resolve.Failure)
	// RunFinished is called once per run, aborted runs included
	RunFinished(r *Report)
}

// Options configures an Engine. Zero values use defaults.
type Options struct {
	LogSource     string
	SummarySource string

	LogSchema   worklog.LogSchema
	StaffSchema worklog.StaffSchema
	Writer      WriterOptions

	Workers      int
	LookupPolicy retry.Policy
	MaxHours     float64

	// Period restricts the run to one month; nil processes everything
	Period *worklog.Period
	DryRun bool

	Observers []Observer
	Now       func() time.Time
}

// Engine runs the pipeline against a RemoteStore
type Engine struct {
	store store.RemoteStore
	opts  Options
}

// New creates an engine
func New(s store.RemoteStore, opts Options) *Engine {
	if opts.LogSchema == (worklog.LogSchema{}) {
		opts.LogSchema = worklog.DefaultLogSchema()
	}
	if opts.LookupPolicy.Attempts == 0 {
		opts.LookupPolicy = resolve.DefaultPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{store: s, opts: opts}
}

// Run performs one full pass. Per-reference and per-key failures are
// recorded in the report; only a failed log fetch (ErrFetchLogs) or a
// cancelled context returns an error. The report is returned and passed
// to RunFinished either way, with Error set when the run aborted.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: e.opts.Now(),
		DryRun:    e.opts.DryRun,
	}
	if e.opts.Period != nil {
		report.Period = e.opts.Period.String()
	}
	for _, o := range e.opts.Observers {
		o.RunStarted(report.RunID, report.StartedAt)
	}
	logging.Info("reconcile", "run %s started (logs=%s summaries=%s dry_run=%v)",
		report.RunID, e.opts.LogSource, e.opts.SummarySource, e.opts.DryRun)

	records, err := store.QueryAll(ctx, e.store, e.opts.LogSource, nil, e.opts.LookupPolicy.Call)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFetchLogs, err)
		e.finish(report, err)
		return report, err
	}
	report.Fetched = len(records)

	entries := worklog.ParseEntries(records, e.opts.LogSchema)
	groups, stats := worklog.Grouper{Period: e.opts.Period}.Group(entries)
	report.Valid = stats.Valid
	report.Dropped = stats.Malformed
	report.OutOfPeriod = stats.OutOfPeriod
	report.Groups = len(groups)
	logging.Info("reconcile", "fetched %d logs: %d valid, %d malformed, %d out of period, %d groups",
		report.Fetched, stats.Valid, stats.Malformed, stats.OutOfPeriod, len(groups))

	resolver := resolve.New(e.store, resolve.Options{
		Workers: e.opts.Workers,
		Policy:  e.opts.LookupPolicy,
		Staff:   e.opts.StaffSchema,
	})
	resolver.ResolveProjectTitles(ctx, groups.ProjectRefs())
	resolver.ResolveStaff(ctx, groups.StaffRefs())
	report.Lookups = resolver.Lookups()
	report.Unresolved = resolver.Unresolved()
	for _, f := range resolver.Failures() {
		for _, o := range e.opts.Observers {
			o.LookupFailed(report.RunID, f)
		}
	}

	agg := worklog.Aggregator{MaxHours: e.opts.MaxHours}
	writer := NewWriter(e.store, e.opts.SummarySource, e.opts.Writer)

	var runErr error
	for _, key := range groups.Keys() {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		summary := agg.Aggregate(key, groups[key], resolver)
		report.Summaries = append(report.Summaries, summary)
		if e.opts.DryRun {
			continue
		}

		outcome, id, err := writer.Upsert(ctx, summary)
		if err != nil {
			f := KeyFailure{Key: key, Stage: StageWrite, Err: err.Error()}
			var we *WriteError
			if errors.As(err, &we) {
				f.Stage = we.Stage
				f.Err = we.Err.Error()
			}
			logging.Warn("reconcile", "%s failed for %s: %s", f.Stage, key, f.Err)
			report.Failed++
			report.Failures = append(report.Failures, f)
			for _, o := range e.opts.Observers {
				o.WriteFailed(report.RunID, f)
			}
			continue
		}

		switch outcome {
		case OutcomeCreated:
			report.Created++
		case OutcomeUpdated:
			report.Updated++
		}
		for _, o := range e.opts.Observers {
			o.SummaryWritten(report.RunID, summary, outcome, id)
		}
	}

	e.finish(report, runErr)
	return report, runErr
}

func (e *Engine) finish(report *Report, err error) {
	report.Duration = e.opts.Now().Sub(report.StartedAt)
	if err != nil {
		report.Error = err.Error()
		logging.Error("reconcile", "run %s aborted after %s: %v",
			report.RunID, report.Duration.Round(time.Millisecond), err)
	} else {
		logging.Info("reconcile", "run %s done in %s: %d created, %d updated, %d failed, %d unresolved refs",
			report.RunID, report.Duration.Round(time.Millisecond), report.Created, report.Updated, report.Failed, len(report.Unresolved))
	}
	for _, o := range e.opts.Observers {
		o.RunFinished(report)
	}
}
