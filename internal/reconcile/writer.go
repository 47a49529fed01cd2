package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/vthunder/worklog-sync/internal/logging"
	"github.com/vthunder/worklog-sync/internal/retry"
	"github.com/vthunder/worklog-sync/internal/store"
	"github.com/vthunder/worklog-sync/internal/worklog"
)

// DefaultWritePolicy retries summary lookups and writes 3 times, 2s apart
func DefaultWritePolicy() retry.Policy {
	return retry.Policy{
		Name:      "write",
		Attempts:  3,
		Delay:     2 * time.Second,
		Retryable: store.IsTransient,
	}
}

// Outcome of an upsert
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// Stage names where a per-key failure happened
type Stage string

const (
	StageLookup Stage = "lookup"
	StageWrite  Stage = "write"
)

// WriteError is a failed upsert for one key
type WriteError struct {
	Key   worklog.GroupKey
	Stage Stage
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// MaxTextSegments is the most text objects one rich text value may carry
const MaxTextSegments = 100

// WriterOptions configures a Writer. Zero values use defaults.
type WriterOptions struct {
	Schema    worklog.SummarySchema
	Labels    worklog.StatusLabels
	ChunkSize int
	Policy    retry.Policy
}

// Writer upserts summaries into the summary database by natural key
type Writer struct {
	store       store.RemoteStore
	destination string
	opts        WriterOptions
}

// NewWriter creates a writer for the summary database destination
func NewWriter(s store.RemoteStore, destination string, opts WriterOptions) *Writer {
	if opts.Schema == (worklog.SummarySchema{}) {
		opts.Schema = worklog.DefaultSummarySchema()
	}
	if opts.Labels == (worklog.StatusLabels{}) {
		opts.Labels = worklog.DefaultStatusLabels()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = worklog.DefaultChunkSize
	}
	if opts.Policy.Attempts == 0 {
		opts.Policy = DefaultWritePolicy()
	}
	return &Writer{store: s, destination: destination, opts: opts}
}

// Find returns the existing summary for key, or nil when there is none.
// Both name and date must match exactly. If several match, the first is
// used.
func (w *Writer) Find(ctx context.Context, key worklog.GroupKey) (*store.Record, error) {
	filter := store.And(
		store.Equals(w.opts.Schema.Name, store.KindTitle, key.Subject),
		store.Equals(w.opts.Schema.Date, store.KindDate, key.Date),
	)
	matches, err := store.QueryAll(ctx, w.store, w.destination, filter, w.opts.Policy.Call)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
	default:
		logging.Warn("reconcile", "%d summaries match %s, updating %s", len(matches), key, matches[0].ID)
	}
	return &matches[0], nil
}

// Fields builds the write payload for s. The identity (name) field is
// only included when includeIdentity is set; group and team only when
// non-empty so curated values are never blanked.
func (w *Writer) Fields(s worklog.Summary, includeIdentity bool) store.Fields {
	sc := w.opts.Schema
	fields := store.Fields{
		sc.Date:       store.Date(s.Date),
		sc.TotalHours: store.Number(s.TotalHours),
		sc.Status:     store.Select(w.opts.Labels.Label(s.Status)),
		sc.Narrative:  w.richText(s, sc.Narrative, s.Narrative),
	}
	if sc.Projects != "" {
		fields[sc.Projects] = w.richText(s, sc.Projects, s.ProjectList())
	}
	if includeIdentity {
		fields[sc.Name] = store.Title(s.Subject)
	}
	if s.Group != "" && sc.Group != "" {
		fields[sc.Group] = store.Select(s.Group)
	}
	if s.Team != "" && sc.Team != "" {
		fields[sc.Team] = store.Select(s.Team)
	}
	return fields
}

// richText chunks text for storage, dropping segments past
// MaxTextSegments
func (w *Writer) richText(s worklog.Summary, field, text string) store.Value {
	segments := worklog.Chunk(text, w.opts.ChunkSize)
	if len(segments) > MaxTextSegments {
		logging.Warn("reconcile", "%s: %s truncated to %d of %d segments",
			s.Key(), field, MaxTextSegments, len(segments))
		segments = segments[:MaxTextSegments]
	}
	return store.RichText(segments...)
}

// Upsert updates the existing summary for s's key or creates one.
// Each remote call is retried per the write policy; the returned error is
// a *WriteError naming the failed stage.
func (w *Writer) Upsert(ctx context.Context, s worklog.Summary) (Outcome, string, error) {
	key := s.Key()

	existing, err := w.Find(ctx, key)
	if err != nil {
		return "", "", &WriteError{Key: key, Stage: StageLookup, Err: err}
	}

	if existing != nil {
		fields := w.Fields(s, false)
		_, err := retry.Value(ctx, w.opts.Policy, func() (*store.Record, error) {
			return w.store.Update(ctx, existing.ID, fields)
		})
		if err != nil {
			return "", existing.ID, &WriteError{Key: key, Stage: StageWrite, Err: err}
		}
		logging.Debug("reconcile", "updated %s (%s)", key, existing.ID)
		return OutcomeUpdated, existing.ID, nil
	}

	fields := w.Fields(s, true)
	rec, err := retry.Value(ctx, w.opts.Policy, func() (*store.Record, error) {
		return w.store.Create(ctx, w.destination, fields)
	})
	if err != nil {
		return "", "", &WriteError{Key: key, Stage: StageWrite, Err: err}
	}
	logging.Debug("reconcile", "created %s (%s)", key, rec.ID)
	return OutcomeCreated, rec.ID, nil
}
