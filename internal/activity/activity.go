// Package activity is the run journal: one JSON line per notable event
// (run start/finish, summary written, write or lookup failure). It plugs
// into the engine as a reconcile.Observer and backs the history command.
package activity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/worklog-sync/internal/logging"
	"github.com/vthunder/worklog-sync/internal/reconcile"
	"github.com/vthunder/worklog-sync/internal/resolve"
	"github.com/vthunder/worklog-sync/internal/worklog"
)

// Type identifies what kind of activity this is
type Type string

const (
	TypeRunStart       Type = "run_start"
	TypeRunDone        Type = "run_done"
	TypeRunFailed      Type = "run_failed"
	TypeSummaryCreated Type = "summary_created"
	TypeSummaryUpdated Type = "summary_updated"
	TypeWriteFailed    Type = "write_failed"
	TypeLookupFailed   Type = "lookup_failed"
)

// Entry represents a single journal entry
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Type      Type           `json:"type"`
	RunID     string         `json:"run_id"`
	Summary   string         `json:"summary"`
	Key       string         `json:"key,omitempty"`       // name@date of the summary
	RecordID  string         `json:"record_id,omitempty"` // remote record touched
	Data      map[string]any `json:"data,omitempty"`      // Structured details
}

// Log is the run journal
type Log struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New creates a journal writing to path
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the journal file
func (l *Log) Path() string {
	return l.path
}

// Log appends an entry to the journal
func (l *Log) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// record logs and only warns on failure; the journal never fails a run
func (l *Log) record(entry Entry) {
	if err := l.Log(entry); err != nil {
		logging.Warn("activity", "journal write failed: %v", err)
	}
}

// reconcile.Observer

func (l *Log) RunStarted(runID string, at time.Time) {
	l.record(Entry{
		Timestamp: at,
		Type:      TypeRunStart,
		RunID:     runID,
		Summary:   "run started",
	})
}

func (l *Log) SummaryWritten(runID string, s worklog.Summary, outcome reconcile.Outcome, recordID string) {
	t := TypeSummaryUpdated
	if outcome == reconcile.OutcomeCreated {
		t = TypeSummaryCreated
	}
	l.record(Entry{
		Type:     t,
		RunID:    runID,
		Summary:  fmt.Sprintf("%s %.1fh %s", outcome, s.TotalHours, s.Status),
		Key:      s.Key().String(),
		RecordID: recordID,
		Data: map[string]any{
			"total_hours":  s.TotalHours,
			"logged_hours": s.LoggedHours,
			"status":       string(s.Status),
			"projects":     s.Projects,
		},
	})
}

func (l *Log) WriteFailed(runID string, f reconcile.KeyFailure) {
	l.record(Entry{
		Type:    TypeWriteFailed,
		RunID:   runID,
		Summary: fmt.Sprintf("%s failed", f.Stage),
		Key:     f.Key.String(),
		Data:    map[string]any{"error": f.Err},
	})
}

func (l *Log) LookupFailed(runID string, f resolve.Failure) {
	l.record(Entry{
		Type:     TypeLookupFailed,
		RunID:    runID,
		Summary:  fmt.Sprintf("%s lookup failed", f.Kind),
		RecordID: f.Ref,
		Data:     map[string]any{"error": f.Err.Error()},
	})
}

func (l *Log) RunFinished(r *reconcile.Report) {
	if r.Aborted() {
		l.record(Entry{
			Type:    TypeRunFailed,
			RunID:   r.RunID,
			Summary: "aborted: " + logging.Truncate(r.Error, 200),
			Data: map[string]any{
				"duration_sec": r.Duration.Seconds(),
				"dry_run":      r.DryRun,
				"error":        r.Error,
			},
		})
		return
	}
	l.record(Entry{
		Type:    TypeRunDone,
		RunID:   r.RunID,
		Summary: fmt.Sprintf("%d created, %d updated, %d failed", r.Created, r.Updated, r.Failed),
		Data: map[string]any{
			"duration_sec": r.Duration.Seconds(),
			"dry_run":      r.DryRun,
			"fetched":      r.Fetched,
			"dropped":      r.Dropped,
			"groups":       r.Groups,
			"created":      r.Created,
			"updated":      r.Updated,
			"failed":       r.Failed,
			"unresolved":   len(r.Unresolved),
		},
	})
}

// Query methods

// Recent returns the last n entries
func (l *Log) Recent(n int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	if n <= 0 || n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// ByType returns entries of a specific type, most recent first
func (l *Log) ByType(t Type, limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		if entries[i].Type == t {
			result = append(result, entries[i])
		}
	}
	return result, nil
}

// Runs returns finished runs, aborted ones included, most recent first.
// A non-positive limit returns all of them.
func (l *Log) Runs(limit int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for i := len(entries) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if t := entries[i].Type; t == TypeRunDone || t == TypeRunFailed {
			result = append(result, entries[i])
		}
	}
	return result, nil
}

// ByRun returns every entry of one run in write order. A unique prefix
// of the run ID is enough.
func (l *Log) ByRun(runID string) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var result []Entry
	for _, e := range entries {
		if runID != "" && strings.HasPrefix(e.RunID, runID) {
			result = append(result, e)
		}
	}
	return result, nil
}

// readAll reads all entries from the journal file
func (l *Log) readAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
