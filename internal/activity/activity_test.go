package activity

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vthunder/worklog-sync/internal/reconcile"
	"github.com/vthunder/worklog-sync/internal/resolve"
	"github.com/vthunder/worklog-sync/internal/worklog"
)

// helper: create a Log backed by a temp directory
func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "journal.jsonl")
	return New(path), path
}

// helper: read all raw entries from the JSONL file
func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var entries []Entry
	for _, line := range splitLines(string(data)) {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// --- Basic write/read ---

func TestLog_WritesJSONL(t *testing.T) {
	log, path := newTestLog(t)

	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	err := log.Log(Entry{
		Timestamp: ts,
		Type:      TypeRunStart,
		RunID:     "run-1",
		Summary:   "run started",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Type != TypeRunStart {
		t.Errorf("type = %q, want %q", e.Type, TypeRunStart)
	}
	if e.RunID != "run-1" {
		t.Errorf("run id = %q", e.RunID)
	}
	if !e.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", e.Timestamp, ts)
	}
}

func TestLog_AutoTimestamp(t *testing.T) {
	log, path := newTestLog(t)

	before := time.Now()
	if err := log.Log(Entry{Type: TypeRunDone, Summary: "auto-ts"}); err != nil {
		t.Fatal(err)
	}
	after := time.Now()

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry")
	}
	ts := entries[0].Timestamp
	if ts.Before(before) || ts.After(after) {
		t.Errorf("auto-timestamp %v not in [%v, %v]", ts, before, after)
	}
}

func TestLog_SkipsMalformedLines(t *testing.T) {
	log, path := newTestLog(t)

	if err := log.Log(Entry{Type: TypeRunStart, Summary: "good"}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n")
	f.Close()
	if err := log.Log(Entry{Type: TypeRunDone, Summary: "also good"}); err != nil {
		t.Fatal(err)
	}

	entries, err := log.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestLog_MissingFileReturnsNil(t *testing.T) {
	log, _ := newTestLog(t)

	entries, err := log.Recent(5)
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Errorf("expected nil, got %v", entries)
	}
}

// --- Observer ---

func TestObserver_FullRun(t *testing.T) {
	log, path := newTestLog(t)
	at := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	summary := worklog.Summary{
		Subject:     "Alice",
		Date:        "2024-05-01",
		TotalHours:  8,
		LoggedHours: 9,
		Status:      worklog.StatusNormal,
		Projects:    []string{"Apollo"},
	}
	log.RunStarted("run-1", at)
	log.LookupFailed("run-1", resolve.Failure{Kind: resolve.KindProject, Ref: "P9", Err: errors.New("502")})
	log.SummaryWritten("run-1", summary, reconcile.OutcomeCreated, "page-1")
	log.SummaryWritten("run-1", summary, reconcile.OutcomeUpdated, "page-1")
	log.WriteFailed("run-1", reconcile.KeyFailure{
		Key:   worklog.GroupKey{Subject: "Bob", Date: "2024-05-01"},
		Stage: reconcile.StageWrite,
		Err:   "503",
	})
	log.RunFinished(&reconcile.Report{RunID: "run-1", Created: 1, Updated: 1, Failed: 1, Duration: 1500 * time.Millisecond})

	entries := readEntries(t, path)
	want := []Type{TypeRunStart, TypeLookupFailed, TypeSummaryCreated, TypeSummaryUpdated, TypeWriteFailed, TypeRunDone}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, typ := range want {
		if entries[i].Type != typ {
			t.Errorf("entry %d type = %q, want %q", i, entries[i].Type, typ)
		}
		if entries[i].RunID != "run-1" {
			t.Errorf("entry %d run id = %q", i, entries[i].RunID)
		}
	}

	if !entries[0].Timestamp.Equal(at) {
		t.Errorf("run start timestamp = %v, want %v", entries[0].Timestamp, at)
	}
	if entries[1].RecordID != "P9" || entries[1].Data["error"] != "502" {
		t.Errorf("lookup failure entry = %+v", entries[1])
	}
	if entries[2].Key != "Alice@2024-05-01" || entries[2].RecordID != "page-1" {
		t.Errorf("created entry = %+v", entries[2])
	}
	if entries[2].Data["total_hours"] != 8.0 {
		t.Errorf("total_hours = %v", entries[2].Data["total_hours"])
	}
	if entries[4].Key != "Bob@2024-05-01" || entries[4].Data["error"] != "503" {
		t.Errorf("write failure entry = %+v", entries[4])
	}
	if entries[5].Summary != "1 created, 1 updated, 1 failed" {
		t.Errorf("run done summary = %q", entries[5].Summary)
	}
	if entries[5].Data["duration_sec"] != 1.5 {
		t.Errorf("duration_sec = %v", entries[5].Data["duration_sec"])
	}
}

func TestObserver_AbortedRun(t *testing.T) {
	log, path := newTestLog(t)

	log.RunStarted("run-2", time.Now())
	log.RunFinished(&reconcile.Report{RunID: "run-2", Error: "fetch logs: validation failed"})

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	failed := entries[1]
	if failed.Type != TypeRunFailed || failed.RunID != "run-2" {
		t.Errorf("finish entry = %+v", failed)
	}
	if failed.Data["error"] != "fetch logs: validation failed" {
		t.Errorf("error = %v", failed.Data["error"])
	}

	done, err := log.ByType(TypeRunDone, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 0 {
		t.Errorf("aborted run journaled as done: %+v", done)
	}
}

// --- Query: Recent ---

func TestRecent_Basic(t *testing.T) {
	log, _ := newTestLog(t)

	for i := 0; i < 10; i++ {
		log.Log(Entry{Type: TypeRunStart, Summary: "e"})
	}

	entries, err := log.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3, got %d", len(entries))
	}
}

func TestRecent_FewerThanN(t *testing.T) {
	log, _ := newTestLog(t)
	log.Log(Entry{Type: TypeRunStart, Summary: "only"})

	entries, err := log.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1, got %d", len(entries))
	}
}

func TestRecent_NonPositiveReturnsAll(t *testing.T) {
	log, _ := newTestLog(t)
	log.Log(Entry{Type: TypeRunStart, Summary: "only"})

	for _, n := range []int{0, -1} {
		entries, err := log.Recent(n)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("Recent(%d): expected 1, got %d", n, len(entries))
		}
	}
}

// --- Query: ByType / ByRun ---

func TestRuns_IncludesAborted(t *testing.T) {
	log, _ := newTestLog(t)

	log.Log(Entry{Type: TypeRunDone, RunID: "a"})
	log.Log(Entry{Type: TypeSummaryCreated, RunID: "b"})
	log.Log(Entry{Type: TypeRunFailed, RunID: "b"})
	log.Log(Entry{Type: TypeRunDone, RunID: "c"})

	entries, err := log.Runs(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3, got %d", len(entries))
	}
	if entries[0].RunID != "c" || entries[1].Type != TypeRunFailed || entries[2].RunID != "a" {
		t.Errorf("runs = %+v", entries)
	}
}

func TestByType_MostRecentFirst(t *testing.T) {
	log, _ := newTestLog(t)

	log.Log(Entry{Type: TypeRunDone, RunID: "a"})
	log.Log(Entry{Type: TypeRunStart, RunID: "b"})
	log.Log(Entry{Type: TypeRunDone, RunID: "b"})
	log.Log(Entry{Type: TypeRunDone, RunID: "c"})

	entries, err := log.ByType(TypeRunDone, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2, got %d", len(entries))
	}
	if entries[0].RunID != "c" || entries[1].RunID != "b" {
		t.Errorf("order = %s, %s", entries[0].RunID, entries[1].RunID)
	}
}

func TestByRun_Prefix(t *testing.T) {
	log, _ := newTestLog(t)

	log.Log(Entry{Type: TypeRunStart, RunID: "3f2a9c-1"})
	log.Log(Entry{Type: TypeRunStart, RunID: "7b1d00-2"})
	log.Log(Entry{Type: TypeRunDone, RunID: "3f2a9c-1"})

	entries, err := log.ByRun("3f2a")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2, got %d", len(entries))
	}

	entries, _ = log.ByRun("")
	if len(entries) != 0 {
		t.Errorf("empty run id matched %d entries", len(entries))
	}
}

// --- Concurrency ---

func TestConcurrentWrites(t *testing.T) {
	log, path := newTestLog(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Log(Entry{Type: TypeSummaryUpdated, Summary: "concurrent"})
		}()
	}
	wg.Wait()

	entries := readEntries(t, path)
	if len(entries) != n {
		t.Errorf("expected %d entries, got %d (possible corruption)", n, len(entries))
	}
}
