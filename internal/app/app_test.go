package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/worklog-sync/internal/activity"
	"github.com/vthunder/worklog-sync/internal/config"
	"github.com/vthunder/worklog-sync/internal/reconcile"
	"github.com/vthunder/worklog-sync/internal/worklog"
)

const fixtureYAML = `
logs:
  - id: log-1
    fields:
      PK: {title: "@Alice _ @2024년 5월 1일 _ 수"}
      근무시간: {number: 4}
      프로젝트명: {relation: [proj-a]}
      담당자: {relation: [staff-alice]}
      업무명: {rich_text: [Design review]}
  - id: log-2
    fields:
      PK: {title: "@Alice _ @2024년 5월 1일 _ 수"}
      근무시간: {number: 5}
      프로젝트명: {relation: [proj-a, proj-b]}
      업무명: {rich_text: [Pairing]}
      업무내용: {rich_text: [API client]}
  - id: log-3
    fields:
      PK: {title: "@Bob _ @2024년 6월 10일 _ 월"}
      근무시간: {number: 6}
      프로젝트명: {relation: [proj-b]}
  - id: log-broken
    fields:
      근무시간: {number: 2}
projects:
  - id: proj-a
    fields:
      Name: {title: Apollo}
  - id: proj-b
    fields:
      Name: {title: Borealis}
staff:
  - id: staff-alice
    fields:
      Name: {title: Alice}
      그룹: {select: Engineering}
      팀: {select: Platform}
`

func newTestApp(t *testing.T) (*App, *config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{"NOTION_TOKEN", "NOTION_API_KEY", "LOG_DB_ID", "SUMMARY_DB_ID", "DISCORD_TOKEN", "DISCORD_CHANNEL_ID"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	fixture := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(fixture, []byte(fixtureYAML), 0644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.LookupDelay, cfg.WriteDelay = 0, 0
	cfg.JournalPath = filepath.Join(dir, "state", "journal.jsonl")
	cfg.MetricsFile = filepath.Join(dir, "worklog_sync.prom")

	a, err := New(context.Background(), cfg, Options{Fixture: fixture})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, cfg, dir
}

func TestApp_FixtureRun(t *testing.T) {
	a, cfg, _ := newTestApp(t)
	ctx := context.Background()

	report, err := a.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Fetched)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 2, report.Groups)
	assert.Equal(t, 2, report.Created)

	alice := report.Summaries[0]
	assert.Equal(t, worklog.GroupKey{Subject: "Alice", Date: "2024-05-01"}, alice.Key())
	assert.Equal(t, 8.0, alice.TotalHours)
	assert.Equal(t, []string{"Apollo", "Borealis"}, alice.Projects)
	assert.Equal(t, "Engineering", alice.Group)
	assert.InDelta(t, 6.5, alice.ProjectHours["Apollo"], 1e-9)
	assert.InDelta(t, 2.5, alice.ProjectHours["Borealis"], 1e-9)

	again, err := a.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Updated)

	runs, err := a.Journal().ByType(activity.TypeRunDone, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, again.RunID, runs[0].RunID)

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `worklog_sync_summaries_total{outcome="updated"} 2`)
}

func TestApp_PreviewAndPeriod(t *testing.T) {
	a, _, _ := newTestApp(t)
	a.now = func() time.Time { return time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC) }

	report, err := a.Run(context.Background(), RunOptions{DryRun: true, CurrentMonth: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, "2024-06", report.Period)
	require.Len(t, report.Summaries, 1)
	assert.Equal(t, "Bob", report.Summaries[0].Subject)
	assert.Zero(t, report.Created)

	// the override is per run
	assert.Nil(t, a.EngineOptions(RunOptions{}).Period)
}

func TestApp_AbortedRunIsJournaled(t *testing.T) {
	a, cfg, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := a.Run(ctx, RunOptions{})
	require.ErrorIs(t, err, reconcile.ErrFetchLogs)
	require.NotNil(t, report)
	assert.True(t, report.Aborted())

	runs, err := a.Journal().Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, activity.TypeRunFailed, runs[0].Type)
	assert.Equal(t, report.RunID, runs[0].RunID)

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "worklog_sync_last_run_success 0")
}

func TestApp_CheckNeedsLiveStore(t *testing.T) {
	a, _, _ := newTestApp(t)
	_, err := a.Check(context.Background())
	assert.Error(t, err)
}

func TestNew_LiveNeedsToken(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"NOTION_TOKEN", "NOTION_API_KEY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.LogDB, cfg.SummaryDB = "a", "b"

	_, err = New(context.Background(), cfg, Options{})
	assert.ErrorContains(t, err, "NOTION_TOKEN")
}
