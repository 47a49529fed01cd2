package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
logs:
  - id: log-1
    fields:
      PK: {title: "@Alice _ @2024년 5월 1일 _ 수"}
      근무시간: {number: 8}
      프로젝트명: {relation: [proj-a]}
      업무명: {rich_text: [Planning]}
projects:
  - id: proj-a
    fields:
      Name: {title: Apollo}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func setupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{"NOTION_TOKEN", "NOTION_API_KEY", "LOG_DB_ID", "SUMMARY_DB_ID", "DISCORD_TOKEN", "DISCORD_CHANNEL_ID"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixture.yaml"), []byte(fixture), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worklog-sync.yaml"), []byte("lookup_delay: 0s\nwrite_delay: 0s\n"), 0644))
	return dir
}

func TestRun_Fixture(t *testing.T) {
	setupDir(t)

	out, err := execute(t, "run", "--fixture", "fixture.yaml", "--metrics-file", "out.prom")
	require.NoError(t, err)
	assert.Contains(t, out, "created 1, updated 0, failed 0")
	assert.FileExists(t, "out.prom")

	out, err = execute(t, "history", "--runs")
	require.NoError(t, err)
	assert.Contains(t, out, "run_done")
}

func TestPreview_PrintsYAML(t *testing.T) {
	setupDir(t)

	out, err := execute(t, "preview", "--fixture", "fixture.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "subject: Alice")
	assert.Contains(t, out, "2024-05-01")
	assert.Contains(t, out, "status: normal")
	assert.Contains(t, out, "Apollo: 8")
	assert.NoFileExists(t, filepath.Join("state", "journal.jsonl"), "preview writes nothing to the journal")
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	setupDir(t)
	t.Setenv("NOTION_TOKEN", "secret_0123456789")

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "notion_token: secr****")
	assert.NotContains(t, out, "0123456789")
}

func TestConfigCheck_NeedsLiveStore(t *testing.T) {
	setupDir(t)
	_, err := execute(t, "config", "check", "--fixture", "fixture.yaml")
	assert.Error(t, err)
}

func TestRun_MissingCredentials(t *testing.T) {
	setupDir(t)
	_, err := execute(t, "run")
	assert.ErrorContains(t, err, "NOTION_TOKEN")
}
