package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/worklog-sync/internal/activity"
	"github.com/vthunder/worklog-sync/internal/app"
	"github.com/vthunder/worklog-sync/internal/notify"
)

// tools serializes runs: two concurrent reconciles against the same
// summary database could both create the same key
type tools struct {
	app *app.App
	mu  sync.Mutex
}

func newTools(a *app.App) *tools {
	return &tools{app: a}
}

func (t *tools) register(s *server.MCPServer) {
	s.AddTool(previewTool(), t.handlePreview)
	s.AddTool(reconcileTool(), t.handleReconcile)
	s.AddTool(historyTool(), t.handleHistory)
}

func previewTool() mcp.Tool {
	return mcp.NewTool("worklog_preview",
		mcp.WithDescription("Compute daily worklog summaries without writing anything. Returns the summaries (hours, status, projects, narrative) as JSON."),
		mcp.WithBoolean("current_month",
			mcp.Description("Only include logs dated in the current month. Default: false"),
		),
	)
}

func reconcileTool() mcp.Tool {
	return mcp.NewTool("worklog_reconcile",
		mcp.WithDescription("Create or update one summary record per person and day in the summary database. Safe to re-run. Returns the run report."),
		mcp.WithBoolean("current_month",
			mcp.Description("Only include logs dated in the current month. Default: false"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Compute the report without writing. Default: false"),
		),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("worklog_history",
		mcp.WithDescription("List recent run journal entries, or every entry of one run."),
		mcp.WithString("run_id",
			mcp.Description("Run ID or prefix. When set, returns that run's entries"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of recent entries. Default: 20"),
		),
	)
}

func (t *tools) handlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	currentMonth, _ := args["current_month"].(bool)

	t.mu.Lock()
	defer t.mu.Unlock()
	report, err := t.app.Run(ctx, app.RunOptions{
		DryRun:       true,
		CurrentMonth: currentMonth,
		SkipNotify:   true,
		SkipJournal:  true,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("preview failed: %v", err)), nil
	}
	return jsonResult(report.Summaries)
}

func (t *tools) handleReconcile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	currentMonth, _ := args["current_month"].(bool)
	dryRun, _ := args["dry_run"].(bool)

	t.mu.Lock()
	defer t.mu.Unlock()
	report, err := t.app.Run(ctx, app.RunOptions{DryRun: dryRun, CurrentMonth: currentMonth})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reconcile failed: %v", err)), nil
	}

	// the full summaries go through worklog_preview
	out := *report
	out.Summaries = nil
	res, err := jsonResult(out)
	if err != nil {
		return nil, err
	}
	res.Content = append([]mcp.Content{mcp.NewTextContent(notify.FormatReport(report))}, res.Content...)
	return res, nil
}

func (t *tools) handleHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	runID, _ := args["run_id"].(string)
	limit := 20
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}

	journal := t.app.Journal()
	if journal == nil {
		return mcp.NewToolResultError("journal is disabled (journal_path is empty)"), nil
	}

	var (
		entries []activity.Entry
		err     error
	)
	if runID != "" {
		entries, err = journal.ByRun(runID)
	} else {
		entries, err = journal.Recent(limit)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read journal: %v", err)), nil
	}
	return jsonResult(entries)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
