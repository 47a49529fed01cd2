package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vthunder/worklog-sync/internal/activity"
)

func (c *cli) newHistoryCommand() *cobra.Command {
	var (
		limit    int
		runsOnly bool
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent journal entries, or every entry of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.JournalPath == "" {
				return errors.New("journal is disabled (journal_path is empty)")
			}
			journal := activity.New(c.cfg.JournalPath)

			var (
				entries []activity.Entry
				err     error
			)
			switch {
			case len(args) == 1:
				entries, err = journal.ByRun(args[0])
			case runsOnly:
				entries, err = journal.Runs(limit)
			default:
				entries, err = journal.Recent(limit)
			}
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().BoolVar(&runsOnly, "runs", false, "only show finished and aborted runs")
	return cmd
}

func printEntries(w io.Writer, entries []activity.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no entries")
		return
	}
	for _, e := range entries {
		run := e.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		fmt.Fprintf(w, "%s  %-8s  %-16s  %s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), run, e.Type, e.Summary)
	}
}
