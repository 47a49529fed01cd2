package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vthunder/worklog-sync/internal/app"
	"github.com/vthunder/worklog-sync/internal/notify"
	"github.com/vthunder/worklog-sync/internal/reconcile"
)

func (c *cli) newRunCommand() *cobra.Command {
	var (
		ro          app.RunOptions
		workers     int
		metricsFile string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile summaries for all logs (or the current month)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("workers") {
				c.cfg.Workers = workers
			}
			if cmd.Flags().Changed("metrics-file") {
				c.cfg.MetricsFile = metricsFile
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Run(cmd.Context(), ro)
			if report != nil {
				fmt.Fprintln(cmd.OutOrStdout(), notify.FormatReport(report))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&ro.DryRun, "dry-run", false, "compute summaries without writing")
	cmd.Flags().BoolVar(&ro.CurrentMonth, "current-month", false, "only process logs dated in the current month")
	cmd.Flags().IntVar(&workers, "workers", 5, "concurrent relation lookups")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	return cmd
}

func (c *cli) newPreviewCommand() *cobra.Command {
	var currentMonth bool
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the summaries a run would write, as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Run(cmd.Context(), app.RunOptions{
				DryRun:       true,
				CurrentMonth: currentMonth,
				SkipNotify:   true,
				SkipJournal:  true,
			})
			if err != nil {
				return err
			}
			return writePreview(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&currentMonth, "current-month", false, "only process logs dated in the current month")
	return cmd
}

func writePreview(w io.Writer, r *reconcile.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.Summaries); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if len(r.Unresolved) > 0 {
		fmt.Fprintf(w, "# unresolved refs: %v\n", r.Unresolved)
	}
	return nil
}
