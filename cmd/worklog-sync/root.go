package main

import (
	"github.com/spf13/cobra"

	"github.com/vthunder/worklog-sync/internal/app"
	"github.com/vthunder/worklog-sync/internal/config"
	"github.com/vthunder/worklog-sync/internal/logging"
)

// cli holds the persistent flags and the config they resolve to
type cli struct {
	configFile string
	fixture    string
	verbose    bool

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "worklog-sync",
		Short: "Aggregate Notion time logs into daily summaries",
		Long: `worklog-sync reads per-entry time logs from a Notion database, groups
them by person and day, and creates or updates one summary record per
group in the summary database. Re-running is safe: existing summaries
are updated in place.

Settings come from the environment (NOTION_TOKEN, LOG_DB_ID,
SUMMARY_DB_ID, ...), .env files and worklog-sync.yaml.`,
		PersistentPreRunE: c.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default is ./worklog-sync.yaml)")
	root.PersistentFlags().StringVar(&c.fixture, "fixture", "", "run against a YAML fixture in an in-memory store instead of Notion")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.newRunCommand(),
		c.newPreviewCommand(),
		c.newHistoryCommand(),
		c.newConfigCommand(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configFile)
	if err != nil {
		return err
	}
	if c.verbose {
		cfg.Debug = true
	}
	logging.SetDebug(cfg.Debug)
	c.cfg = cfg
	return nil
}

// open builds the app for commands that touch a store
func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	return app.New(cmd.Context(), c.cfg, app.Options{Fixture: c.fixture})
}
