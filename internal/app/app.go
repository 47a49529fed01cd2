// Package app wires configuration to a store and the reconcile engine.
// Both the CLI and the MCP server run through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vthunder/worklog-sync/internal/activity"
	"github.com/vthunder/worklog-sync/internal/config"
	"github.com/vthunder/worklog-sync/internal/integrations/notion"
	"github.com/vthunder/worklog-sync/internal/logging"
	"github.com/vthunder/worklog-sync/internal/metrics"
	"github.com/vthunder/worklog-sync/internal/notify"
	"github.com/vthunder/worklog-sync/internal/reconcile"
	"github.com/vthunder/worklog-sync/internal/store"
	"github.com/vthunder/worklog-sync/internal/store/sqlstore"
)

// Fixture sources used when the config names none
const (
	FixtureLogSource     = "logs"
	FixtureSummarySource = "summaries"
)

// Options selects the backing store
type Options struct {
	// Fixture seeds an in-memory SQLite store instead of talking to Notion
	Fixture string
}

// RunOptions are per-run overrides
type RunOptions struct {
	DryRun       bool
	CurrentMonth bool
	// SkipNotify suppresses the Discord report
	SkipNotify bool
	// SkipJournal keeps the run out of the journal (previews)
	SkipJournal bool
}

// App owns the store and run-scoped collaborators
type App struct {
	cfg      *config.Config
	store    store.RemoteStore
	client   *notion.Client
	sql      *sqlstore.Store
	journal  *activity.Log
	notifier *notify.Discord
	now      func() time.Time
}

// New validates cfg and opens the store
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{cfg: cfg, now: time.Now}

	if opts.Fixture != "" {
		if cfg.LogDB == "" {
			cfg.LogDB = FixtureLogSource
		}
		if cfg.SummaryDB == "" {
			cfg.SummaryDB = FixtureSummarySource
		}
	}
	if err := cfg.Validate(opts.Fixture == ""); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if opts.Fixture != "" {
		db, err := openFixture(ctx, opts.Fixture)
		if err != nil {
			return nil, err
		}
		a.sql = db
		a.store = db
	} else {
		a.client = notion.NewClient(cfg.NotionToken, notion.ClientOptions{RateLimit: cfg.RateLimit})
		a.store = notion.NewStore(a.client)
	}

	if cfg.JournalPath != "" {
		a.journal = activity.New(cfg.JournalPath)
	}
	if cfg.NotifyEnabled() {
		d, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannel)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.notifier = d
	}
	return a, nil
}

func openFixture(ctx context.Context, path string) (*sqlstore.Store, error) {
	f, err := sqlstore.LoadFixture(path)
	if err != nil {
		return nil, err
	}
	db, err := sqlstore.Open("")
	if err != nil {
		return nil, err
	}
	n, err := db.Seed(ctx, f)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("seed fixture: %w", err)
	}
	logging.Info("app", "seeded %d records from %s", n, path)
	return db, nil
}

// Close releases the store
func (a *App) Close() error {
	if a.sql != nil {
		return a.sql.Close()
	}
	return nil
}

// Journal returns the run journal, or nil when disabled
func (a *App) Journal() *activity.Log {
	return a.journal
}

// Store returns the backing store
func (a *App) Store() store.RemoteStore {
	return a.store
}

// EngineOptions builds engine settings from the config
func (a *App) EngineOptions(ro RunOptions) reconcile.Options {
	cfg := *a.cfg
	cfg.CurrentMonth = cfg.CurrentMonth || ro.CurrentMonth
	return reconcile.Options{
		LogSource:     cfg.LogDB,
		SummarySource: cfg.SummaryDB,
		LogSchema:     cfg.Schema.Log,
		StaffSchema:   cfg.Schema.Staff,
		Writer: reconcile.WriterOptions{
			Schema:    cfg.Schema.Summary,
			Labels:    cfg.Schema.Status,
			ChunkSize: cfg.ChunkSize,
			Policy:    cfg.WritePolicy(),
		},
		Workers:      cfg.Workers,
		LookupPolicy: cfg.LookupPolicy(),
		MaxHours:     cfg.MaxHours,
		Period:       cfg.Period(a.now()),
		DryRun:       cfg.DryRun || ro.DryRun,
		Now:          a.now,
	}
}

// Run executes one reconcile pass and then exports metrics and sends the
// notification, aborted runs included. Export and notify failures are
// logged, not returned.
func (a *App) Run(ctx context.Context, ro RunOptions) (*reconcile.Report, error) {
	opts := a.EngineOptions(ro)

	rec := metrics.New()
	opts.Observers = append(opts.Observers, rec)
	if a.journal != nil && !ro.SkipJournal {
		opts.Observers = append(opts.Observers, a.journal)
	}

	report, err := reconcile.New(a.store, opts).Run(ctx)

	if a.cfg.MetricsFile != "" {
		if werr := rec.WriteTextfile(a.cfg.MetricsFile); werr != nil {
			logging.Warn("app", "metrics export failed: %v", werr)
		}
	}
	if a.notifier != nil && !ro.SkipNotify {
		if nerr := a.notifier.Notify(report); nerr != nil {
			logging.Warn("app", "notify failed: %v", nerr)
		}
	}
	return report, err
}

// Check verifies that both databases carry the configured properties.
// Offline stores have no schema to check.
func (a *App) Check(ctx context.Context) ([]string, error) {
	if a.client == nil {
		return nil, errors.New("schema check needs a live Notion connection")
	}
	s := a.cfg.Schema

	logProps := withoutEmpty(map[string]store.Kind{
		s.Log.Name:       store.KindTitle,
		s.Log.Date:       store.KindDate,
		s.Log.Hours:      store.KindNumber,
		s.Log.Projects:   store.KindRelation,
		s.Log.Staff:      store.KindRelation,
		s.Log.TaskTitle:  store.KindRichText,
		s.Log.TaskDetail: store.KindRichText,
	})
	summaryProps := withoutEmpty(map[string]store.Kind{
		s.Summary.Name:       store.KindTitle,
		s.Summary.Date:       store.KindDate,
		s.Summary.TotalHours: store.KindNumber,
		s.Summary.Projects:   store.KindRichText,
		s.Summary.Narrative:  store.KindRichText,
		s.Summary.Status:     store.KindSelect,
		s.Summary.Group:      store.KindSelect,
		s.Summary.Team:       store.KindSelect,
	})

	var problems []string
	for _, db := range []struct {
		id    string
		props map[string]store.Kind
	}{{a.cfg.LogDB, logProps}, {a.cfg.SummaryDB, summaryProps}} {
		p, err := a.client.CheckProperties(ctx, db.id, db.props)
		if err != nil {
			return nil, fmt.Errorf("database %s: %w", db.id, err)
		}
		problems = append(problems, p...)
	}
	return problems, nil
}

func withoutEmpty(m map[string]store.Kind) map[string]store.Kind {
	delete(m, "")
	return m
}
