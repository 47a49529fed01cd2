// Package config loads worklog-sync settings from, in order of
// precedence: environment variables, .env files, a YAML config file and
// built-in defaults. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vthunder/worklog-sync/internal/retry"
	"github.com/vthunder/worklog-sync/internal/store"
	"github.com/vthunder/worklog-sync/internal/worklog"
)

// DefaultConfigName is looked up in the working directory when no
// config file is given
const DefaultConfigName = "worklog-sync"

// Config is the resolved configuration
type Config struct {
	NotionToken    string `mapstructure:"notion_token" yaml:"notion_token"`
	LogDB          string `mapstructure:"log_db_id" yaml:"log_db_id"`
	SummaryDB      string `mapstructure:"summary_db_id" yaml:"summary_db_id"`
	DiscordToken   string `mapstructure:"discord_token" yaml:"discord_token,omitempty"`
	DiscordChannel string `mapstructure:"discord_channel_id" yaml:"discord_channel_id,omitempty"`

	Workers        int           `mapstructure:"workers" yaml:"workers"`
	ChunkSize      int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	MaxHours       float64       `mapstructure:"max_hours" yaml:"max_hours"`
	LookupAttempts int           `mapstructure:"lookup_attempts" yaml:"lookup_attempts"`
	LookupDelay    time.Duration `mapstructure:"lookup_delay" yaml:"lookup_delay"`
	WriteAttempts  int           `mapstructure:"write_attempts" yaml:"write_attempts"`
	WriteDelay     time.Duration `mapstructure:"write_delay" yaml:"write_delay"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`

	CurrentMonth bool   `mapstructure:"current_month" yaml:"current_month"`
	DryRun       bool   `mapstructure:"dry_run" yaml:"dry_run"`
	JournalPath  string `mapstructure:"journal_path" yaml:"journal_path"`
	MetricsFile  string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
	Debug        bool   `mapstructure:"debug" yaml:"debug"`

	Schema Schema `mapstructure:"schema" yaml:"schema"`

	// ConfigFile is the file that was read, if any
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

// Schema maps the engine's fields to Notion property names
type Schema struct {
	Log     worklog.LogSchema     `mapstructure:"log" yaml:"log"`
	Summary worklog.SummarySchema `mapstructure:"summary" yaml:"summary"`
	Staff   worklog.StaffSchema   `mapstructure:"staff" yaml:"staff"`
	Status  worklog.StatusLabels  `mapstructure:"status" yaml:"status"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("notion_token", "")
	v.SetDefault("log_db_id", "")
	v.SetDefault("summary_db_id", "")
	v.SetDefault("discord_token", "")
	v.SetDefault("discord_channel_id", "")

	v.SetDefault("workers", 5)
	v.SetDefault("chunk_size", worklog.DefaultChunkSize)
	v.SetDefault("max_hours", worklog.FullDayHours)
	v.SetDefault("lookup_attempts", 3)
	v.SetDefault("lookup_delay", time.Second)
	v.SetDefault("write_attempts", 3)
	v.SetDefault("write_delay", 2*time.Second)
	v.SetDefault("rate_limit", 3.0)

	v.SetDefault("current_month", false)
	v.SetDefault("dry_run", false)
	v.SetDefault("journal_path", "state/journal.jsonl")
	v.SetDefault("metrics_file", "")
	v.SetDefault("debug", false)

	log := worklog.DefaultLogSchema()
	v.SetDefault("schema.log.name", log.Name)
	v.SetDefault("schema.log.date", log.Date)
	v.SetDefault("schema.log.hours", log.Hours)
	v.SetDefault("schema.log.projects", log.Projects)
	v.SetDefault("schema.log.staff", log.Staff)
	v.SetDefault("schema.log.task_title", log.TaskTitle)
	v.SetDefault("schema.log.task_detail", log.TaskDetail)
	v.SetDefault("schema.log.parse_pk", true)

	sum := worklog.DefaultSummarySchema()
	v.SetDefault("schema.summary.name", sum.Name)
	v.SetDefault("schema.summary.date", sum.Date)
	v.SetDefault("schema.summary.total_hours", sum.TotalHours)
	v.SetDefault("schema.summary.projects", sum.Projects)
	v.SetDefault("schema.summary.narrative", sum.Narrative)
	v.SetDefault("schema.summary.status", sum.Status)
	v.SetDefault("schema.summary.group", sum.Group)
	v.SetDefault("schema.summary.team", sum.Team)

	staff := worklog.DefaultStaffSchema()
	v.SetDefault("schema.staff.group", staff.Group)
	v.SetDefault("schema.staff.team", staff.Team)

	labels := worklog.DefaultStatusLabels()
	v.SetDefault("schema.status.normal", labels.Normal)
	v.SetDefault("schema.status.under", labels.Under)
	v.SetDefault("schema.status.over", labels.Over)
}

// Load reads the configuration. An empty path looks for
// worklog-sync.yaml in the working directory and tolerates its absence;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	if err := v.BindEnv("notion_token", "NOTION_TOKEN", "NOTION_API_KEY"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	return &cfg, nil
}

// loadEnvFiles loads .env then .env.local; existing variables win
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// Validate checks settings. live requires Notion credentials and
// database IDs; offline runs (fixtures) only need the database IDs to
// name their sources.
func (c *Config) Validate(live bool) error {
	var errs []error
	if live && c.NotionToken == "" {
		errs = append(errs, errors.New("NOTION_TOKEN (or NOTION_API_KEY) is not set"))
	}
	if c.LogDB == "" {
		errs = append(errs, errors.New("LOG_DB_ID is not set"))
	}
	if c.SummaryDB == "" {
		errs = append(errs, errors.New("SUMMARY_DB_ID is not set"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.ChunkSize < 1 || c.ChunkSize > worklog.DefaultChunkSize {
		errs = append(errs, fmt.Errorf("chunk_size must be in 1..%d, got %d", worklog.DefaultChunkSize, c.ChunkSize))
	}
	if c.MaxHours <= 0 {
		errs = append(errs, fmt.Errorf("max_hours must be positive, got %v", c.MaxHours))
	}
	if c.LookupAttempts < 1 || c.WriteAttempts < 1 {
		errs = append(errs, errors.New("lookup_attempts and write_attempts must be at least 1"))
	}
	if c.LookupDelay < 0 || c.WriteDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if (c.DiscordToken == "") != (c.DiscordChannel == "") {
		errs = append(errs, errors.New("DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together"))
	}

	required := map[string]string{
		"schema.log.name":     c.Schema.Log.Name,
		"schema.log.date":     c.Schema.Log.Date,
		"schema.summary.name": c.Schema.Summary.Name,
		"schema.summary.date": c.Schema.Summary.Date,
	}
	for _, key := range []string{"schema.log.name", "schema.log.date", "schema.summary.name", "schema.summary.date"} {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", key))
		}
	}
	return errors.Join(errs...)
}

// LookupPolicy is the retry policy for log fetches and relation lookups
func (c *Config) LookupPolicy() retry.Policy {
	return retry.Policy{
		Name:      "lookup",
		Attempts:  c.LookupAttempts,
		Delay:     c.LookupDelay,
		Retryable: store.IsTransient,
	}
}

// WritePolicy is the retry policy for summary lookups and writes
func (c *Config) WritePolicy() retry.Policy {
	return retry.Policy{
		Name:      "write",
		Attempts:  c.WriteAttempts,
		Delay:     c.WriteDelay,
		Retryable: store.IsTransient,
	}
}

// Period returns the month to restrict to, or nil for all logs
func (c *Config) Period(now time.Time) *worklog.Period {
	if !c.CurrentMonth {
		return nil
	}
	p := worklog.PeriodOf(now)
	return &p
}

// NotifyEnabled reports whether Discord notifications are configured
func (c *Config) NotifyEnabled() bool {
	return c.DiscordToken != "" && c.DiscordChannel != ""
}

// Redacted returns a copy safe to print
func (c Config) Redacted() Config {
	c.NotionToken = mask(c.NotionToken)
	c.DiscordToken = mask(c.DiscordToken)
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
