// Package worklog turns raw per-entry time logs into one daily summary per
// (person, date): grouping, hour totals and splits, narrative text and
// status classification. Everything here is pure; remote reads happen in
// the resolve package and writes in reconcile.
package worklog

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for keys and the store
const DateLayout = "2006-01-02"

// FullDayHours is the most a person can be credited for one day
const FullDayHours = 8.0

// LogEntry is one raw time-log record
type LogEntry struct {
	ID          string
	Subject     string
	Date        string   // YYYY-MM-DD
	Hours       *float64 // nil = not filled in
	ProjectRefs []string
	StaffRef    string
	TaskTitle   string
	TaskDetail  string
}

// Duration returns the logged hours, treating missing or negative as zero
func (e LogEntry) Duration() float64 {
	if e.Hours == nil || *e.Hours < 0 {
		return 0
	}
	return *e.Hours
}

// GroupKey is the natural key of a summary
type GroupKey struct {
	Subject string
	Date    string
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s@%s", k.Subject, k.Date)
}

// Status classifies a day's total against a full day
type Status string

const (
	StatusNormal Status = "normal"
	StatusUnder  Status = "under"
	// StatusOver cannot be produced: totals are clamped before classification.
	StatusOver Status = "over"
)

// Staff holds the organizational attributes of a person
type Staff struct {
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
	Team  string `yaml:"team,omitempty" json:"team,omitempty"`
}

// Summary is the aggregated record for one GroupKey
type Summary struct {
	Subject      string             `yaml:"subject" json:"subject"`
	Date         string             `yaml:"date" json:"date"`
	TotalHours   float64            `yaml:"total_hours" json:"total_hours"`
	LoggedHours  float64            `yaml:"logged_hours" json:"logged_hours"`
	Status       Status             `yaml:"status" json:"status"`
	Projects     []string           `yaml:"projects,omitempty" json:"projects,omitempty"`
	ProjectHours map[string]float64 `yaml:"project_hours,omitempty" json:"project_hours,omitempty"`
	Narrative    string             `yaml:"narrative,omitempty" json:"narrative,omitempty"`
	Entries      int                `yaml:"entries" json:"entries"`
	Staff        `yaml:",inline"`
}

// Key returns the summary's natural key
func (s Summary) Key() GroupKey {
	return GroupKey{Subject: s.Subject, Date: s.Date}
}

// ProjectList is the project titles joined for display/storage
func (s Summary) ProjectList() string {
	return strings.Join(s.Projects, ", ")
}

// Period restricts processing to one calendar month
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the month containing t
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Contains reports whether d falls inside the period
func (p Period) Contains(d time.Time) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
