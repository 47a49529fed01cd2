package worklog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vthunder/worklog-sync/internal/store"
)

// pkPattern matches titles like "@Thone Thone Win Maw _ @2025년 4월 7일 _ 월"
var pkPattern = regexp.MustCompile(`@(.+?) _ @(\d{4})년 (\d{1,2})월 (\d{1,2})일`)

// ParseEntry reads a log record using schema. It never fails: missing or
// mistyped fields come back empty and are weeded out by the Grouper.
func ParseEntry(rec store.Record, schema LogSchema) LogEntry {
	e := LogEntry{ID: rec.ID}

	e.Subject, _ = rec.Text(schema.Name)
	if d, ok := rec.Date(schema.Date); ok {
		e.Date = NormalizeDate(d)
	}
	if schema.ParsePK {
		if name, date, ok := ParsePK(e.Subject); ok {
			e.Subject = name
			if e.Date == "" {
				e.Date = date
			}
		}
	}
	e.Subject = strings.TrimSpace(e.Subject)

	if h, ok := rec.Number(schema.Hours); ok {
		e.Hours = &h
	}
	e.ProjectRefs = rec.Relations(schema.Projects)
	if staff := rec.Relations(schema.Staff); len(staff) > 0 {
		e.StaffRef = staff[0]
	}
	e.TaskTitle, _ = rec.Text(schema.TaskTitle)
	e.TaskDetail, _ = rec.Text(schema.TaskDetail)
	return e
}

// ParseEntries parses every record
func ParseEntries(recs []store.Record, schema LogSchema) []LogEntry {
	entries := make([]LogEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, ParseEntry(rec, schema))
	}
	return entries
}

// ParsePK extracts the person and ISO date from a PK-style title
func ParsePK(title string) (name, date string, ok bool) {
	m := pkPattern.FindStringSubmatch(title)
	if m == nil {
		return "", "", false
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	return strings.TrimSpace(m[1]), fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// NormalizeDate drops the time part of an ISO-8601 date-time
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}
