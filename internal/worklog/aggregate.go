package worklog

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// hoursEpsilon absorbs float noise when comparing a total to a full day
const hoursEpsilon = 1e-9

// Resolver answers relation lookups from an already-populated cache.
// A false result means the reference is unresolved.
type Resolver interface {
	ProjectTitle(ref string) (string, bool)
	StaffAttributes(ref string) (Staff, bool)
}

// Aggregator computes summaries. MaxHours caps the credited total
// (FullDayHours when zero).
type Aggregator struct {
	MaxHours float64
}

func (a Aggregator) maxHours() float64 {
	if a.MaxHours <= 0 {
		return FullDayHours
	}
	return a.MaxHours
}

// Aggregate builds the summary for one group with the default cap
func Aggregate(key GroupKey, entries []LogEntry, r Resolver) Summary {
	return Aggregator{}.Aggregate(key, entries, r)
}

// Aggregate builds the summary for one group. It does no I/O and never
// fails: unresolved projects are skipped, unknown staff leaves group/team
// blank.
func (a Aggregator) Aggregate(key GroupKey, entries []LogEntry, r Resolver) Summary {
	s := Summary{
		Subject: key.Subject,
		Date:    key.Date,
		Entries: len(entries),
	}

	projects := make(map[string]bool)
	var lines []string
	for _, e := range entries {
		hours := e.Duration()
		s.LoggedHours += hours

		titles := resolveTitles(e.ProjectRefs, r)
		if len(titles) == 0 {
			continue
		}
		split := SplitHours(hours, len(titles))
		for _, title := range titles {
			projects[title] = true
			if s.ProjectHours == nil {
				s.ProjectHours = make(map[string]float64)
			}
			s.ProjectHours[title] += split
			lines = append(lines, narrativeLine(split, title, e))
		}
	}

	s.TotalHours = math.Max(0, math.Min(s.LoggedHours, a.maxHours()))
	if math.Abs(s.TotalHours-a.maxHours()) < hoursEpsilon {
		s.TotalHours = a.maxHours()
	}
	s.Status = classify(s.TotalHours, a.maxHours())

	for title := range projects {
		s.Projects = append(s.Projects, title)
	}
	sort.Strings(s.Projects)
	s.Narrative = strings.Join(lines, "\n")

	if len(entries) > 0 && entries[0].StaffRef != "" {
		if staff, ok := r.StaffAttributes(entries[0].StaffRef); ok {
			s.Staff = staff
		}
	}
	return s
}

// SplitHours divides hours evenly over k projects
func SplitHours(hours float64, k int) float64 {
	if k <= 0 {
		return 0
	}
	return hours / float64(k)
}

func resolveTitles(refs []string, r Resolver) []string {
	var titles []string
	for _, ref := range refs {
		if title, ok := r.ProjectTitle(ref); ok && title != "" {
			titles = append(titles, title)
		}
	}
	return titles
}

func narrativeLine(split float64, title string, e LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[(%.1f) %s]\n", split, title)
	b.WriteString(e.TaskTitle)
	if e.TaskDetail != "" {
		b.WriteString(" | ")
		b.WriteString(e.TaskDetail)
	}
	b.WriteString("\n")
	return b.String()
}

func classify(total, full float64) Status {
	switch {
	case math.Abs(total-full) < hoursEpsilon:
		return StatusNormal
	case total < full:
		return StatusUnder
	default:
		return StatusOver
	}
}
