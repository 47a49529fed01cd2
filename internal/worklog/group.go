package worklog

import (
	"sort"
	"time"
)

// Groups maps each natural key to its entries
type Groups map[GroupKey][]LogEntry

// Keys returns the keys ordered by date, then subject
func (g Groups) Keys() []GroupKey {
	keys := make([]GroupKey, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].Subject < keys[j].Subject
	})
	return keys
}

// GroupStats counts what happened to the input
type GroupStats struct {
	Valid       int `json:"valid"`
	Malformed   int `json:"malformed"`
	OutOfPeriod int `json:"out_of_period"`
}

// Grouper partitions log entries by (subject, date). With Period set,
// entries outside that month are dropped before grouping.
type Grouper struct {
	Period *Period
}

// Group drops entries without a subject or a parseable date (they are
// counted, not reported as errors) and buckets the rest.
func (g Grouper) Group(entries []LogEntry) (Groups, GroupStats) {
	groups := make(Groups)
	var stats GroupStats

	for _, e := range entries {
		if e.Subject == "" {
			stats.Malformed++
			continue
		}
		d, err := time.Parse(DateLayout, e.Date)
		if err != nil {
			stats.Malformed++
			continue
		}
		if g.Period != nil && !g.Period.Contains(d) {
			stats.OutOfPeriod++
			continue
		}

		key := GroupKey{Subject: e.Subject, Date: e.Date}
		groups[key] = append(groups[key], e)
		stats.Valid++
	}

	return groups, stats
}

// ProjectRefs returns every distinct project reference across all groups
func (g Groups) ProjectRefs() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, key := range g.Keys() {
		for _, e := range g[key] {
			for _, ref := range e.ProjectRefs {
				if ref != "" && !seen[ref] {
					seen[ref] = true
					refs = append(refs, ref)
				}
			}
		}
	}
	return refs
}

// StaffRefs returns the distinct staff reference of each group's first entry
func (g Groups) StaffRefs() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, key := range g.Keys() {
		entries := g[key]
		if len(entries) == 0 {
			continue
		}
		ref := entries[0].StaffRef
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}
