package sqlstore

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/vthunder/worklog-sync/internal/store"
)

// Fixture seeds a store from YAML. Top-level keys are source names
// (the database IDs the config points at):
//
//	logs:
//	  - id: log-1
//	    fields:
//	      PK:     {title: "@Alice _ @2024년 5월 1일"}
//	      날짜:     {date: 2024-05-01}
//	      근무시간:   {number: 3}
//	      프로젝트명:  {relation: [proj-a]}
type Fixture map[string][]FixtureRecord

// FixtureRecord is one seeded record
type FixtureRecord struct {
	ID     string                  `yaml:"id"`
	Fields map[string]FixtureValue `yaml:"fields"`
}

// FixtureValue sets exactly one of its members
type FixtureValue struct {
	Title    *string  `yaml:"title,omitempty"`
	RichText []string `yaml:"rich_text,omitempty"`
	Number   *float64 `yaml:"number,omitempty"`
	Date     string   `yaml:"date,omitempty"`
	Select   string   `yaml:"select,omitempty"`
	Relation []string `yaml:"relation,omitempty"`
	URL      string   `yaml:"url,omitempty"`
	Checkbox *bool    `yaml:"checkbox,omitempty"`
}

// Value converts to a store.Value
func (v FixtureValue) Value() (store.Value, error) {
	var out []store.Value
	if v.Title != nil {
		out = append(out, store.Title(*v.Title))
	}
	if v.RichText != nil {
		out = append(out, store.RichText(v.RichText...))
	}
	if v.Number != nil {
		out = append(out, store.Number(*v.Number))
	}
	if v.Date != "" {
		out = append(out, store.Date(v.Date))
	}
	if v.Select != "" {
		out = append(out, store.Select(v.Select))
	}
	if v.Relation != nil {
		out = append(out, store.Relation(v.Relation...))
	}
	if v.URL != "" {
		out = append(out, store.URL(v.URL))
	}
	if v.Checkbox != nil {
		out = append(out, store.Checkbox(*v.Checkbox))
	}
	if len(out) != 1 {
		return store.Value{}, fmt.Errorf("fixture value must set exactly one type, got %d", len(out))
	}
	return out[0], nil
}

// LoadFixture reads a fixture file
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// Seed writes every fixture record into s. Sources are loaded in name
// order so generated sequence numbers are stable.
func (s *Store) Seed(ctx context.Context, f Fixture) (int, error) {
	sources := make([]string, 0, len(f))
	for source := range f {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	n := 0
	for _, source := range sources {
		for i, fr := range f[source] {
			rec := store.Record{ID: fr.ID, Fields: make(store.Fields, len(fr.Fields))}
			for name, fv := range fr.Fields {
				v, err := fv.Value()
				if err != nil {
					return n, fmt.Errorf("%s[%d].%s: %w", source, i, name, err)
				}
				rec.Fields[name] = v
			}
			if _, err := s.Put(ctx, source, rec); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
