package notion

import (
	"context"
	"fmt"

	"github.com/vthunder/worklog-sync/internal/store"
)

// Store adapts a Client to store.RemoteStore. Sources and destinations
// are database IDs; record IDs are page IDs.
type Store struct {
	client *Client
}

// NewStore wraps a client
func NewStore(c *Client) *Store {
	return &Store{client: c}
}

func (s *Store) Query(ctx context.Context, source string, filter *store.Filter, cursor string) (*store.Page, error) {
	f, err := encodeFilter(filter)
	if err != nil {
		return nil, err
	}
	result, err := s.client.QueryDatabase(ctx, source, QueryParams{Filter: f, StartCursor: cursor})
	if err != nil {
		return nil, err
	}

	page := &store.Page{HasMore: result.HasMore, NextCursor: result.NextCursor}
	for i := range result.Results {
		page.Records = append(page.Records, decodeObject(&result.Results[i]))
	}
	return page, nil
}

func (s *Store) Retrieve(ctx context.Context, id string) (*store.Record, error) {
	obj, err := s.client.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := decodeObject(obj)
	return &rec, nil
}

func (s *Store) Create(ctx context.Context, destination string, fields store.Fields) (*store.Record, error) {
	obj, err := s.client.CreatePage(ctx, destination, encodeFields(fields))
	if err != nil {
		return nil, err
	}
	rec := decodeObject(obj)
	return &rec, nil
}

func (s *Store) Update(ctx context.Context, id string, fields store.Fields) (*store.Record, error) {
	obj, err := s.client.UpdatePage(ctx, id, encodeFields(fields))
	if err != nil {
		return nil, err
	}
	rec := decodeObject(obj)
	return &rec, nil
}

// encodeFilter builds a database query filter. A single condition is
// sent bare; several are wrapped in "and".
func encodeFilter(f *store.Filter) (any, error) {
	if f == nil || len(f.And) == 0 {
		return nil, nil
	}
	var conds []map[string]any
	for _, c := range f.And {
		switch c.Kind {
		case store.KindTitle, store.KindRichText, store.KindDate:
		default:
			return nil, fmt.Errorf("cannot filter on %s field %q: %w", c.Kind, c.Property, store.ErrValidation)
		}
		conds = append(conds, map[string]any{
			"property":     c.Property,
			string(c.Kind): map[string]string{"equals": c.Equals},
		})
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return map[string]any{"and": conds}, nil
}

// decodeObject converts a page to a record. Property types the engine
// never reads (formula, people, files, ...) are dropped.
func decodeObject(o *Object) store.Record {
	rec := store.Record{ID: o.ID, Fields: make(store.Fields, len(o.Properties))}
	for name, p := range o.Properties {
		if v, ok := decodeProperty(p); ok {
			rec.Fields[name] = v
		}
	}
	return rec
}

func decodeProperty(p Property) (store.Value, bool) {
	switch p.Type {
	case "title":
		return store.Value{Kind: store.KindTitle, Text: plainTexts(p.Title)}, true
	case "rich_text":
		return store.Value{Kind: store.KindRichText, Text: plainTexts(p.RichText)}, true
	case "number":
		return store.Value{Kind: store.KindNumber, Number: p.Number}, true
	case "date":
		v := store.Value{Kind: store.KindDate}
		if p.Date != nil {
			v.Date = p.Date.Start
		}
		return v, true
	case "select", "status":
		v := store.Value{Kind: store.KindSelect}
		opt := p.Select
		if p.Type == "status" {
			opt = p.Status
		}
		if opt != nil {
			v.Select = opt.Name
		}
		return v, true
	case "relation":
		v := store.Value{Kind: store.KindRelation}
		for _, r := range p.Relation {
			v.Relation = append(v.Relation, r.ID)
		}
		return v, true
	case "url":
		return store.URL(p.URL), true
	case "checkbox":
		return store.Checkbox(p.Checkbox), true
	}
	return store.Value{}, false
}

func plainTexts(rts []RichText) []string {
	var out []string
	for _, rt := range rts {
		out = append(out, rt.PlainText)
	}
	return out
}

// encodeFields converts fields to the API's property write format
func encodeFields(fields store.Fields) map[string]any {
	props := make(map[string]any, len(fields))
	for name, v := range fields {
		props[name] = encodeValue(v)
	}
	return props
}

// encodeValue writes one text object per segment, so callers must
// pre-split long text into blocks the API accepts.
func encodeValue(v store.Value) map[string]any {
	switch v.Kind {
	case store.KindTitle, store.KindRichText:
		segments := make([]map[string]any, 0, len(v.Text))
		for _, s := range v.Text {
			segments = append(segments, map[string]any{
				"type": "text",
				"text": map[string]string{"content": s},
			})
		}
		return map[string]any{string(v.Kind): segments}
	case store.KindNumber:
		return map[string]any{"number": v.Number}
	case store.KindDate:
		if v.Date == "" {
			return map[string]any{"date": nil}
		}
		return map[string]any{"date": map[string]string{"start": v.Date}}
	case store.KindSelect:
		if v.Select == "" {
			return map[string]any{"select": nil}
		}
		return map[string]any{"select": map[string]string{"name": v.Select}}
	case store.KindRelation:
		refs := make([]map[string]string, 0, len(v.Relation))
		for _, id := range v.Relation {
			refs = append(refs, map[string]string{"id": id})
		}
		return map[string]any{"relation": refs}
	case store.KindURL:
		if v.URL == "" {
			return map[string]any{"url": nil}
		}
		return map[string]any{"url": v.URL}
	case store.KindCheckbox:
		return map[string]any{"checkbox": v.Checkbox}
	}
	return map[string]any{}
}
