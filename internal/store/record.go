package store

import (
	"sort"
	"strings"
)

// Kind is the declared type of a record field
type Kind string

const (
	KindTitle    Kind = "title"
	KindRichText Kind = "rich_text"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindSelect   Kind = "select"
	KindRelation Kind = "relation"
	KindURL      Kind = "url"
	KindCheckbox Kind = "checkbox"
)

// Value is a typed field value. Only the member matching Kind is meaningful.
type Value struct {
	Kind     Kind
	Text     []string // title / rich_text segments
	Number   *float64 // nil = empty number field
	Date     string   // ISO-8601 start
	Select   string
	Relation []string // referenced record IDs
	URL      string
	Checkbox bool
}

func Title(s string) Value { return Value{Kind: KindTitle, Text: []string{s}} }

// RichText builds a rich text value from pre-split segments
func RichText(segments ...string) Value {
	return Value{Kind: KindRichText, Text: segments}
}

func Number(f float64) Value { return Value{Kind: KindNumber, Number: &f} }

func Date(d string) Value { return Value{Kind: KindDate, Date: d} }

func Select(name string) Value { return Value{Kind: KindSelect, Select: name} }

func Relation(ids ...string) Value { return Value{Kind: KindRelation, Relation: ids} }

func URL(u string) Value { return Value{Kind: KindURL, URL: u} }

func Checkbox(b bool) Value { return Value{Kind: KindCheckbox, Checkbox: b} }

// PlainText joins all text segments
func (v Value) PlainText() string {
	return strings.Join(v.Text, "")
}

// Fields maps field names to values
type Fields map[string]Value

// Names returns the field names in sorted order
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Record is one row/page in the store
type Record struct {
	ID     string
	Fields Fields
}

// field returns the named field only when its kind is one of kinds.
// A field with an unexpected kind is treated as absent.
func (r *Record) field(name string, kinds ...Kind) (Value, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return Value{}, false
	}
	for _, k := range kinds {
		if v.Kind == k {
			return v, true
		}
	}
	return Value{}, false
}

// Text returns the plain text of a title or rich_text field
func (r *Record) Text(name string) (string, bool) {
	v, ok := r.field(name, KindTitle, KindRichText)
	if !ok {
		return "", false
	}
	return v.PlainText(), true
}

// Number returns a number field; an empty number counts as absent
func (r *Record) Number(name string) (float64, bool) {
	v, ok := r.field(name, KindNumber)
	if !ok || v.Number == nil {
		return 0, false
	}
	return *v.Number, true
}

// Date returns the start of a date field
func (r *Record) Date(name string) (string, bool) {
	v, ok := r.field(name, KindDate)
	if !ok || v.Date == "" {
		return "", false
	}
	return v.Date, true
}

// Relations returns the referenced IDs of a relation field, in order
func (r *Record) Relations(name string) []string {
	v, ok := r.field(name, KindRelation)
	if !ok {
		return nil
	}
	return v.Relation
}

// Label returns a human-readable label from a title, rich_text or select field
func (r *Record) Label(name string) (string, bool) {
	v, ok := r.field(name, KindTitle, KindRichText, KindSelect)
	if !ok {
		return "", false
	}
	if v.Kind == KindSelect {
		return v.Select, v.Select != ""
	}
	text := v.PlainText()
	return text, text != ""
}

// FirstTitle returns the text of the first non-empty title field.
// Fields are scanned in name order.
func (r *Record) FirstTitle() (string, bool) {
	for _, name := range r.Fields.Names() {
		v := r.Fields[name]
		if v.Kind != KindTitle {
			continue
		}
		if text := v.PlainText(); text != "" {
			return text, true
		}
	}
	return "", false
}
