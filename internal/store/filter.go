package store

import "strings"

// Condition is an exact equality test on one field.
// Only title and date fields can be filtered.
type Condition struct {
	Property string
	Kind     Kind
	Equals   string
}

// Filter is a conjunction of conditions
type Filter struct {
	And []Condition
}

// Equals builds a single condition
func Equals(property string, kind Kind, value string) Condition {
	return Condition{Property: property, Kind: kind, Equals: value}
}

// And builds a filter that requires every condition
func And(conds ...Condition) *Filter {
	return &Filter{And: conds}
}

// Match evaluates the filter against a record locally. A nil filter
// matches everything.
func (f *Filter) Match(r *Record) bool {
	if f == nil {
		return true
	}
	for _, c := range f.And {
		if !c.match(r) {
			return false
		}
	}
	return true
}

func (c Condition) match(r *Record) bool {
	v, ok := r.field(c.Property, c.Kind)
	if !ok {
		return false
	}
	switch c.Kind {
	case KindDate:
		return datePart(v.Date) == datePart(c.Equals)
	default:
		return v.PlainText() == c.Equals
	}
}

// datePart strips any time component from an ISO-8601 date-time
func datePart(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}
