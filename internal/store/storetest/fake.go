// Package storetest provides an in-memory store.RemoteStore for tests.
package storetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/vthunder/worklog-sync/internal/store"
)

// Op names a RemoteStore method
type Op string

const (
	OpQuery    Op = "query"
	OpRetrieve Op = "retrieve"
	OpCreate   Op = "create"
	OpUpdate   Op = "update"
)

// Write records one Create or Update call
type Write struct {
	ID          string
	Destination string
	Fields      store.Fields
}

type failKey struct {
	op     Op
	target string
}

type failure struct {
	remaining int // <0 = forever
	err       error
}

// Fake is a thread-safe in-memory RemoteStore. Records live in named
// sources (databases); query results come back in insertion order.
type Fake struct {
	PageSize int

	mu        sync.Mutex
	records   map[string]*store.Record
	sources   map[string][]string // source -> record IDs
	failures  map[failKey]*failure
	calls     map[Op]int
	retrieves map[string]int
	creates   []Write
	updates   []Write
	nextID    int
}

// New creates an empty fake with a page size of 100
func New() *Fake {
	return &Fake{
		PageSize:  100,
		records:   make(map[string]*store.Record),
		sources:   make(map[string][]string),
		failures:  make(map[failKey]*failure),
		calls:     make(map[Op]int),
		retrieves: make(map[string]int),
	}
}

// Put seeds a record into source. An empty ID gets a generated one.
func (f *Fake) Put(source string, rec store.Record) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.put(source, rec)
}

func (f *Fake) put(source string, rec store.Record) string {
	if rec.ID == "" {
		f.nextID++
		rec.ID = fmt.Sprintf("%s-%d", source, f.nextID)
	}
	if rec.Fields == nil {
		rec.Fields = store.Fields{}
	}
	if _, exists := f.records[rec.ID]; !exists {
		f.sources[source] = append(f.sources[source], rec.ID)
	}
	cp := copyRecord(rec)
	f.records[rec.ID] = &cp
	return rec.ID
}

// Get returns a copy of a record
func (f *Fake) Get(id string) (store.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return store.Record{}, false
	}
	return copyRecord(*rec), true
}

// Records returns copies of all records in source, in insertion order
func (f *Fake) Records(source string) []store.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Record
	for _, id := range f.sources[source] {
		out = append(out, copyRecord(*f.records[id]))
	}
	return out
}

// Fail makes the next `times` calls of op on target return err. target is
// a record ID for retrieve/update and a source for query/create.
// A negative times fails forever.
func (f *Fake) Fail(op Op, target string, times int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[failKey{op, target}] = &failure{remaining: times, err: err}
}

// Calls returns how many times op was invoked
func (f *Fake) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// RetrieveCalls returns how many times id was retrieved
func (f *Fake) RetrieveCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrieves[id]
}

// Creates returns every Create call made
func (f *Fake) Creates() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.creates...)
}

// Updates returns every Update call made
func (f *Fake) Updates() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.updates...)
}

func (f *Fake) injected(op Op, target string) error {
	fl, ok := f.failures[failKey{op, target}]
	if !ok || fl.remaining == 0 {
		return nil
	}
	if fl.remaining > 0 {
		fl.remaining--
	}
	return fl.err
}

func (f *Fake) Query(_ context.Context, source string, filter *store.Filter, cursor string) (*store.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[OpQuery]++
	if err := f.injected(OpQuery, source); err != nil {
		return nil, err
	}

	var matched []store.Record
	for _, id := range f.sources[source] {
		rec := f.records[id]
		if filter.Match(rec) {
			matched = append(matched, copyRecord(*rec))
		}
	}

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(matched) {
			return nil, fmt.Errorf("bad cursor %q: %w", cursor, store.ErrValidation)
		}
		start = n
	}
	size := f.PageSize
	if size <= 0 {
		size = 100
	}
	end := min(start+size, len(matched))

	page := &store.Page{Records: matched[start:end]}
	if end < len(matched) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *Fake) Retrieve(_ context.Context, id string) (*store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[OpRetrieve]++
	f.retrieves[id]++
	if err := f.injected(OpRetrieve, id); err != nil {
		return nil, err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("retrieve %s: %w", id, store.ErrNotFound)
	}
	cp := copyRecord(*rec)
	return &cp, nil
}

func (f *Fake) Create(_ context.Context, destination string, fields store.Fields) (*store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[OpCreate]++
	if err := f.injected(OpCreate, destination); err != nil {
		return nil, err
	}
	id := f.put(destination, store.Record{Fields: copyFields(fields)})
	f.creates = append(f.creates, Write{ID: id, Destination: destination, Fields: copyFields(fields)})
	cp := copyRecord(*f.records[id])
	return &cp, nil
}

func (f *Fake) Update(_ context.Context, id string, fields store.Fields) (*store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[OpUpdate]++
	if err := f.injected(OpUpdate, id); err != nil {
		return nil, err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, store.ErrNotFound)
	}
	for name, v := range copyFields(fields) {
		rec.Fields[name] = v
	}
	f.updates = append(f.updates, Write{ID: id, Fields: copyFields(fields)})
	cp := copyRecord(*rec)
	return &cp, nil
}

func copyRecord(r store.Record) store.Record {
	return store.Record{ID: r.ID, Fields: copyFields(r.Fields)}
}

func copyFields(in store.Fields) store.Fields {
	out := make(store.Fields, len(in))
	for name, v := range in {
		v.Text = append([]string(nil), v.Text...)
		v.Relation = append([]string(nil), v.Relation...)
		if v.Number != nil {
			n := *v.Number
			v.Number = &n
		}
		out[name] = v
	}
	return out
}
