// Package sqlstore is a SQLite-backed store.RemoteStore. It stands in for
// Notion when running offline (fixtures, dry runs, tests). Fields are kept
// as one JSON document per record and filtered with json_extract.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vthunder/worklog-sync/internal/store"
)

// DefaultPageSize matches the Notion page limit
const DefaultPageSize = 100

// Store is a RemoteStore over a SQLite database
type Store struct {
	db       *sql.DB
	pageSize int
}

// Open opens (or creates) a store at path. An empty path or ":memory:"
// gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, pageSize: DefaultPageSize}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// SetPageSize changes how many records a Query returns per page
func (s *Store) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			seq    INTEGER PRIMARY KEY AUTOINCREMENT,
			id     TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			fields TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_source ON records(source, seq);
	`)
	return err
}

// Put inserts or replaces a record in source. An empty ID gets a new one.
func (s *Store) Put(ctx context.Context, source string, rec store.Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	doc, err := encodeFields(rec.Fields)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, source, fields) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET source = excluded.source, fields = excluded.fields
	`, rec.ID, source, doc)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Query pages through source in insertion order. The cursor is the
// sequence number of the last record returned.
func (s *Store) Query(ctx context.Context, source string, filter *store.Filter, cursor string) (*store.Page, error) {
	var after int64
	if cursor != "" {
		n, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad cursor %q: %w", cursor, store.ErrValidation)
		}
		after = n
	}

	where, args, err := filterSQL(filter)
	if err != nil {
		return nil, err
	}
	query := `SELECT seq, id, fields FROM records WHERE source = ? AND seq > ?` + where +
		` ORDER BY seq LIMIT ?`
	args = append([]any{source, after}, args...)
	args = append(args, s.pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", source, err)
	}
	defer rows.Close()

	page := &store.Page{}
	var lastSeq int64
	for rows.Next() {
		if len(page.Records) == s.pageSize {
			page.HasMore = true
			page.NextCursor = strconv.FormatInt(lastSeq, 10)
			break
		}
		var doc string
		var rec store.Record
		if err := rows.Scan(&lastSeq, &rec.ID, &doc); err != nil {
			return nil, err
		}
		if rec.Fields, err = decodeFields(doc); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		page.Records = append(page.Records, rec)
	}
	return page, rows.Err()
}

func (s *Store) Retrieve(ctx context.Context, id string) (*store.Record, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT fields FROM records WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("retrieve %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", id, err)
	}
	fields, err := decodeFields(doc)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	return &store.Record{ID: id, Fields: fields}, nil
}

func (s *Store) Create(ctx context.Context, destination string, fields store.Fields) (*store.Record, error) {
	id, err := s.Put(ctx, destination, store.Record{Fields: fields})
	if err != nil {
		return nil, err
	}
	return s.Retrieve(ctx, id)
}

// Update merges fields into the stored record; fields not named are kept.
func (s *Store) Update(ctx context.Context, id string, fields store.Fields) (*store.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT fields FROM records WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	merged, err := decodeFields(doc)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	for name, v := range fields {
		merged[name] = v
	}
	if doc, err = encodeFields(merged); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE records SET fields = ? WHERE id = ?`, doc, id); err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &store.Record{ID: id, Fields: merged}, nil
}

// Count returns the number of records in source
func (s *Store) Count(ctx context.Context, source string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE source = ?`, source).Scan(&n)
	return n, err
}

func filterSQL(f *store.Filter) (string, []any, error) {
	if f == nil {
		return "", nil, nil
	}
	var b strings.Builder
	var args []any
	for _, c := range f.And {
		if strings.ContainsAny(c.Property, `"\`) {
			return "", nil, fmt.Errorf("unsupported property name %q: %w", c.Property, store.ErrValidation)
		}
		path := `$."` + c.Property + `"`
		b.WriteString(` AND json_extract(fields, ?) = ?`)
		args = append(args, path+".kind", string(c.Kind))

		switch c.Kind {
		case store.KindTitle, store.KindRichText:
			b.WriteString(` AND json_extract(fields, ?) = ?`)
			args = append(args, path+".text", c.Equals)
		case store.KindDate:
			b.WriteString(` AND substr(json_extract(fields, ?), 1, 10) = ?`)
			args = append(args, path+".date", datePart(c.Equals))
		default:
			return "", nil, fmt.Errorf("cannot filter on %s field %q: %w", c.Kind, c.Property, store.ErrValidation)
		}
	}
	return b.String(), args, nil
}

func datePart(s string) string {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}

// storedValue is the JSON form of a store.Value. Text holds the joined
// segments so filters can compare it directly.
type storedValue struct {
	Kind     store.Kind `json:"kind"`
	Text     string     `json:"text,omitempty"`
	Segments []string   `json:"segments,omitempty"`
	Number   *float64   `json:"number,omitempty"`
	Date     string     `json:"date,omitempty"`
	Select   string     `json:"select,omitempty"`
	Relation []string   `json:"relation,omitempty"`
	URL      string     `json:"url,omitempty"`
	Checkbox bool       `json:"checkbox,omitempty"`
}

func encodeFields(fields store.Fields) (string, error) {
	doc := make(map[string]storedValue, len(fields))
	for name, v := range fields {
		doc[name] = storedValue{
			Kind:     v.Kind,
			Text:     v.PlainText(),
			Segments: v.Text,
			Number:   v.Number,
			Date:     v.Date,
			Select:   v.Select,
			Relation: v.Relation,
			URL:      v.URL,
			Checkbox: v.Checkbox,
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(data), nil
}

func decodeFields(data string) (store.Fields, error) {
	var doc map[string]storedValue
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	fields := make(store.Fields, len(doc))
	for name, sv := range doc {
		fields[name] = store.Value{
			Kind:     sv.Kind,
			Text:     sv.Segments,
			Number:   sv.Number,
			Date:     sv.Date,
			Select:   sv.Select,
			Relation: sv.Relation,
			URL:      sv.URL,
			Checkbox: sv.Checkbox,
		}
	}
	return fields, nil
}
