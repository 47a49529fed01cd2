// Package store defines the remote record store the worklog engine reads
// logs from and writes summaries to. The engine only sees records as named,
// typed fields; transport details live in the adapters (Notion, SQLite).
package store

import (
	"context"
	"fmt"
)

// RemoteStore is a paginated, fallible record store.
type RemoteStore interface {
	// Query returns one page of records from source matching filter.
	// An empty cursor starts from the beginning.
	Query(ctx context.Context, source string, filter *Filter, cursor string) (*Page, error)

	// Retrieve reads a single record by ID.
	Retrieve(ctx context.Context, id string) (*Record, error)

	// Create adds a record to destination.
	Create(ctx context.Context, destination string, fields Fields) (*Record, error)

	// Update overwrites the given fields of an existing record.
	Update(ctx context.Context, id string, fields Fields) (*Record, error)
}

// Page is one slice of a query result
type Page struct {
	Records    []Record
	HasMore    bool
	NextCursor string
}

// Caller wraps a single remote call, e.g. with retries
type Caller func(ctx context.Context, op func() error) error

func direct(_ context.Context, op func() error) error { return op() }

// QueryAll follows cursors until the store reports no more pages and
// returns every record. Each page request goes through call (nil = no
// wrapping). Any page failure fails the whole query.
func QueryAll(ctx context.Context, s RemoteStore, source string, filter *Filter, call Caller) ([]Record, error) {
	if call == nil {
		call = direct
	}

	var all []Record
	cursor := ""
	for pageNum := 1; ; pageNum++ {
		var page *Page
		err := call(ctx, func() error {
			var err error
			page, err = s.Query(ctx, source, filter, cursor)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("query %s page %d: %w", source, pageNum, err)
		}

		all = append(all, page.Records...)
		if !page.HasMore {
			return all, nil
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil, fmt.Errorf("query %s page %d: has_more set without a new cursor", source, pageNum)
		}
		cursor = page.NextCursor
	}
}
