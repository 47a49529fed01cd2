package notion

import (
	"context"
	"fmt"
	"sort"

	"github.com/vthunder/worklog-sync/internal/store"
)

// CheckProperties compares a database schema to the properties the caller
// expects and returns one problem per missing or mistyped property. A
// status property does not satisfy select: records decode it as a select
// but the API only accepts status payloads for it.
func (c *Client) CheckProperties(ctx context.Context, databaseID string, want map[string]store.Kind) ([]string, error) {
	db, err := c.GetDatabase(ctx, databaseID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []string
	for _, name := range names {
		kind := want[name]
		prop, ok := db.Properties[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: missing property %q", db.GetTitle(), name))
			continue
		}
		if prop.Type != string(kind) {
			problems = append(problems, fmt.Sprintf("%s: property %q is %s, want %s", db.GetTitle(), name, prop.Type, kind))
		}
	}
	return problems, nil
}
