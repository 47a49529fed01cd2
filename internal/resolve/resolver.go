// Package resolve turns relation references (projects, staff) into labels.
// Lookups go to the remote store once per reference per run; results,
// including failures, are cached for the rest of the run.
package resolve

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vthunder/worklog-sync/internal/logging"
	"github.com/vthunder/worklog-sync/internal/retry"
	"github.com/vthunder/worklog-sync/internal/store"
	"github.com/vthunder/worklog-sync/internal/worklog"
)

// DefaultWorkers is the lookup pool width
const DefaultWorkers = 5

// DefaultPolicy retries a lookup 3 times, 1s apart, on transient errors only
func DefaultPolicy() retry.Policy {
	return retry.Policy{
		Name:      "lookup",
		Attempts:  3,
		Delay:     time.Second,
		Retryable: store.IsTransient,
	}
}

// Kind of reference being resolved
type Kind string

const (
	KindProject Kind = "project"
	KindStaff   Kind = "staff"
)

// Failure is a reference that could not be read after retries
type Failure struct {
	Kind Kind
	Ref  string
	Err  error
}

// Options configures a Resolver
type Options struct {
	Workers int
	Policy  retry.Policy
	Staff   worklog.StaffSchema
}

type cached[T any] struct {
	value T
	ok    bool
}

// Resolver caches relation lookups for one run. It satisfies
// worklog.Resolver once the Resolve* batch calls have populated it.
type Resolver struct {
	store store.RemoteStore
	opts  Options

	mu       sync.RWMutex
	titles   map[string]cached[string]
	staff    map[string]cached[worklog.Staff]
	failures []Failure

	flight  singleflight.Group
	lookups atomic.Int64
}

// New creates a resolver. Zero Options fields fall back to defaults.
func New(s store.RemoteStore, opts Options) *Resolver {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Policy.Attempts == 0 {
		opts.Policy = DefaultPolicy()
	}
	if opts.Staff == (worklog.StaffSchema{}) {
		opts.Staff = worklog.DefaultStaffSchema()
	}
	return &Resolver{
		store:  s,
		opts:   opts,
		titles: make(map[string]cached[string]),
		staff:  make(map[string]cached[worklog.Staff]),
	}
}

// ResolveProjectTitles resolves every distinct ref (concurrently, bounded
// by Workers) and returns the titles of those that resolved. Failed refs
// are logged and left out.
func (r *Resolver) ResolveProjectTitles(ctx context.Context, refs []string) map[string]string {
	r.batch(ctx, refs, r.hasTitle, r.lookupTitle)

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string)
	for _, ref := range refs {
		if c := r.titles[ref]; c.ok {
			out[ref] = c.value
		}
	}
	return out
}

// ResolveStaff resolves a batch of staff refs into the cache
func (r *Resolver) ResolveStaff(ctx context.Context, refs []string) {
	r.batch(ctx, refs, r.hasStaff, r.lookupStaff)
}

// ResolveStaffAttributes returns the group/team of one staff ref, reading
// the store only on a cache miss.
func (r *Resolver) ResolveStaffAttributes(ctx context.Context, ref string) (worklog.Staff, bool) {
	if !r.hasStaff(ref) {
		r.lookupStaff(ctx, ref)
	}
	return r.StaffAttributes(ref)
}

// ProjectTitle reads a resolved title from the cache
func (r *Resolver) ProjectTitle(ref string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.titles[ref]
	return c.value, c.ok
}

// StaffAttributes reads resolved staff attributes from the cache
func (r *Resolver) StaffAttributes(ref string) (worklog.Staff, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.staff[ref]
	return c.value, c.ok
}

// Failures returns the lookups that failed after retries
func (r *Resolver) Failures() []Failure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Failure(nil), r.failures...)
}

// Unresolved returns the project refs that did not produce a title
func (r *Resolver) Unresolved() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var refs []string
	for ref, c := range r.titles {
		if !c.ok {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs
}

// Lookups is the number of remote lookups performed (not retries)
func (r *Resolver) Lookups() int {
	return int(r.lookups.Load())
}

func (r *Resolver) hasTitle(ref string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.titles[ref]
	return ok
}

func (r *Resolver) hasStaff(ref string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.staff[ref]
	return ok
}

// batch runs lookup for each distinct uncached ref on a bounded pool.
// Lookups never return errors to the group, so one failure can't cancel
// the rest.
func (r *Resolver) batch(ctx context.Context, refs []string, isCached func(string) bool, lookup func(context.Context, string)) {
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)

	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref == "" || seen[ref] || isCached(ref) {
			continue
		}
		seen[ref] = true
		g.Go(func() error {
			lookup(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Resolver) retrieve(ctx context.Context, kind Kind, ref string) (*store.Record, error) {
	r.lookups.Add(1)
	rec, err := retry.Value(ctx, r.opts.Policy, func() (*store.Record, error) {
		return r.store.Retrieve(ctx, ref)
	})
	if err != nil {
		logging.Warn("resolve", "%s lookup failed for %s: %v", kind, ref, err)
		r.mu.Lock()
		r.failures = append(r.failures, Failure{Kind: kind, Ref: ref, Err: err})
		r.mu.Unlock()
		return nil, err
	}
	return rec, nil
}

func (r *Resolver) lookupTitle(ctx context.Context, ref string) {
	_, _, _ = r.flight.Do(string(KindProject)+":"+ref, func() (any, error) {
		if r.hasTitle(ref) {
			return nil, nil
		}
		var c cached[string]
		if rec, err := r.retrieve(ctx, KindProject, ref); err == nil {
			c.value, c.ok = rec.FirstTitle()
			if !c.ok {
				logging.Debug("resolve", "project %s has no title field", ref)
			}
		}

		r.mu.Lock()
		r.titles[ref] = c
		r.mu.Unlock()
		return nil, nil
	})
}

func (r *Resolver) lookupStaff(ctx context.Context, ref string) {
	_, _, _ = r.flight.Do(string(KindStaff)+":"+ref, func() (any, error) {
		if r.hasStaff(ref) {
			return nil, nil
		}
		var c cached[worklog.Staff]
		if rec, err := r.retrieve(ctx, KindStaff, ref); err == nil {
			c.value.Group, _ = rec.Label(r.opts.Staff.Group)
			c.value.Team, _ = rec.Label(r.opts.Staff.Team)
			c.ok = true
		}

		r.mu.Lock()
		r.staff[ref] = c
		r.mu.Unlock()
		return nil, nil
	})
}
