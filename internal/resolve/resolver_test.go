package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/worklog-sync/internal/retry"
	"github.com/vthunder/worklog-sync/internal/store"
	"github.com/vthunder/worklog-sync/internal/store/storetest"
	"github.com/vthunder/worklog-sync/internal/worklog"
)

func fastOptions() Options {
	return Options{
		Workers: 5,
		Policy:  retry.Policy{Name: "lookup", Attempts: 3, Retryable: store.IsTransient},
	}
}

func seedProjects(fake *storetest.Fake, n int) []string {
	var ids []string
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("proj-%d", i)
		fake.Put("projects", store.Record{ID: id, Fields: store.Fields{
			"Name": store.Title(fmt.Sprintf("Project %d", i)),
		}})
		ids = append(ids, id)
	}
	return ids
}

// --- Projects ---

func TestResolveProjectTitles_EachRefOnce(t *testing.T) {
	fake := storetest.New()
	ids := seedProjects(fake, 12)
	r := New(fake, fastOptions())

	// duplicates in the batch and a second batch must not cause re-reads
	refs := append(append([]string{}, ids...), ids...)
	titles := r.ResolveProjectTitles(context.Background(), refs)
	require.Len(t, titles, 12)
	assert.Equal(t, "Project 3", titles["proj-3"])

	_ = r.ResolveProjectTitles(context.Background(), ids[:4])
	for _, id := range ids {
		assert.Equal(t, 1, fake.RetrieveCalls(id), id)
	}
	assert.Equal(t, 12, r.Lookups())
}

func TestResolveProjectTitles_RetriesTransient(t *testing.T) {
	fake := storetest.New()
	ids := seedProjects(fake, 1)
	fake.Fail(storetest.OpRetrieve, ids[0], 2, store.ErrTransient)

	r := New(fake, fastOptions())
	titles := r.ResolveProjectTitles(context.Background(), ids)
	assert.Equal(t, "Project 0", titles[ids[0]])
	assert.Equal(t, 3, fake.RetrieveCalls(ids[0]))
	assert.Empty(t, r.Failures())
}

func TestResolveProjectTitles_FailureDegradesToUnresolved(t *testing.T) {
	fake := storetest.New()
	ids := seedProjects(fake, 3)
	fake.Fail(storetest.OpRetrieve, ids[1], -1, fmt.Errorf("502: %w", store.ErrTransient))

	r := New(fake, fastOptions())
	titles := r.ResolveProjectTitles(context.Background(), ids)

	assert.Len(t, titles, 2, "one failure never aborts the batch")
	assert.Equal(t, 3, fake.RetrieveCalls(ids[1]), "3 attempts then give up")
	_, ok := r.ProjectTitle(ids[1])
	assert.False(t, ok)
	assert.Equal(t, []string{ids[1]}, r.Unresolved())

	failures := r.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, KindProject, failures[0].Kind)
	assert.Equal(t, ids[1], failures[0].Ref)
	assert.ErrorIs(t, failures[0].Err, store.ErrTransient)
}

func TestResolveProjectTitles_NotFoundIsNotRetried(t *testing.T) {
	fake := storetest.New()
	r := New(fake, fastOptions())

	titles := r.ResolveProjectTitles(context.Background(), []string{"gone"})
	assert.Empty(t, titles)
	assert.Equal(t, 1, fake.RetrieveCalls("gone"))
	require.Len(t, r.Failures(), 1)
	assert.True(t, errors.Is(r.Failures()[0].Err, store.ErrNotFound))
}

func TestResolveProjectTitles_NoTitleFieldIsUnresolved(t *testing.T) {
	fake := storetest.New()
	fake.Put("projects", store.Record{ID: "untitled", Fields: store.Fields{
		"Code": store.RichText("X-1"),
	}})
	r := New(fake, fastOptions())

	titles := r.ResolveProjectTitles(context.Background(), []string{"untitled"})
	assert.Empty(t, titles)
	assert.Empty(t, r.Failures(), "missing title is not a lookup failure")
	assert.Equal(t, []string{"untitled"}, r.Unresolved())
}

func TestResolveProjectTitles_ConcurrentCallers(t *testing.T) {
	fake := storetest.New()
	ids := seedProjects(fake, 20)
	r := New(fake, fastOptions())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ResolveProjectTitles(context.Background(), ids)
		}()
	}
	wg.Wait()

	for _, id := range ids {
		title, ok := r.ProjectTitle(id)
		assert.True(t, ok)
		assert.NotEmpty(t, title)
		assert.Equal(t, 1, fake.RetrieveCalls(id), id)
	}
}

// --- Staff ---

func TestResolveStaffAttributes_Cached(t *testing.T) {
	fake := storetest.New()
	fake.Put("staff", store.Record{ID: "s1", Fields: store.Fields{
		"Name": store.Title("Alice"),
		"그룹":   store.Select("Engineering"),
		"팀":    store.RichText("Platform"),
	}})
	r := New(fake, fastOptions())

	staff, ok := r.ResolveStaffAttributes(context.Background(), "s1")
	require.True(t, ok)
	assert.Equal(t, worklog.Staff{Group: "Engineering", Team: "Platform"}, staff)

	_, _ = r.ResolveStaffAttributes(context.Background(), "s1")
	r.ResolveStaff(context.Background(), []string{"s1"})
	assert.Equal(t, 1, fake.RetrieveCalls("s1"))
}

func TestResolveStaff_FailureLeavesBlank(t *testing.T) {
	fake := storetest.New()
	fake.Fail(storetest.OpRetrieve, "s2", -1, store.ErrTransient)
	r := New(fake, fastOptions())

	r.ResolveStaff(context.Background(), []string{"s2"})
	staff, ok := r.StaffAttributes("s2")
	assert.False(t, ok)
	assert.Equal(t, worklog.Staff{}, staff)
	require.Len(t, r.Failures(), 1)
	assert.Equal(t, KindStaff, r.Failures()[0].Kind)
}

func TestResolver_SatisfiesAggregator(t *testing.T) {
	var _ worklog.Resolver = (*Resolver)(nil)
}
