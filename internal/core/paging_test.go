package core

import (
	"context"
	"testing"
	"time"

	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, src *fakeSource, pageSize int) *Controller {
	t.Helper()
	c, err := NewController(ControllerConfig{
		Source:   src,
		Device:   testDevice,
		Filter:   models.DefaultFilter(),
		PageSize: pageSize,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func threeChanges() []models.Change {
	return []models.Change{change("c100", 100), change("c90", 90), change("c80", 80)}
}

func TestController_LoadMoreUntilExhausted(t *testing.T) {
	src := &fakeSource{changes: threeChanges(), builds: []models.Build{tsBuild("b95", 95), tsBuild("b70", 70)}}
	c := newTestController(t, src, 2)
	ctx := context.Background()

	assert.Equal(t, Idle, c.State().Kind)
	assert.Empty(t, c.Entries())

	require.NoError(t, c.LoadMore(ctx))
	assert.Equal(t, Idle, c.State().Kind)
	assert.Equal(t, []string{"c100@100", "b@95", "c90@90"}, timeline(c.Entries()))

	require.NoError(t, c.LoadMore(ctx))
	assert.Equal(t, Exhausted, c.State().Kind)
	assert.Equal(t, []string{"c100@100", "b@95", "c90@90", "c80@80", "b@70"}, timeline(c.Entries()))
	assertNonIncreasing(t, c.Entries())
}

func TestController_LoadMoreWhenExhaustedIsNoop(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	c := newTestController(t, src, 10)
	ctx := context.Background()

	require.NoError(t, c.LoadMore(ctx))
	require.Equal(t, Exhausted, c.State().Kind)
	requests := len(src.pageRequests())
	entries := c.Entries()

	require.NoError(t, c.LoadMore(ctx))
	assert.Equal(t, Exhausted, c.State().Kind)
	assert.Equal(t, entries, c.Entries())
	assert.Len(t, src.pageRequests(), requests)
}

func TestController_ConcurrentLoadMoreCoalesces(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	release := src.hold()
	c := newTestController(t, src, 10)

	done := make(chan error, 1)
	go func() { done <- c.LoadMore(context.Background()) }()

	require.Eventually(t, func() bool { return c.State().Kind == LoadingInitial }, time.Second, time.Millisecond)
	require.NoError(t, c.LoadMore(context.Background()))
	require.NoError(t, c.LoadMore(context.Background()))

	release()
	require.NoError(t, <-done)
	assert.Len(t, src.pageRequests(), 1)
	assert.Len(t, c.Entries(), 3)
}

func TestController_LoadingMoreState(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	c := newTestController(t, src, 1)
	require.NoError(t, c.LoadMore(context.Background()))

	release := src.hold()
	done := make(chan error, 1)
	go func() { done <- c.LoadMore(context.Background()) }()

	require.Eventually(t, func() bool { return c.State().Kind == LoadingMore }, time.Second, time.Millisecond)
	release()
	require.NoError(t, <-done)
	assert.Equal(t, Idle, c.State().Kind)
}

func TestController_ErrorKeepsEntriesAndRetries(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	c := newTestController(t, src, 2)
	ctx := context.Background()

	require.NoError(t, c.LoadMore(ctx))
	first := c.Entries()

	src.mu.Lock()
	src.pageErrs = []error{errConnReset}
	src.mu.Unlock()

	err := c.LoadMore(ctx)
	require.Error(t, err)
	state := c.State()
	assert.Equal(t, LoadError, state.Kind)
	assert.ErrorIs(t, state.Err, errConnReset)
	assert.Equal(t, first, c.Entries())

	require.NoError(t, c.LoadMore(ctx))
	assert.Equal(t, Exhausted, c.State().Kind)
	assert.Equal(t, []string{"c100@100", "c90@90", "c80@80"}, timeline(c.Entries()))

	reqs := src.pageRequests()
	require.Len(t, reqs, 3)
	assert.Equal(t, reqs[1], reqs[2])
}

func TestController_InvalidateDiscardsInFlight(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	release := src.hold()
	defer release()
	c := newTestController(t, src, 10)
	oldID := c.SessionID()

	done := make(chan error, 1)
	go func() { done <- c.LoadMore(context.Background()) }()
	require.Eventually(t, func() bool { return len(src.pageRequests()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Refresh())
	assert.ErrorIs(t, <-done, ErrStaleSession)

	assert.NotEqual(t, oldID, c.SessionID())
	assert.Empty(t, c.Entries())
	assert.Equal(t, Idle, c.State().Kind)

	release()
	require.NoError(t, c.LoadMore(context.Background()))
	assert.Len(t, c.Entries(), 3)
}

func TestController_SetFilter(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	c := newTestController(t, src, 10)
	require.NoError(t, c.LoadMore(context.Background()))
	id := c.SessionID()

	restarted, err := c.SetFilter(models.DefaultFilter())
	require.NoError(t, err)
	assert.False(t, restarted)
	assert.Equal(t, id, c.SessionID())
	assert.Len(t, c.Entries(), 3)

	f := models.DefaultFilter()
	f.Project = "android_build"
	restarted, err = c.SetFilter(f)
	require.NoError(t, err)
	assert.True(t, restarted)
	assert.NotEqual(t, id, c.SessionID())
	assert.Empty(t, c.Entries())
	assert.Equal(t, "android_build", c.Filter().Project)

	require.NoError(t, c.LoadMore(context.Background()))
	reqs := src.pageRequests()
	assert.Contains(t, reqs[len(reqs)-1].query, "project:android_build")
	assert.Equal(t, 0, reqs[len(reqs)-1].offset)
}

func TestController_SetFilterAfterCompare(t *testing.T) {
	src := &fakeSource{}
	c := newTestController(t, src, 10)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	restarted, err := c.SetFilter(models.DefaultFilter().WithAfter(at))
	require.NoError(t, err)
	assert.True(t, restarted)

	same := at
	restarted, err = c.SetFilter(models.DefaultFilter().WithAfter(same))
	require.NoError(t, err)
	assert.False(t, restarted, "equal timestamps behind different pointers")
}

func TestController_InvalidateThenLoadIsOrdered(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{change("c100", 100), change("c90", 90), change("c80", 80), change("c70", 70)},
		builds:  []models.Build{tsBuild("b85", 85), tsBuild("b95", 95), tsBuild("b60", 60)},
	}
	c := newTestController(t, src, 2)
	ctx := context.Background()

	for _, f := range []models.FilterState{
		models.DefaultFilter(),
		{Branch: "android-13.0", ProjectFilter: true, Status: models.StatusMerged},
		{Status: models.StatusOpen},
		{SearchText: "fix", Status: models.StatusMerged},
	} {
		_, err := c.SetFilter(f)
		require.NoError(t, err)
		require.NoError(t, c.Refresh())
		require.NoError(t, c.LoadMore(ctx))
		assertNonIncreasing(t, c.Entries())
	}
}

func TestController_WatchConnectivity(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	c := newTestController(t, src, 10)
	id := c.SessionID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	statuses := make(chan ConnectivityStatus)
	go c.WatchConnectivity(ctx, statuses)

	statuses <- Available
	statuses <- Available
	assert.Equal(t, id, c.SessionID(), "no restart without a preceding loss")

	statuses <- Unavailable
	statuses <- Available
	require.Eventually(t, func() bool { return c.SessionID() != id }, time.Second, time.Millisecond)
}

func TestController_Updates(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	c := newTestController(t, src, 10)

	require.NoError(t, c.LoadMore(context.Background()))
	select {
	case <-c.Updates():
	default:
		t.Fatal("expected an update signal")
	}

	select {
	case <-c.Updates():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestController_Close(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	c := newTestController(t, src, 10)
	c.Close()

	require.NoError(t, c.LoadMore(context.Background()))
	assert.Empty(t, src.pageRequests())
	assert.Error(t, c.Refresh())
}

func TestController_CloseDuringLoadIsQuiet(t *testing.T) {
	src := &fakeSource{changes: threeChanges()}
	release := src.hold()
	defer release()
	c := newTestController(t, src, 10)

	done := make(chan error, 1)
	go func() { done <- c.LoadMore(context.Background()) }()
	require.Eventually(t, func() bool { return len(src.pageRequests()) == 1 }, time.Second, time.Millisecond)

	c.Close()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, LoadState{Kind: Idle}, c.State())
	assert.Empty(t, c.Entries())
}

func TestLoadKind_String(t *testing.T) {
	assert.Equal(t, "loading-initial", LoadingInitial.String())
	assert.Equal(t, "exhausted", Exhausted.String())
	assert.Equal(t, "LoadKind(42)", LoadKind(42).String())
}
