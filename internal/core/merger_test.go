package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/omnirom/omnigerrit/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, src *fakeSource, filter models.FilterState, pageSize int) *Session {
	t.Helper()
	s, err := NewSession(SessionConfig{
		Source:   src,
		Device:   testDevice,
		Filter:   filter,
		PageSize: pageSize,
	})
	require.NoError(t, err)
	return s
}

// drain loads pages until the session reports exhaustion.
func drain(t *testing.T, s *Session) []models.Change {
	t.Helper()
	var all []models.Change
	for i := 0; i < 100; i++ {
		page, err := s.NextPage(context.Background())
		require.NoError(t, err)
		all = append(all, page.Entries...)
		if page.Exhausted {
			return all
		}
	}
	t.Fatal("session never exhausted")
	return nil
}

func assertNonIncreasing(t *testing.T, entries []models.Change) {
	t.Helper()
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Updated.After(entries[i-1].Updated),
			"entry %d (%s) is newer than entry %d", i, timeline(entries[i:i+1])[0], i-1)
	}
}

func TestNewSession_RequiresSource(t *testing.T) {
	_, err := NewSession(SessionConfig{})
	assert.Error(t, err)
}

func TestSession_SpliceScenario(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{change("c100", 100), change("c90", 90), change("c80", 80)},
		builds:  []models.Build{tsBuild("b95", 95), tsBuild("b70", 70)},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 25)

	page, err := s.NextPage(context.Background())
	require.NoError(t, err)
	assert.True(t, page.Exhausted)
	assert.Equal(t, 2, page.Builds)
	assert.Equal(t, []string{"c100@100", "b@95", "c90@90", "c80@80", "b@70"}, timeline(page.Entries))
	assert.Equal(t, 0, s.PendingBuilds())
}

func TestSession_SpliceScenarioAcrossPages(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{change("c100", 100), change("c90", 90), change("c80", 80)},
		builds:  []models.Build{tsBuild("b95", 95), tsBuild("b70", 70)},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 2)

	page, err := s.NextPage(context.Background())
	require.NoError(t, err)
	assert.False(t, page.Exhausted)
	assert.Equal(t, []string{"c100@100", "b@95", "c90@90"}, timeline(page.Entries))
	assert.Equal(t, 1, s.PendingBuilds(), "older build is deferred")

	page, err = s.NextPage(context.Background())
	require.NoError(t, err)
	assert.True(t, page.Exhausted)
	assert.Equal(t, []string{"c80@80", "b@70"}, timeline(page.Entries))
}

func TestSession_BuildsOnly(t *testing.T) {
	src := &fakeSource{
		builds: []models.Build{tsBuild("b50", 50), tsBuild("b60", 60), tsBuild("b40", 40)},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 10)

	page, err := s.NextPage(context.Background())
	require.NoError(t, err)
	assert.True(t, page.Exhausted)
	assert.Equal(t, []string{"b@60", "b@50", "b@40"}, timeline(page.Entries))
	for _, e := range page.Entries {
		assert.True(t, e.IsBuild())
		require.NotNil(t, e.Build)
		assert.Equal(t, e.Build.Filename, e.Subject)
	}
}

func TestSession_BuildTiesChangeGoesAfter(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{change("c100", 100), change("c90", 90), change("c80", 80)},
		builds:  []models.Build{tsBuild("b90", 90), tsBuild("b100", 100)},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 10)

	assert.Equal(t, []string{"c100@100", "b@100", "c90@90", "b@90", "c80@80"}, timeline(drain(t, s)))
}

func TestSession_FrontSpliceOnLaterPage(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{change("c100", 100), change("c90", 90), change("c80", 80), change("c60", 60)},
		builds:  []models.Build{tsBuild("b85", 85), tsBuild("b70", 70), tsBuild("b50", 50), tsBuild("b120", 120)},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 2)

	page, err := s.NextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b@120", "c100@100", "c90@90"}, timeline(page.Entries))

	page, err = s.NextPage(context.Background())
	require.NoError(t, err)
	assert.True(t, page.Exhausted)
	assert.Equal(t, []string{"b@85", "c80@80", "b@70", "c60@60", "b@50"}, timeline(page.Entries))
}

func TestSession_SearchDisablesBuilds(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{change("c100", 100), change("c80", 80)},
		builds:  []models.Build{tsBuild("b90", 90)},
	}
	s := newTestSession(t, src, models.FilterState{SearchText: "crash", ProjectFilter: true, Status: models.StatusMerged}, 10)

	entries := drain(t, s)
	assert.Equal(t, []string{"c100@100", "c80@80"}, timeline(entries))
	assert.Equal(t, 0, src.snapshotCalls)
	assert.Contains(t, s.Query(), "message:")
}

func TestSession_AfterExcludesOlderBuilds(t *testing.T) {
	after := time.Unix(75, 0)
	src := &fakeSource{
		changes: []models.Change{change("c100", 100), change("c80", 80)},
		builds:  []models.Build{tsBuild("b90", 90), tsBuild("b70", 70)},
	}
	s := newTestSession(t, src, models.DefaultFilter().WithAfter(after), 10)

	assert.Equal(t, []string{"c100@100", "b@90", "c80@80"}, timeline(drain(t, s)))
}

func TestSession_ProjectFiltering(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{
			projectChange("dev", "android_device_google_panther", 100),
			projectChange("fw", "android_frameworks_base", 90),
			projectChange("own", "android_device_oneplus_oneplus9", 80),
			projectChange("kern", "android_kernel_google_gs201", 75),
			projectChange("set", "android_packages_apps_Settings", 70),
		},
		allowed: map[string]bool{"android_device_oneplus_oneplus9": true},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 2)

	page, err := s.NextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fw@90", "own@80"}, timeline(page.Entries))
	assert.Equal(t, 4, s.Cursor().Offset, "refills from the next window until the page is full")

	page, err = s.NextPage(context.Background())
	require.NoError(t, err)
	assert.True(t, page.Exhausted)
	assert.Equal(t, []string{"set@70"}, timeline(page.Entries))

	reqs := src.pageRequests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []int{0, 2, 4}, []int{reqs[0].offset, reqs[1].offset, reqs[2].offset})
}

func TestSession_ProjectFilterDisabled(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{
			projectChange("dev", "android_device_google_panther", 100),
			projectChange("fw", "android_frameworks_base", 90),
		},
	}
	f := models.DefaultFilter()
	f.ProjectFilter = false
	s := newTestSession(t, src, f, 10)

	assert.Equal(t, []string{"dev@100", "fw@90"}, timeline(drain(t, s)))
}

func TestSession_DropsDuplicateIDs(t *testing.T) {
	// An update between requests shifts c90 into the second window.
	src := &fakeSource{
		changes: []models.Change{change("c100", 100), change("c90", 90), change("c90", 90), change("c80", 80)},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 2)

	assert.Equal(t, []string{"c100@100", "c90@90", "c80@80"}, timeline(drain(t, s)))
}

func TestSession_ErrorOnSecondPageConsumesNothing(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{change("c100", 100), change("c90", 90), change("c80", 80), change("c70", 70)},
		builds:  []models.Build{tsBuild("b95", 95), tsBuild("b75", 75), tsBuild("b60", 60)},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 2)
	ctx := context.Background()

	page1, err := s.NextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c100@100", "b@95", "c90@90"}, timeline(page1.Entries))
	cursor := s.Cursor()
	pending := s.PendingBuilds()

	src.mu.Lock()
	src.pageErrs = []error{errConnReset}
	src.mu.Unlock()

	_, err = s.NextPage(ctx)
	require.Error(t, err)
	assert.True(t, remote.IsTransient(err))
	assert.Equal(t, cursor, s.Cursor())
	assert.Equal(t, pending, s.PendingBuilds())
	assert.Equal(t, 1, s.Pages())

	page2, err := s.NextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c80@80", "b@75", "c70@70", "b@60"}, timeline(page2.Entries))

	reqs := src.pageRequests()
	require.Len(t, reqs, 3)
	assert.Equal(t, reqs[1], reqs[2], "retry re-issues the identical request")
	assert.Equal(t, 2, reqs[1].offset)
}

func TestSession_ErrorOnFirstPage(t *testing.T) {
	src := &fakeSource{
		changes:  []models.Change{change("c100", 100)},
		builds:   []models.Build{tsBuild("b90", 90)},
		pageErrs: []error{&remote.ServerError{Op: "fetch changes", Status: 503}},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 10)

	_, err := s.NextPage(context.Background())
	require.Error(t, err)
	assert.True(t, remote.IsServerError(err))
	assert.Equal(t, 0, s.Cursor().Offset)
	assert.Equal(t, 0, s.Pages())

	assert.Equal(t, []string{"c100@100", "b@90"}, timeline(drain(t, s)))
}

func TestSession_ParseErrorIsServerError(t *testing.T) {
	src := &fakeSource{
		pageErrs: []error{&remote.ParseError{Op: "fetch changes", Err: errors.New("unexpected end of JSON input")}},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 10)

	_, err := s.NextPage(context.Background())
	var se *remote.ServerError
	require.ErrorAs(t, err, &se)
	assert.False(t, remote.IsTransient(err))
}

func TestSession_SnapshotFailuresDegrade(t *testing.T) {
	src := &fakeSource{
		changes: []models.Change{
			change("c100", 100),
			projectChange("own", "android_device_oneplus_oneplus9", 90),
		},
		builds:    []models.Build{tsBuild("b95", 95)},
		buildsErr: &remote.NetworkError{Op: "fetch build snapshot", Err: errors.New("timeout")},
		allowErr:  &remote.ServerError{Op: "fetch allow-list", Status: 404},
	}
	s := newTestSession(t, src, models.DefaultFilter(), 10)

	assert.Equal(t, []string{"c100@100"}, timeline(drain(t, s)))
}

func TestSession_ExhaustedIsTerminal(t *testing.T) {
	src := &fakeSource{changes: []models.Change{change("c100", 100)}}
	s := newTestSession(t, src, models.DefaultFilter(), 10)

	drain(t, s)
	before := len(src.pageRequests())

	page, err := s.NextPage(context.Background())
	require.NoError(t, err)
	assert.True(t, page.Exhausted)
	assert.Empty(t, page.Entries)
	assert.Len(t, src.pageRequests(), before)
}

func TestSession_CanceledContext(t *testing.T) {
	src := &fakeSource{changes: []models.Change{change("c100", 100)}}
	release := src.hold()
	defer release()
	s := newTestSession(t, src, models.DefaultFilter(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.NextPage(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Pages())
}

// Every build is emitted exactly once and the timeline never goes back in
// time, wherever the page boundaries fall.
func TestSession_BuildsEmittedExactlyOnce(t *testing.T) {
	var changes []models.Change
	for ts := int64(200); ts > 0; ts -= 7 {
		changes = append(changes, change("c"+time.Unix(ts, 0).UTC().Format("150405"), ts))
	}
	builds := []models.Build{
		tsBuild("top", 250), tsBuild("tie", 193), tsBuild("mid1", 150), tsBuild("mid2", 150),
		tsBuild("gap", 101), tsBuild("low", 3), tsBuild("bottom", 1),
	}

	for pageSize := 1; pageSize <= 9; pageSize++ {
		src := &fakeSource{changes: changes, builds: builds}
		s := newTestSession(t, src, models.DefaultFilter(), pageSize)

		entries := drain(t, s)
		assertNonIncreasing(t, entries)

		seen := map[string]int{}
		nChanges := 0
		for _, e := range entries {
			if e.IsBuild() {
				seen[e.Build.Filename]++
			} else {
				nChanges++
			}
		}
		assert.Equal(t, len(changes), nChanges, "page size %d", pageSize)
		require.Len(t, seen, len(builds), "page size %d", pageSize)
		for name, n := range seen {
			assert.Equal(t, 1, n, "build %s emitted %d times with page size %d", name, n, pageSize)
		}
	}
}
