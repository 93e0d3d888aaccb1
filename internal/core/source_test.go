package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/omnirom/omnigerrit/internal/remote"
)

type pageRequest struct {
	query  string
	limit  int
	offset int
}

// fakeSource implements ChangeSource over in-memory slices.
type fakeSource struct {
	mu        sync.Mutex
	changes   []models.Change
	builds    []models.Build
	buildsErr error
	allowed   map[string]bool
	allowErr  error
	pageErrs  []error
	gate      chan struct{}
	details   map[string]*models.ChangeDetail
	detailErr error

	requests      []pageRequest
	snapshotCalls int
}

func (f *fakeSource) FetchPage(ctx context.Context, query string, limit, offset int) ([]models.Change, bool, error) {
	f.mu.Lock()
	f.requests = append(f.requests, pageRequest{query: query, limit: limit, offset: offset})
	gate := f.gate
	var err error
	if len(f.pageErrs) > 0 {
		err, f.pageErrs = f.pageErrs[0], f.pageErrs[1:]
	}
	all := f.changes
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if err != nil {
		return nil, false, err
	}

	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := make([]models.Change, end-offset)
	copy(page, all[offset:end])
	return page, end >= len(all), nil
}

func (f *fakeSource) FetchBuildSnapshot(_ context.Context, _ models.Device) ([]models.Build, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls++
	if f.buildsErr != nil {
		return nil, f.buildsErr
	}
	return f.builds, nil
}

func (f *fakeSource) FetchAllowList(_ context.Context, _ string) (map[string]bool, error) {
	if f.allowErr != nil {
		return nil, f.allowErr
	}
	return f.allowed, nil
}

func (f *fakeSource) FetchRevisionDetail(_ context.Context, changeID, _ string) (*models.ChangeDetail, error) {
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	d, ok := f.details[changeID]
	if !ok {
		return nil, &remote.ServerError{Op: "get change " + changeID, Status: 404}
	}
	return d, nil
}

func (f *fakeSource) pageRequests() []pageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pageRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeSource) hold() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

var errConnReset = &remote.NetworkError{Op: "fetch changes", Err: errors.New("connection reset by peer")}

func change(id string, ts int64) models.Change {
	at := time.Unix(ts, 0).UTC()
	return models.Change{ID: id, Project: "android_frameworks_base", Subject: "change " + id, Created: at, Updated: at}
}

func projectChange(id, project string, ts int64) models.Change {
	c := change(id, ts)
	c.Project = project
	return c
}

// timeline renders entries as "id@ts" for changes and "b@ts" for builds.
func timeline(entries []models.Change) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		id := e.ID
		if e.IsBuild() {
			id = "b"
		}
		out[i] = id + "@" + strconv.FormatInt(e.Updated.Unix(), 10)
	}
	return out
}
