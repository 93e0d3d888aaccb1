package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omnirom/omnigerrit/internal/metrics"
	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/omnirom/omnigerrit/internal/remote"
	"golang.org/x/sync/errgroup"
)

// DefaultPageSize is the logical page size used when none is configured.
const DefaultPageSize = 25

// ChangeSource is everything the timeline reads from remote services.
type ChangeSource interface {
	FetchPage(ctx context.Context, query string, limit, offset int) ([]models.Change, bool, error)
	FetchBuildSnapshot(ctx context.Context, dev models.Device) ([]models.Build, error)
	FetchAllowList(ctx context.Context, device string) (map[string]bool, error)
	FetchRevisionDetail(ctx context.Context, changeID, revisionID string) (*models.ChangeDetail, error)
}

// SessionConfig scopes one timeline session.
type SessionConfig struct {
	Logger       *slog.Logger
	Source       ChangeSource
	Device       models.Device
	Filter       models.FilterState
	PageSize     int
	DenyPrefixes []string
}

func (cfg *SessionConfig) Validate() error {
	if cfg.Source == nil {
		return errors.New("change source is required")
	}
	if cfg.PageSize < 0 {
		return errors.New("page size must not be negative")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return nil
}

// Page is one logical page of the timeline.
type Page struct {
	Entries   []models.Change
	Builds    int
	Exhausted bool
}

// Session pages through one filter-scoped timeline. Pages are produced
// strictly one after another; every build of the snapshot is emitted at
// most once, and every change ID at most once.
type Session struct {
	id     string
	log    *slog.Logger
	src    ChangeSource
	dev    models.Device
	filter models.FilterState
	query  string
	deny   []string

	mu       sync.Mutex
	cursor   models.PageCursor
	pages    int
	prepared bool
	index    *BuildIndex
	projects *ProjectFilter
	seen     map[string]bool
}

// NewSession creates a session positioned before the first page.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		log:    cfg.Logger.With("session", id),
		src:    cfg.Source,
		dev:    cfg.Device,
		filter: cfg.Filter,
		query:  BuildQuery(cfg.Device, cfg.Filter),
		deny:   cfg.DenyPrefixes,
		cursor: models.PageCursor{PageSize: cfg.PageSize},
		seen:   make(map[string]bool),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Query returns the change-list query of the session.
func (s *Session) Query() string { return s.query }

// Filter returns the filter the session was created for.
func (s *Session) Filter() models.FilterState { return s.filter }

// Cursor returns a copy of the paging cursor.
func (s *Session) Cursor() models.PageCursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Pages returns the number of pages produced so far.
func (s *Session) Pages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages
}

// PendingBuilds returns the number of builds not yet placed.
func (s *Session) PendingBuilds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return 0
	}
	return s.index.Len()
}

func (s *Session) injectBuilds() bool {
	return !s.filter.HasSearch()
}

type fetched struct {
	changes   []models.Change
	exhausted bool
}

// fetch requests one window of changes and records the outcome.
func (s *Session) fetch(ctx context.Context, offset int) (fetched, error) {
	start := time.Now()
	changes, exhausted, err := s.src.FetchPage(ctx, s.query, s.cursor.PageSize, offset)
	metrics.PageFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PageFetchTotal.WithLabelValues(fetchResult(err)).Inc()
		return fetched{}, err
	}
	metrics.PageFetchTotal.WithLabelValues("success").Inc()
	s.log.Debug("timeline: fetched changes", "offset", offset, "count", len(changes), "exhausted", exhausted)
	return fetched{changes: changes, exhausted: exhausted}, nil
}

func fetchResult(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case remote.IsTransient(err):
		return "network"
	case remote.IsServerError(err):
		return "server"
	default:
		return "error"
	}
}

// prepare fetches the build snapshot and the allow-list alongside the first
// change window. Snapshot failures degrade to empty inputs.
func (s *Session) prepare(ctx context.Context) (*BuildIndex, *ProjectFilter, fetched, error) {
	var (
		builds  []models.Build
		allowed map[string]bool
		first   fetched
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.injectBuilds() {
		g.Go(func() error {
			b, err := s.src.FetchBuildSnapshot(gctx, s.dev)
			if err != nil {
				if gctx.Err() == nil {
					s.log.Warn("timeline: build snapshot unavailable, continuing without builds", "error", err)
					metrics.SnapshotFailuresTotal.WithLabelValues("builds").Inc()
				}
				return nil
			}
			builds = b
			return nil
		})
	}
	g.Go(func() error {
		a, err := s.src.FetchAllowList(gctx, s.dev.Name)
		if err != nil {
			if gctx.Err() == nil {
				s.log.Warn("timeline: allow-list unavailable, continuing without override", "error", err)
				metrics.SnapshotFailuresTotal.WithLabelValues("allowlist").Inc()
			}
			return nil
		}
		allowed = a
		return nil
	})
	g.Go(func() error {
		f, err := s.fetch(gctx, s.cursor.Offset)
		if err != nil {
			return err
		}
		first = f
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fetched{}, err
	}

	index := NewBuildIndex(builds, s.filter.After)
	projects := NewProjectFilter(s.deny, allowed, s.filter.ProjectFilter)
	return index, projects, first, nil
}

// NextPage produces the next logical page. On error nothing is consumed:
// the cursor, the build index and the dedup set are left untouched, so a
// retry re-issues the identical request.
func (s *Session) NextPage(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor.Exhausted {
		return Page{Exhausted: true}, nil
	}

	index, projects := s.index, s.projects
	var first *fetched
	if !s.prepared {
		idx, pf, f, err := s.prepare(ctx)
		if err != nil {
			return Page{}, fmt.Errorf("load page %d: %w", s.pages+1, err)
		}
		index, projects, first = idx, pf, &f
	}

	changes, offset, exhausted, err := s.collect(ctx, projects, first)
	if err != nil {
		return Page{}, fmt.Errorf("load page %d: %w", s.pages+1, err)
	}

	// Everything below consumes session state and cannot fail.
	if !s.prepared {
		s.index, s.projects, s.prepared = index, projects, true
	}
	for _, c := range changes {
		s.seen[c.ID] = true
	}
	s.cursor.Advance(offset-s.cursor.Offset, exhausted)
	s.pages++

	var entries []models.Change
	builds := 0
	if s.injectBuilds() {
		entries, builds = splice(changes, s.index, exhausted)
	} else {
		entries = changes
	}

	metrics.PagesBuiltTotal.Inc()
	metrics.BuildsSplicedTotal.Add(float64(builds))
	s.log.Debug("timeline: page built", "page", s.pages, "changes", len(changes), "builds", builds,
		"offset", s.cursor.Offset, "exhausted", exhausted)

	return Page{Entries: entries, Builds: builds, Exhausted: exhausted}, nil
}

// collect fetches windows until pageSize visible changes are accumulated or
// the source is exhausted. It returns the server offset after the last
// window.
func (s *Session) collect(ctx context.Context, projects *ProjectFilter, first *fetched) ([]models.Change, int, bool, error) {
	var (
		acc       []models.Change
		offset    = s.cursor.Offset
		exhausted bool
		pageSeen  = make(map[string]bool)
	)

	for len(acc) < s.cursor.PageSize && !exhausted {
		var f fetched
		if first != nil {
			f, first = *first, nil
		} else {
			var err error
			if f, err = s.fetch(ctx, offset); err != nil {
				return nil, 0, false, err
			}
		}

		offset += len(f.changes)
		exhausted = f.exhausted || len(f.changes) == 0

		for _, c := range f.changes {
			if s.seen[c.ID] || pageSeen[c.ID] {
				metrics.ChangesFilteredTotal.WithLabelValues("duplicate").Inc()
				continue
			}
			if !projects.Visible(c.Project) {
				metrics.ChangesFilteredTotal.WithLabelValues("project").Inc()
				continue
			}
			pageSeen[c.ID] = true
			acc = append(acc, c)
		}
	}

	sort.SliceStable(acc, func(i, j int) bool {
		return acc[i].Updated.After(acc[j].Updated)
	})
	return acc, offset, exhausted, nil
}

// splice interleaves unplaced builds into changes, which are sorted newest
// first. A build sharing a change's timestamp goes after the change. Builds
// older than the last change stay in the index unless the source is
// exhausted, in which case they are flushed at the end.
func splice(changes []models.Change, index *BuildIndex, exhausted bool) ([]models.Change, int) {
	out := make([]models.Change, 0, len(changes)+index.Len())
	builds := 0
	appendEntries := func(entries []Entry) {
		for _, e := range entries {
			out = append(out, models.NewBuildChange(e.Build))
		}
		builds += len(entries)
	}

	if len(changes) > 0 {
		newest := changes[0].Updated
		appendEntries(index.Take(func(at time.Time) bool { return at.After(newest) }))
	}

	for i, cur := range changes {
		out = append(out, cur)
		if i+1 < len(changes) {
			hi, lo := cur.Updated, changes[i+1].Updated
			appendEntries(index.Take(func(at time.Time) bool {
				return at.After(lo) && !at.After(hi)
			}))
		}
	}

	if exhausted {
		appendEntries(index.Drain())
	}
	return out, builds
}
