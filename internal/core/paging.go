package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/omnirom/omnigerrit/internal/metrics"
	"github.com/omnirom/omnigerrit/internal/models"
)

// ErrStaleSession is returned by LoadMore when the session it was loading
// for was invalidated before the page arrived. The page is discarded.
var ErrStaleSession = errors.New("timeline session was invalidated")

// LoadKind is the coarse load status of a Controller.
type LoadKind int

const (
	Idle LoadKind = iota
	LoadingInitial
	LoadingMore
	LoadError
	Exhausted
)

func (k LoadKind) String() string {
	switch k {
	case Idle:
		return "idle"
	case LoadingInitial:
		return "loading-initial"
	case LoadingMore:
		return "loading-more"
	case LoadError:
		return "error"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("LoadKind(%d)", int(k))
	}
}

// LoadState is the load status with the error of a failed load.
type LoadState struct {
	Kind LoadKind
	Err  error
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Logger       *slog.Logger
	Source       ChangeSource
	Device       models.Device
	Filter       models.FilterState
	PageSize     int
	DenyPrefixes []string
}

func (cfg *ControllerConfig) Validate() error {
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

// Controller is the consumer-facing state machine of the timeline. It owns
// the current session, the visible entry list and the load state. All
// methods are safe for concurrent use.
type Controller struct {
	log *slog.Logger
	cfg ControllerConfig

	mu       sync.Mutex
	filter   models.FilterState
	session  *Session
	cancel   context.CancelFunc
	sctx     context.Context
	entries  []models.Change
	state    LoadState
	inFlight bool
	closed   bool

	updates chan struct{}
}

// NewController creates a controller with a fresh session for cfg.Filter.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		log:     cfg.Logger,
		cfg:     cfg,
		filter:  cfg.Filter,
		updates: make(chan struct{}, 1),
	}
	if err := c.restartLocked("start"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) restartLocked(reason string) error {
	if c.cancel != nil {
		c.cancel()
	}
	session, err := NewSession(SessionConfig{
		Logger:       c.cfg.Logger,
		Source:       c.cfg.Source,
		Device:       c.cfg.Device,
		Filter:       c.filter,
		PageSize:     c.cfg.PageSize,
		DenyPrefixes: c.cfg.DenyPrefixes,
	})
	if err != nil {
		return err
	}
	c.sctx, c.cancel = context.WithCancel(context.Background())
	c.session = session
	c.entries = nil
	c.state = LoadState{Kind: Idle}
	c.inFlight = false

	metrics.SessionsStartedTotal.WithLabelValues(reason).Inc()
	c.log.Debug("timeline: session started", "session", session.ID(), "reason", reason, "query", session.Query())
	return nil
}

func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Updates signals that entries or state changed. Signals coalesce: one
// pending signal stands for any number of changes.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Entries returns a copy of the visible timeline.
func (c *Controller) Entries() []models.Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Change, len(c.entries))
	copy(out, c.entries)
	return out
}

// State returns the current load state.
func (c *Controller) State() LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Filter returns the filter of the current session.
func (c *Controller) Filter() models.FilterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SessionID returns the id of the current session.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID()
}

// LoadMore loads the next page of the current session and appends it. It
// is a no-op when the session is exhausted or a load is already running.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.inFlight || c.state.Kind == Exhausted {
		c.mu.Unlock()
		return nil
	}
	session, sctx := c.session, c.sctx
	kind := LoadingMore
	if session.Pages() == 0 {
		kind = LoadingInitial
	}
	c.inFlight = true
	c.state = LoadState{Kind: kind}
	c.mu.Unlock()
	c.notify()

	lctx, cancel := context.WithCancel(sctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	page, err := session.NextPage(lctx)

	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		c.log.Debug("timeline: discarding page of invalidated session", "session", session.ID())
		return ErrStaleSession
	}
	c.inFlight = false
	switch {
	case err != nil && (ctx.Err() != nil || sctx.Err() != nil):
		c.state = LoadState{Kind: Idle}
	case err != nil:
		c.state = LoadState{Kind: LoadError, Err: err}
		c.log.Warn("timeline: page load failed", "session", session.ID(), "error", err)
	case page.Exhausted:
		c.entries = append(c.entries, page.Entries...)
		c.state = LoadState{Kind: Exhausted}
	default:
		c.entries = append(c.entries, page.Entries...)
		c.state = LoadState{Kind: Idle}
	}
	c.mu.Unlock()
	c.notify()
	return err
}

// Invalidate cancels any in-flight load and starts a new session for the
// current filter.
func (c *Controller) Invalidate(reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("controller is closed")
	}
	err := c.restartLocked(reason)
	c.mu.Unlock()
	c.notify()
	return err
}

// Refresh restarts the timeline on explicit request.
func (c *Controller) Refresh() error {
	return c.Invalidate("refresh")
}

// SetFilter switches to f. The session restarts only when f differs from
// the current filter; it reports whether it did.
func (c *Controller) SetFilter(f models.FilterState) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, errors.New("controller is closed")
	}
	if f.Equal(c.filter) {
		c.mu.Unlock()
		return false, nil
	}
	c.filter = f
	err := c.restartLocked("filter")
	c.mu.Unlock()
	c.notify()
	return err == nil, err
}

// WatchConnectivity invalidates the timeline each time connectivity comes
// back after having been lost. It returns when ctx is done or statuses is
// closed.
func (c *Controller) WatchConnectivity(ctx context.Context, statuses <-chan ConnectivityStatus) {
	OnReconnect(ctx, statuses, func() {
		if err := c.Invalidate("connectivity"); err != nil {
			c.log.Warn("timeline: restart after reconnect failed", "error", err)
		}
	})
}

// Close cancels the current session. Later loads are no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
}
