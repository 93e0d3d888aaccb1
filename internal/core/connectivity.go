package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/omnirom/omnigerrit/internal/metrics"
)

// ConnectivityStatus is the reachability of the review server.
type ConnectivityStatus int

const (
	Unavailable ConnectivityStatus = iota
	Available
)

func (s ConnectivityStatus) String() string {
	if s == Available {
		return "available"
	}
	return "unavailable"
}

// Pinger probes a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type WatcherConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Pinger   Pinger
	Interval time.Duration
}

func (cfg *WatcherConfig) Validate() error {
	if cfg.Pinger == nil {
		return errors.New("pinger is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// ConnectivityWatcher polls the review server and reports reachability
// transitions.
type ConnectivityWatcher struct {
	log *slog.Logger
	cfg WatcherConfig
}

func NewConnectivityWatcher(cfg WatcherConfig) (*ConnectivityWatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConnectivityWatcher{log: cfg.Logger, cfg: cfg}, nil
}

func (w *ConnectivityWatcher) probe(ctx context.Context) ConnectivityStatus {
	if err := w.cfg.Pinger.Ping(ctx); err != nil {
		if ctx.Err() == nil {
			w.log.Debug("connectivity: probe failed", "error", err)
		}
		return Unavailable
	}
	return Available
}

// Start probes once immediately and then every interval. The returned
// channel carries the first status and every change after it; it is
// closed when ctx is done.
func (w *ConnectivityWatcher) Start(ctx context.Context) <-chan ConnectivityStatus {
	out := make(chan ConnectivityStatus)
	go func() {
		defer close(out)
		w.log.Info("connectivity: starting watch", "interval", w.cfg.Interval)

		ticker := w.cfg.Clock.NewTicker(w.cfg.Interval)
		defer ticker.Stop()

		var last ConnectivityStatus
		emit := func(st ConnectivityStatus, first bool) bool {
			if !first && st == last {
				return true
			}
			last = st
			if st == Available {
				metrics.ConnectivityState.Set(1)
			} else {
				metrics.ConnectivityState.Set(0)
			}
			w.log.Info("connectivity: status changed", "status", st.String())
			select {
			case out <- st:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(w.probe(ctx), true) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if !emit(w.probe(ctx), false) {
					return
				}
			}
		}
	}()
	return out
}

// OnReconnect calls fn each time statuses reports Available after having
// reported Unavailable. It returns when ctx is done or statuses is closed.
func OnReconnect(ctx context.Context, statuses <-chan ConnectivityStatus, fn func()) {
	lost := false
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-statuses:
			if !ok {
				return
			}
			switch st {
			case Unavailable:
				lost = true
			case Available:
				if lost {
					lost = false
					fn()
				}
			}
		}
	}
}
