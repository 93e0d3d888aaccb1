package server

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/omnirom/omnigerrit/internal/core"
)

// sessionStore keeps timeline sessions alive between requests so a client
// can continue paging with the session id. Idle sessions expire after ttl.
// Each session carries a context that is cancelled when it leaves the
// store, aborting any page still being built for it.
type sessionStore struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	ttl      time.Duration
	max      int
	sessions map[string]*storedSession
}

type storedSession struct {
	session  *core.Session
	ctx      context.Context
	cancel   context.CancelFunc
	lastUsed time.Time
}

func newSessionStore(clock clockwork.Clock, ttl time.Duration, max int) *sessionStore {
	return &sessionStore{
		clock:    clock,
		ttl:      ttl,
		max:      max,
		sessions: make(map[string]*storedSession),
	}
}

// put stores s, evicting expired sessions and, when full, the least
// recently used one. The returned context lives as long as s is stored.
func (st *sessionStore) put(s *core.Session) context.Context {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.clock.Now()
	st.expireLocked(now)
	if len(st.sessions) >= st.max {
		var oldest string
		var oldestAt time.Time
		for id, e := range st.sessions {
			if oldest == "" || e.lastUsed.Before(oldestAt) {
				oldest, oldestAt = id, e.lastUsed
			}
		}
		st.dropLocked(oldest)
	}
	ctx, cancel := context.WithCancel(context.Background())
	st.sessions[s.ID()] = &storedSession{session: s, ctx: ctx, cancel: cancel, lastUsed: now}
	return ctx
}

// get returns the session with the given id and its context, and marks it
// used.
func (st *sessionStore) get(id string) (*core.Session, context.Context, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.clock.Now()
	e, ok := st.sessions[id]
	if !ok {
		return nil, nil, false
	}
	if now.Sub(e.lastUsed) > st.ttl {
		st.dropLocked(id)
		return nil, nil, false
	}
	e.lastUsed = now
	return e.session, e.ctx, true
}

func (st *sessionStore) remove(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dropLocked(id)
}

// clear drops every session and returns how many were dropped.
func (st *sessionStore) clear() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := len(st.sessions)
	for id := range st.sessions {
		st.dropLocked(id)
	}
	return n
}

func (st *sessionStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *sessionStore) expireLocked(now time.Time) {
	for id, e := range st.sessions {
		if now.Sub(e.lastUsed) > st.ttl {
			st.dropLocked(id)
		}
	}
}

func (st *sessionStore) dropLocked(id string) bool {
	e, ok := st.sessions[id]
	if !ok {
		return false
	}
	e.cancel()
	delete(st.sessions, id)
	return true
}
