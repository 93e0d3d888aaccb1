package core

import (
	"sort"
	"time"

	"github.com/omnirom/omnigerrit/internal/models"
)

// Entry is one unplaced build of a session.
type Entry struct {
	At    time.Time
	Build models.Build
}

// BuildIndex holds the builds of a session that have not been placed into
// the timeline yet, newest first. Every entry leaves the index exactly once.
// It is owned by a single Session and is not safe for concurrent use.
type BuildIndex struct {
	entries []Entry
}

// NewBuildIndex indexes builds by BuildTime. Builds not newer than after are
// left out; ties keep their input order.
func NewBuildIndex(builds []models.Build, after *time.Time) *BuildIndex {
	entries := make([]Entry, 0, len(builds))
	for _, b := range builds {
		at := b.BuildTime()
		if after != nil && !at.After(*after) {
			continue
		}
		entries = append(entries, Entry{At: at, Build: b})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At.After(entries[j].At)
	})
	return &BuildIndex{entries: entries}
}

// Take removes and returns every entry whose time satisfies pred, in
// descending order.
func (x *BuildIndex) Take(pred func(time.Time) bool) []Entry {
	var taken []Entry
	kept := x.entries[:0]
	for _, e := range x.entries {
		if pred(e.At) {
			taken = append(taken, e)
		} else {
			kept = append(kept, e)
		}
	}
	x.entries = kept
	return taken
}

// Peek returns the remaining entries without consuming them.
func (x *BuildIndex) Peek() []Entry {
	out := make([]Entry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Drain removes and returns all remaining entries.
func (x *BuildIndex) Drain() []Entry {
	out := x.entries
	x.entries = nil
	return out
}

// Len returns the number of unplaced entries.
func (x *BuildIndex) Len() int {
	return len(x.entries)
}
