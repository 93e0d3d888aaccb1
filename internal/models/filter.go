package models

import (
	"fmt"
	"strings"
	"time"
)

// Status selects merged or open changes.
type Status string

const (
	StatusMerged Status = "merged"
	StatusOpen   Status = "open"
)

// ParseStatus parses a status name, defaulting to merged for "".
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(StatusMerged):
		return StatusMerged, nil
	case string(StatusOpen):
		return StatusOpen, nil
	default:
		return "", fmt.Errorf("unknown status '%s' (want merged or open)", s)
	}
}

// FilterState scopes one timeline session. It is treated as an immutable
// value: every change produces a new session.
type FilterState struct {
	SearchText    string
	After         *time.Time
	Branch        string
	Project       string
	ProjectFilter bool
	Status        Status
}

// DefaultFilter returns the filter a fresh install starts with.
func DefaultFilter() FilterState {
	return FilterState{ProjectFilter: true, Status: StatusMerged}
}

// Equal compares every field, including the After timestamp by value.
func (f FilterState) Equal(o FilterState) bool {
	if f.SearchText != o.SearchText || f.Branch != o.Branch || f.Project != o.Project ||
		f.ProjectFilter != o.ProjectFilter || f.Status != o.Status {
		return false
	}
	switch {
	case f.After == nil && o.After == nil:
		return true
	case f.After == nil || o.After == nil:
		return false
	default:
		return f.After.Equal(*o.After)
	}
}

// HasSearch reports whether a free-text search is active.
func (f FilterState) HasSearch() bool {
	return strings.TrimSpace(f.SearchText) != ""
}

// WithAfter returns a copy of the filter with the given lower date bound.
func (f FilterState) WithAfter(t time.Time) FilterState {
	f.After = &t
	return f
}
