package core

import "strings"

// DefaultDenyPrefixes hide per-device repositories from the timeline.
var DefaultDenyPrefixes = []string{
	"android_device_",
	"android_kernel_",
	"android_hardware_",
}

// ProjectFilter decides which projects are visible in a session.
type ProjectFilter struct {
	denyPrefixes []string
	allowed      map[string]bool
	enabled      bool
}

// NewProjectFilter creates a filter. When enabled is false only the
// allow-list is consulted and nothing is dropped.
func NewProjectFilter(denyPrefixes []string, allowed map[string]bool, enabled bool) *ProjectFilter {
	if denyPrefixes == nil {
		denyPrefixes = DefaultDenyPrefixes
	}
	if allowed == nil {
		allowed = map[string]bool{}
	}
	return &ProjectFilter{denyPrefixes: denyPrefixes, allowed: allowed, enabled: enabled}
}

// Visible reports whether changes of project are shown. The allow-list
// override is checked before the deny prefixes.
func (f *ProjectFilter) Visible(project string) bool {
	if f.allowed[project] {
		return true
	}
	if !f.enabled {
		return true
	}
	for _, prefix := range f.denyPrefixes {
		if strings.HasPrefix(project, prefix) {
			return false
		}
	}
	return true
}
