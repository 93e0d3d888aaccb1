package cli

import (
	"fmt"

	"github.com/omnirom/omnigerrit/internal/core"
	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/omnirom/omnigerrit/internal/store"
	"github.com/spf13/pflag"
)

// filterFlags are the timeline filter flags shared by log, watch and
// filter set. Only flags given on the command line override the base filter.
type filterFlags struct {
	branch          string
	project         string
	search          string
	after           string
	status          string
	noProjectFilter bool
	named           string
}

func (ff *filterFlags) register(fs *pflag.FlagSet, withNamed bool) {
	fs.StringVar(&ff.branch, "branch", "", "Branch to show (default: the device branch)")
	fs.StringVar(&ff.project, "project", "", "Only show changes of this project")
	fs.StringVarP(&ff.search, "search", "q", "", "Search commit messages (hides builds)")
	fs.StringVar(&ff.after, "after", "", "Only show entries after this date (YYYY-MM-DD, 'YYYY-MM-DD HH:MM' or RFC 3339; 'none' clears)")
	fs.StringVar(&ff.status, "status", "", "Change status: merged or open")
	fs.BoolVar(&ff.noProjectFilter, "no-project-filter", false, "Show device, kernel and hardware projects of other devices")
	if withNamed {
		fs.StringVarP(&ff.named, "filter", "f", "", "Start from a saved filter")
	}
}

// apply overrides base with every flag that was set.
func (ff *filterFlags) apply(fs *pflag.FlagSet, base models.FilterState) (models.FilterState, error) {
	f := base
	if fs.Changed("branch") {
		f.Branch = ff.branch
	}
	if fs.Changed("project") {
		f.Project = ff.project
	}
	if fs.Changed("search") {
		f.SearchText = ff.search
	}
	if fs.Changed("after") {
		if ff.after == "" || ff.after == "none" {
			f.After = nil
		} else {
			at, err := core.ParseAfter(ff.after)
			if err != nil {
				return base, err
			}
			f = f.WithAfter(at)
		}
	}
	if fs.Changed("status") {
		status, err := models.ParseStatus(ff.status)
		if err != nil {
			return base, err
		}
		f.Status = status
	}
	if fs.Changed("no-project-filter") {
		f.ProjectFilter = !ff.noProjectFilter
	}
	return f, nil
}

// resolve starts from the saved default (or the named filter) and applies
// the flags.
func (ff *filterFlags) resolve(fs *pflag.FlagSet, st *store.Store) (models.FilterState, error) {
	base, err := st.LoadFilter()
	if err != nil {
		return base, fmt.Errorf("load default filter: %w", err)
	}
	if ff.named != "" {
		saved, err := st.GetNamedFilter(ff.named)
		if err != nil {
			return base, err
		}
		if saved == nil {
			return base, fmt.Errorf("filter '%s' not found", ff.named)
		}
		base = *saved
	}
	return ff.apply(fs, base)
}
