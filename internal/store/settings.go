package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/omnirom/omnigerrit/internal/models"
	bolt "go.etcd.io/bbolt"
)

// Setting keys.
const (
	KeyProjectFilter = "project_filter"
	KeyDateAfter     = "date_after"
	KeyBranch        = "branch"
	KeyProject       = "project"
	KeyStatus        = "status"
	KeySearch        = "search"
)

// ProjectFilter returns whether device repositories are hidden. It defaults
// to true when never set.
func (s *Store) ProjectFilter() (bool, error) {
	v, err := s.GetValue(KeyProjectFilter)
	if err != nil || v == "" {
		return true, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true, fmt.Errorf("parse %s: %w", KeyProjectFilter, err)
	}
	return b, nil
}

// SetProjectFilter persists the project filter flag.
func (s *Store) SetProjectFilter(on bool) error {
	return s.SetValue(KeyProjectFilter, strconv.FormatBool(on))
}

// DateAfter returns the persisted lower date bound, or nil.
func (s *Store) DateAfter() (*time.Time, error) {
	v, err := s.GetValue(KeyDateAfter)
	if err != nil || v == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", KeyDateAfter, err)
	}
	return &t, nil
}

// SetDateAfter persists the lower date bound; nil clears it.
func (s *Store) SetDateAfter(t *time.Time) error {
	if t == nil {
		return s.DeleteValue(KeyDateAfter)
	}
	return s.SetValue(KeyDateAfter, t.UTC().Format(time.RFC3339))
}

// LoadFilter returns the saved default filter, starting from
// models.DefaultFilter for anything never saved.
func (s *Store) LoadFilter() (models.FilterState, error) {
	f := models.DefaultFilter()

	pf, err := s.ProjectFilter()
	if err != nil {
		return f, err
	}
	f.ProjectFilter = pf

	if f.After, err = s.DateAfter(); err != nil {
		return f, err
	}

	values := map[string]*string{KeyBranch: &f.Branch, KeyProject: &f.Project, KeySearch: &f.SearchText}
	for key, dst := range values {
		if *dst, err = s.GetValue(key); err != nil {
			return f, err
		}
	}

	status, err := s.GetValue(KeyStatus)
	if err != nil {
		return f, err
	}
	if f.Status, err = models.ParseStatus(status); err != nil {
		return f, fmt.Errorf("parse %s: %w", KeyStatus, err)
	}
	return f, nil
}

// SaveFilter persists f as the default filter in one transaction.
func (s *Store) SaveFilter(f models.FilterState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return fmt.Errorf("settings bucket not found")
		}
		put := func(key, value string) error {
			if value == "" {
				return b.Delete([]byte(key))
			}
			return b.Put([]byte(key), []byte(value))
		}

		after := ""
		if f.After != nil {
			after = f.After.UTC().Format(time.RFC3339)
		}
		for key, value := range map[string]string{
			KeyProjectFilter: strconv.FormatBool(f.ProjectFilter),
			KeyDateAfter:     after,
			KeyBranch:        f.Branch,
			KeyProject:       f.Project,
			KeyStatus:        string(f.Status),
			KeySearch:        f.SearchText,
		} {
			if err := put(key, value); err != nil {
				return fmt.Errorf("save %s: %w", key, err)
			}
		}
		return nil
	})
}

// savedFilter is the stored form of a named filter.
type savedFilter struct {
	SearchText    string     `json:"search_text,omitempty"`
	After         *time.Time `json:"after,omitempty"`
	Branch        string     `json:"branch,omitempty"`
	Project       string     `json:"project,omitempty"`
	ProjectFilter bool       `json:"project_filter"`
	Status        string     `json:"status,omitempty"`
}

// SaveNamedFilter stores f under name, replacing any previous one.
func (s *Store) SaveNamedFilter(name string, f models.FilterState) error {
	if name == "" {
		return fmt.Errorf("filter name is required")
	}
	data, err := json.Marshal(savedFilter{
		SearchText:    f.SearchText,
		After:         f.After,
		Branch:        f.Branch,
		Project:       f.Project,
		ProjectFilter: f.ProjectFilter,
		Status:        string(f.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal filter: %w", err)
	}
	return s.put(bucketFilters, name, data)
}

// GetNamedFilter returns the filter stored under name. Returns (nil, nil)
// if not found.
func (s *Store) GetNamedFilter(name string) (*models.FilterState, error) {
	data, err := s.get(bucketFilters, name)
	if err != nil || data == nil {
		return nil, err
	}
	var sf savedFilter
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("unmarshal filter %s: %w", name, err)
	}
	status, err := models.ParseStatus(sf.Status)
	if err != nil {
		return nil, err
	}
	return &models.FilterState{
		SearchText:    sf.SearchText,
		After:         sf.After,
		Branch:        sf.Branch,
		Project:       sf.Project,
		ProjectFilter: sf.ProjectFilter,
		Status:        status,
	}, nil
}

// ListNamedFilters returns the names of all stored filters, sorted.
func (s *Store) ListNamedFilters() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFilters)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

// DeleteNamedFilter removes a stored filter. Returns an error if not found.
func (s *Store) DeleteNamedFilter(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFilters)
		if b == nil {
			return fmt.Errorf("filters bucket not found")
		}
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("filter '%s' not found", name)
		}
		return b.Delete([]byte(name))
	})
}
