// Package core is the timeline engine: it builds change-list queries,
// pages through the review server, splices build entries into the change
// stream and drives the consumer-facing paging state machine.
package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/omnirom/omnigerrit/internal/models"
)

// queryDateLayout is the after: operand format, always UTC.
const queryDateLayout = "2006-01-02 15:04"

// BuildQuery returns the already-encoded q parameter for f. Terms are joined
// with "+", which the server decodes as a space.
func BuildQuery(dev models.Device, f models.FilterState) string {
	branch := f.Branch
	if branch == "" {
		branch = dev.Branch
	}

	terms := make([]string, 0, 5)
	if branch != "" {
		terms = append(terms, "branch:"+url.QueryEscape(branch))
	}
	if f.Project != "" {
		terms = append(terms, "project:"+url.QueryEscape(f.Project))
	}
	if f.HasSearch() {
		terms = append(terms, "message:"+url.QueryEscape(`"`+strings.TrimSpace(f.SearchText)+`"`))
	}
	if f.After != nil {
		terms = append(terms, "after:"+url.QueryEscape(`"`+f.After.UTC().Format(queryDateLayout)+`"`))
	}

	status := f.Status
	if status == "" {
		status = models.StatusMerged
	}
	terms = append(terms, "status:"+string(status))

	return strings.Join(terms, "+")
}

// TruncateToQueryPrecision drops the parts of t the after: operand cannot
// express.
func TruncateToQueryPrecision(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

var afterLayouts = []string{time.RFC3339, queryDateLayout, "2006-01-02"}

// ParseAfter parses a lower date bound given as RFC 3339, "2006-01-02 15:04"
// or "2006-01-02". Zone-less forms are read as UTC.
func ParseAfter(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range afterLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateToQueryPrecision(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date '%s' (want YYYY-MM-DD, 'YYYY-MM-DD HH:MM' or RFC 3339)", s)
}
