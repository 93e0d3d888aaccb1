package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/omnirom/omnigerrit/internal/models"
)

const dateLayout = "Mon Jan 2 15:04:05 2006"

var (
	yellow  = color.New(color.FgYellow)
	cyan    = color.New(color.FgCyan)
	green   = color.New(color.FgGreen)
	magenta = color.New(color.FgMagenta)
	faint   = color.New(color.Faint)
)

// formatEntry renders one timeline entry. Build entries stand out in green.
func formatEntry(c models.Change, oneline bool) string {
	var b strings.Builder
	if c.IsBuild() {
		if oneline {
			fmt.Fprintf(&b, "%s %s %s\n", green.Sprint("build"), c.Updated.Format("2006-01-02"), c.Build.Filename)
			return b.String()
		}
		green.Fprintf(&b, "build %s\n", c.Build.Filename)
		fmt.Fprintf(&b, "Date:   %s\n", c.Updated.Format(dateLayout))
		fmt.Fprintf(&b, "Size:   %d MB\n\n", c.Build.SizeMB())
		return b.String()
	}

	if oneline {
		fmt.Fprintf(&b, "%s %s %s\n", yellow.Sprint(shortChange(c)), faint.Sprint(c.Project), c.Subject)
		return b.String()
	}
	yellow.Fprintf(&b, "change %s", shortChange(c))
	if c.Number > 0 {
		cyan.Fprintf(&b, " (%d)", c.Number)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Project: %s", c.Project)
	if c.Branch != "" {
		fmt.Fprintf(&b, " [%s]", c.Branch)
	}
	b.WriteString("\n")
	if who := c.Owner.DisplayName(); who != "" {
		fmt.Fprintf(&b, "Owner:   %s\n", who)
	}
	fmt.Fprintf(&b, "Date:    %s\n", c.Updated.Format(dateLayout))
	fmt.Fprintf(&b, "\n    %s\n\n", c.Subject)
	return b.String()
}

// shortChange prefers the short Change-Id and falls back to the change id.
func shortChange(c models.Change) string {
	if id := c.ShortID(); id != "" {
		return id
	}
	return c.ID
}

func printEntries(w io.Writer, entries []models.Change, oneline bool) {
	for _, e := range entries {
		fmt.Fprint(w, formatEntry(e, oneline))
	}
}

// printNumbered prints entries prefixed with their position, starting at
// first, so they can be selected by number.
func printNumbered(w io.Writer, entries []models.Change, first int) {
	for i, e := range entries {
		fmt.Fprintf(w, "%s %s", faint.Sprintf("%4d", first+i), formatEntry(e, true))
	}
}

func formatDetail(d *models.ChangeDetail) string {
	var b strings.Builder
	b.WriteString(formatEntry(d.Change, false))
	if d.Change.IsBuild() {
		return b.String()
	}
	if d.Topic != "" {
		magenta.Fprintf(&b, "Topic: %s\n\n", d.Topic)
	}
	for _, line := range strings.Split(d.CommitMessage, "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	return b.String()
}

func formatFilter(f models.FilterState) string {
	var b strings.Builder
	row := func(name, value string) {
		if value == "" {
			value = faint.Sprint("(none)")
		}
		fmt.Fprintf(&b, "%-15s %s\n", name+":", value)
	}
	row("branch", f.Branch)
	row("project", f.Project)
	row("search", f.SearchText)
	after := ""
	if f.After != nil {
		after = f.After.UTC().Format("2006-01-02 15:04")
	}
	row("after", after)
	row("status", string(f.Status))
	row("project filter", fmt.Sprintf("%t", f.ProjectFilter))
	return b.String()
}
