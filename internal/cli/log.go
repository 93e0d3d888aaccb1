package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/omnirom/omnigerrit/internal/core"
	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the change and build timeline",
	Long: `Display merged changes of the device branch, newest first, with the
device's builds placed between the changes they contain.

Examples:
  omnigerrit log                          # First page
  omnigerrit log -p 3 --oneline           # Three pages, one line each
  omnigerrit log --project android_build  # One project
  omnigerrit log -q "audio"               # Search commit messages
  omnigerrit log --after 2024-01-01 --save
  omnigerrit log -i                       # Page interactively`,
	Args: cobra.NoArgs,
	Run:  runLog,
}

var (
	logPages       int
	logAll         bool
	logOneline     bool
	logInteractive bool
	logSave        bool
	logFilter      filterFlags
)

func init() {
	f := logCmd.Flags()
	f.IntVarP(&logPages, "pages", "p", 1, "Number of pages to show")
	f.BoolVar(&logAll, "all", false, "Show the whole timeline")
	f.BoolVar(&logOneline, "oneline", false, "Show each entry on a single line")
	f.BoolVarP(&logInteractive, "interactive", "i", false, "Page through the timeline interactively")
	f.BoolVar(&logSave, "save", false, "Save the resulting filter as the default")
	logFilter.register(f, true)
}

func runLog(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	filter, err := logFilter.resolve(cmd.Flags(), c.Store)
	if err != nil {
		exitError("%v", err)
	}
	if logSave {
		if err := c.Store.SaveFilter(filter); err != nil {
			exitError("failed to save filter: %v", err)
		}
	}

	ctrl, err := core.NewController(core.ControllerConfig{
		Logger:       c.Logger,
		Source:       c.Source,
		Device:       c.Config.DeviceInfo(),
		Filter:       filter,
		PageSize:     c.Config.PageSize,
		DenyPrefixes: c.Config.DenyPrefixes,
	})
	if err != nil {
		exitError("%v", err)
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if logInteractive {
		runInteractive(ctx, ctrl, core.NewDetailLoader(c.Source, c.Logger), os.Stdin, os.Stdout)
		return
	}

	pages := logPages
	if logAll {
		pages = -1
	}
	if err := loadPages(ctx, ctrl, pages); err != nil {
		exitError("%v", err)
	}

	entries := ctrl.Entries()
	if len(entries) == 0 {
		fmt.Println("No changes")
		return
	}
	printEntries(os.Stdout, entries, logOneline)
	if ctrl.State().Kind != core.Exhausted && !logOneline {
		faint.Printf("(more available: omnigerrit log -p %d)\n", logPages+1)
	}
}

// loadPages loads up to n pages, or every page for n < 0.
func loadPages(ctx context.Context, ctrl *core.Controller, n int) error {
	for i := 0; n < 0 || i < n; i++ {
		if ctrl.State().Kind == core.Exhausted {
			return nil
		}
		if err := ctrl.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runInteractive reads commands from in until EOF or q.
func runInteractive(ctx context.Context, ctrl *core.Controller, details *core.DetailLoader, in io.Reader, out io.Writer) {
	printed := 0
	more := func() {
		if err := ctrl.LoadMore(ctx); err != nil {
			fmt.Fprintf(out, "load failed: %v (enter to retry)\n", err)
		}
		entries := ctrl.Entries()
		printNumbered(out, entries[printed:], printed+1)
		printed = len(entries)
		if ctrl.State().Kind == core.Exhausted {
			faint.Fprintln(out, "(end of timeline)")
		}
	}

	fmt.Fprintln(out, "enter: more   r: refresh   s N: show entry N   q: quit")
	more()

	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		switch {
		case len(fields) == 0 || fields[0] == "n":
			more()
		case fields[0] == "q":
			return
		case fields[0] == "r":
			if err := ctrl.Refresh(); err != nil {
				fmt.Fprintf(out, "refresh failed: %v\n", err)
				continue
			}
			printed = 0
			more()
		case fields[0] == "s" && len(fields) == 2:
			showEntry(ctx, ctrl.Entries(), details, fields[1], out)
		default:
			fmt.Fprintf(out, "unknown command %q\n", strings.Join(fields, " "))
		}
	}
}

func showEntry(ctx context.Context, entries []models.Change, details *core.DetailLoader, arg string, out io.Writer) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(entries) {
		fmt.Fprintf(out, "no entry %s\n", arg)
		return
	}
	detail, err := details.Select(ctx, entries[n-1])
	if err != nil {
		fmt.Fprintf(out, "%v\n", err)
		return
	}
	fmt.Fprint(out, formatDetail(detail))
}
