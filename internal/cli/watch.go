package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/omnirom/omnigerrit/internal/core"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the review server and reload the timeline on reconnect",
	Long: `Probe the review server periodically. The first page of the timeline is
shown once the server is reachable and reloaded every time the connection
comes back after a loss.`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

var (
	watchInterval time.Duration
	watchFilter   filterFlags
)

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Probe interval (default: ping_interval from the config)")
	watchFilter.register(watchCmd.Flags(), true)
}

func runWatch(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	filter, err := watchFilter.resolve(cmd.Flags(), c.Store)
	if err != nil {
		exitError("%v", err)
	}
	interval := watchInterval
	if interval <= 0 {
		if interval, err = c.Config.PingEvery(); err != nil {
			exitError("%v", err)
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

	watcher, err := core.NewConnectivityWatcher(core.WatcherConfig{
		Logger:   c.Logger,
		Pinger:   c.Source,
		Interval: interval,
	})
	if err != nil {
		exitError("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	statuses := watcher.Start(ctx)
	forward := make(chan core.ConnectivityStatus)
	go ctrl.WatchConnectivity(ctx, forward)

	shown := ""
	show := func() {
		shown = ctrl.SessionID()
		err := ctrl.LoadMore(ctx)
		switch {
		case errors.Is(err, core.ErrStaleSession):
			return
		case err != nil:
			fmt.Printf("load failed: %v\n", err)
			return
		}
		cyan.Printf("-- timeline at %s --\n", time.Now().Format("15:04:05"))
		printEntries(os.Stdout, ctrl.Entries(), true)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-statuses:
			if !ok {
				return
			}
			if st == core.Available {
				green.Printf("review server %s\n", st)
			} else {
				yellow.Printf("review server %s\n", st)
			}
			select {
			case forward <- st:
			case <-ctx.Done():
				return
			}
			if st == core.Available && shown == "" {
				show()
			}
		case <-ctrl.Updates():
			if shown != "" && ctrl.SessionID() != shown {
				show()
			}
		}
	}
}
