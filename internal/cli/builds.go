package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/omnirom/omnigerrit/internal/core"
	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/spf13/cobra"
)

var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "List the device's builds",
	Long:  `List the builds published for the configured device, newest first.`,
	Args:  cobra.NoArgs,
	Run:   runBuilds,
}

var (
	buildsAfter   string
	buildsOneline bool
)

func init() {
	buildsCmd.Flags().StringVar(&buildsAfter, "after", "", "Only show builds after this date")
	buildsCmd.Flags().BoolVar(&buildsOneline, "oneline", false, "Show each build on a single line")
}

func runBuilds(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	var after *time.Time
	if buildsAfter != "" {
		at, err := core.ParseAfter(buildsAfter)
		if err != nil {
			exitError("%v", err)
		}
		after = &at
	}

	dev := c.Config.DeviceInfo()
	builds, err := c.Source.FetchBuildSnapshot(context.Background(), dev)
	if err != nil {
		exitError("failed to fetch builds: %v", err)
	}

	index := core.NewBuildIndex(builds, after)
	if index.Len() == 0 {
		fmt.Printf("No builds for %s\n", dev.Name)
		return
	}
	for _, e := range index.Drain() {
		fmt.Print(formatEntry(models.NewBuildChange(e.Build), buildsOneline))
	}
}
