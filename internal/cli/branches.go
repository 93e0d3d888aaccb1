package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var branchesCmd = &cobra.Command{
	Use:   "branches <project>",
	Short: "List branches of a project",
	Long: `List the branches of a project on the review server. The configured
branch is highlighted.`,
	Args: cobra.ExactArgs(1),
	Run:  runBranches,
}

func runBranches(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	branches, err := c.Source.ListBranches(context.Background(), args[0])
	if err != nil {
		exitError("failed to list branches: %v", err)
	}

	var names []string
	for _, b := range branches {
		if b.Ref == "HEAD" {
			continue
		}
		names = append(names, b.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if name == c.Config.Branch {
			green.Printf("* %s\n", name)
		} else {
			fmt.Printf("  %s\n", name)
		}
	}
}
