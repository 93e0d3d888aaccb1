package cli

import (
	"context"
	"fmt"

	"github.com/omnirom/omnigerrit/internal/core"
	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <change>",
	Short: "Show change details",
	Long: `Show the commit message and topic of a change. The change may be given
as a change number, a Change-Id or a full change id.`,
	Args: cobra.ExactArgs(1),
	Run:  runShow,
}

var showRevision string

func init() {
	showCmd.Flags().StringVar(&showRevision, "revision", "", "Revision to show (default: current)")
}

func runShow(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	details := core.NewDetailLoader(c.Source, c.Logger)
	detail, err := details.Select(context.Background(), models.Change{ID: args[0], RevisionID: showRevision})
	if err != nil {
		exitError("%v", err)
	}
	fmt.Print(formatDetail(detail))
}
