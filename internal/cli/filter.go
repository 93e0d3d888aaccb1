package cli

import (
	"fmt"

	"github.com/omnirom/omnigerrit/internal/models"
	"github.com/spf13/cobra"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Show or change the default timeline filter",
	Long: `Without a subcommand, shows the default filter used by 'omnigerrit log'.

Examples:
  omnigerrit filter                               # Show the default
  omnigerrit filter set --after 2024-01-01        # Change the default
  omnigerrit filter set --after none              # Clear the date
  omnigerrit filter save audio -q audio           # Save a named filter
  omnigerrit log -f audio                         # Use it`,
	Args: cobra.NoArgs,
	Run:  runFilterShow,
}

var filterSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the default filter",
	Args:  cobra.NoArgs,
	Run:   runFilterSet,
}

var filterResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default filter",
	Args:  cobra.NoArgs,
	Run:   runFilterReset,
}

var filterSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a named filter",
	Long:  `Save the default filter, with the given flags applied, under a name.`,
	Args:  cobra.ExactArgs(1),
	Run:   runFilterSave,
}

var filterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List named filters",
	Args:  cobra.NoArgs,
	Run:   runFilterList,
}

var filterDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a named filter",
	Args:  cobra.ExactArgs(1),
	Run:   runFilterDelete,
}

var (
	filterSetFlags  filterFlags
	filterSaveFlags filterFlags
)

func init() {
	filterSetFlags.register(filterSetCmd.Flags(), false)
	filterSaveFlags.register(filterSaveCmd.Flags(), false)
	filterCmd.AddCommand(filterSetCmd, filterResetCmd, filterSaveCmd, filterListCmd, filterDeleteCmd)
}

func runFilterShow(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	f, err := c.Store.LoadFilter()
	if err != nil {
		exitError("%v", err)
	}
	fmt.Print(formatFilter(f))
}

func runFilterSet(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	f, err := filterSetFlags.resolve(cmd.Flags(), c.Store)
	if err != nil {
		exitError("%v", err)
	}
	if err := c.Store.SaveFilter(f); err != nil {
		exitError("failed to save filter: %v", err)
	}
	fmt.Print(formatFilter(f))
}

func runFilterReset(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if err := c.Store.SaveFilter(models.DefaultFilter()); err != nil {
		exitError("failed to save filter: %v", err)
	}
	fmt.Println("Default filter restored")
}

func runFilterSave(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	f, err := filterSaveFlags.resolve(cmd.Flags(), c.Store)
	if err != nil {
		exitError("%v", err)
	}
	if err := c.Store.SaveNamedFilter(args[0], f); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Saved filter '%s'\n", args[0])
}

func runFilterList(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	names, err := c.Store.ListNamedFilters()
	if err != nil {
		exitError("%v", err)
	}
	if len(names) == 0 {
		fmt.Println("No saved filters")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runFilterDelete(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if err := c.Store.DeleteNamedFilter(args[0]); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Deleted filter '%s'\n", args[0])
}
