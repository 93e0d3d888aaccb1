// Package cli implements the command-line interface for omnigerrit.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/omnirom/omnigerrit/internal/config"
	"github.com/omnirom/omnigerrit/internal/remote"
	"github.com/omnirom/omnigerrit/internal/store"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  *store.Store
	Source *remote.Source
	Logger *slog.Logger
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext loads the configuration, opens the settings store and
// creates the remote clients.
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		exitError("invalid config %s: %v", cfg.Path(), err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	src, err := newSource(cfg)
	if err != nil {
		st.Close()
		exitError("%v", err)
	}

	return &cmdContext{Config: cfg, Store: st, Source: src, Logger: logger}
}

func newSource(cfg *config.Config) (*remote.Source, error) {
	return remote.NewSource(remote.Endpoints{
		GerritURL:    cfg.GerritURL,
		OTAURL:       cfg.OTAURL,
		AllowListURL: cfg.AllowListURL,
	}, nil, remote.DefaultRetryConfig())
}

var (
	verbose bool
	logger  = slog.Default()
)

// newLogger returns a colored stderr logger.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

var rootCmd = &cobra.Command{
	Use:   "omnigerrit",
	Short: "Browse merged changes and device builds",
	Long: `omnigerrit shows the merged history of the OmniROM review server as one
timeline, with the builds published for your device placed between the
changes they contain.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnv()
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = newLogger(level)
		slog.SetDefault(logger)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(buildsCmd)
	rootCmd.AddCommand(branchesCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(completionCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	color.New(color.FgRed).Fprint(os.Stderr, "error: ")
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
