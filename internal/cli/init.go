package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/omnirom/omnigerrit/internal/config"
	"github.com/omnirom/omnigerrit/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Configure omnigerrit for a device",
	Long: `Create the omnigerrit home directory ($OMNIGERRIT_HOME or ~/.omnigerrit)
with a configuration for one device.

Examples:
  omnigerrit init --device oneplus9 --version 14
  omnigerrit init --device oneplus9 --branch android-13.0 --force`,
	Args: cobra.NoArgs,
	Run:  runInit,
}

var (
	initDevice       string
	initVersion      string
	initBuildType    string
	initBranch       string
	initGerritURL    string
	initOTAURL       string
	initAllowListURL string
	initForce        bool
)

func init() {
	f := initCmd.Flags()
	f.StringVar(&initDevice, "device", "", "Device code, e.g. oneplus9")
	f.StringVar(&initVersion, "version", "", "Only show builds of this version")
	f.StringVar(&initBuildType, "build-type", config.DefaultBuildType, "Build type to show")
	f.StringVar(&initBranch, "branch", config.DefaultBranch, "Default branch")
	f.StringVar(&initGerritURL, "gerrit-url", config.DefaultGerritURL, "Review server URL")
	f.StringVar(&initOTAURL, "ota-url", config.DefaultOTAURL, "Build server URL")
	f.StringVar(&initAllowListURL, "allow-list-url", "", "Device project allow-list URL")
	f.BoolVar(&initForce, "force", false, "Overwrite an existing configuration")
	initCmd.MarkFlagRequired("device")
}

func runInit(cmd *cobra.Command, args []string) {
	home, err := config.Home()
	if err != nil {
		exitError("%v", err)
	}

	cfg := config.Default()
	cfg.Device = initDevice
	cfg.Version = initVersion
	cfg.BuildType = initBuildType
	cfg.Branch = initBranch
	cfg.GerritURL = initGerritURL
	cfg.OTAURL = initOTAURL
	cfg.AllowListURL = initAllowListURL

	cfg, err = config.Initialize(home, cfg, initForce)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	// Check the review server, but keep the configuration either way.
	src, err := newSource(cfg)
	if err != nil {
		exitError("%v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fmt.Printf("Connecting to %s...\n", cfg.GerritURL)
	if err := src.Ping(ctx); err != nil {
		fmt.Printf("Warning: review server not reachable: %v\n", err)
	}

	fmt.Printf("\nConfigured omnigerrit in %s\n", cfg.Path())
	fmt.Printf("Device %s, branch %s\n", cfg.Device, cfg.Branch)
	fmt.Printf("\nRun 'omnigerrit log' to show the timeline.\n")
}
