// Command omnigerrit-server serves the change and build timeline as a JSON API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/omnirom/omnigerrit/internal/config"
	"github.com/omnirom/omnigerrit/internal/core"
	"github.com/omnirom/omnigerrit/internal/metrics"
	"github.com/omnirom/omnigerrit/internal/remote"
	"github.com/omnirom/omnigerrit/internal/server"
	flag "github.com/spf13/pflag"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// godotenv does not override existing env vars, so process env and
	// explicit exports take precedence over .env.
	config.LoadEnv()

	listen := flag.String("listen", envOrDefault("OMNIGERRIT_LISTEN", "0.0.0.0:8730"), "Listen address")
	logLevel := flag.String("log-level", envOrDefault("OMNIGERRIT_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOrDefault("OMNIGERRIT_LOG_FORMAT", "json"), "Log format (json, text)")
	rateLimit := flag.Int("rate-limit", 120, "Requests per minute per client (0 disables)")
	sessionTTL := flag.Duration("session-ttl", 15*time.Minute, "Idle time before a timeline session is dropped")
	maxPages := flag.Int("max-pages", 10, "Maximum pages per timeline request")
	trustedProxies := flag.StringSlice("trusted-proxies", splitList(os.Getenv("OMNIGERRIT_TRUSTED_PROXIES")), "Proxy CIDRs whose X-Forwarded-For is trusted for rate limiting")
	corsOrigins := flag.StringSlice("cors-origins", splitList(os.Getenv("OMNIGERRIT_CORS_ORIGINS")), "Allowed CORS origins (comma-separated, empty disables)")

	// Timeline configuration; OMNIGERRIT_* variables apply first, flags win.
	gerritURL := flag.String("gerrit-url", config.DefaultGerritURL, "Review server URL")
	otaURL := flag.String("ota-url", config.DefaultOTAURL, "Build server URL")
	allowListURL := flag.String("allow-list-url", "", "Device project allow-list URL")
	device := flag.String("device", "", "Device code")
	deviceVersion := flag.String("version", "", "Build version to show")
	buildType := flag.String("build-type", config.DefaultBuildType, "Build type to show")
	branch := flag.String("branch", config.DefaultBranch, "Default branch")
	pageSize := flag.Int("page-size", config.DefaultPageSize, "Changes per page")
	pingInterval := flag.Duration("ping-interval", config.DefaultPingInterval, "Review server probe interval")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	cfg := config.Default()
	cfg.ApplyEnv()
	set := map[string]func(){
		"gerrit-url":     func() { cfg.GerritURL = *gerritURL },
		"ota-url":        func() { cfg.OTAURL = *otaURL },
		"allow-list-url": func() { cfg.AllowListURL = *allowListURL },
		"device":         func() { cfg.Device = *device },
		"version":        func() { cfg.Version = *deviceVersion },
		"build-type":     func() { cfg.BuildType = *buildType },
		"branch":         func() { cfg.Branch = *branch },
		"page-size":      func() { cfg.PageSize = *pageSize },
		"ping-interval":  func() { cfg.PingInterval = pingInterval.String() },
	}
	for name, apply := range set {
		if flag.CommandLine.Changed(name) {
			apply()
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	interval, err := cfg.PingEvery()
	if err != nil {
		return err
	}

	src, err := remote.NewSource(remote.Endpoints{
		GerritURL:    cfg.GerritURL,
		OTAURL:       cfg.OTAURL,
		AllowListURL: cfg.AllowListURL,
	}, nil, remote.DefaultRetryConfig())
	if err != nil {
		return err
	}

	srv, err := server.New(src, server.ServerConfig{
		Device:            cfg.DeviceInfo(),
		PageSize:          cfg.PageSize,
		DenyPrefixes:      cfg.DenyPrefixes,
		MaxPages:          *maxPages,
		SessionTTL:        *sessionTTL,
		RequestsPerMinute: *rateLimit,
		CORSOrigins:       *corsOrigins,
		TrustedProxies:    *trustedProxies,
	}, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := core.NewConnectivityWatcher(core.WatcherConfig{Logger: logger, Pinger: src, Interval: interval})
	if err != nil {
		return err
	}
	go srv.WatchConnectivity(ctx, watcher.Start(ctx))

	logger.Info("timeline configured", "device", cfg.Device, "branch", cfg.Branch, "gerrit", cfg.GerritURL, "version", version)
	return server.Run(ctx, *listen, srv, logger)
}

// envOrDefault returns the value of the environment variable key, or defaultVal if unset.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
