package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/omnirom/omnigerrit/internal/core"
	"github.com/omnirom/omnigerrit/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the timeline as a JSON API",
	Long: `Serve the timeline of the configured device over HTTP.

Endpoints:
  GET    /api/v1/timeline                 start a timeline (branch, project, q, after, status, pages)
  GET    /api/v1/timeline/{session}       next pages of a timeline
  DELETE /api/v1/timeline/{session}
  GET    /api/v1/changes/{id}             change detail (revision)
  GET    /api/v1/builds                   device builds (after)
  GET    /api/v1/projects/{project}/branches
  GET    /healthz, /readyz, /metrics`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

var (
	serveListen    string
	serveRateLimit int
	serveTrusted   []string
)

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveListen, "listen", envOrDefault("OMNIGERRIT_LISTEN", "127.0.0.1:8730"), "Listen address (host:port)")
	f.IntVar(&serveRateLimit, "rate-limit", 120, "Requests per minute per client (0 disables)")
	f.StringSliceVar(&serveTrusted, "trusted-proxies", nil, "Proxy CIDRs whose X-Forwarded-For is trusted for rate limiting")
}

func runServe(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	// Request logs go to stderr at info level regardless of --verbose.
	reqLogger := logger
	if !verbose {
		reqLogger = newLogger(slog.LevelInfo)
	}

	srv, err := server.New(c.Source, server.ServerConfig{
		Device:            c.Config.DeviceInfo(),
		PageSize:          c.Config.PageSize,
		DenyPrefixes:      c.Config.DenyPrefixes,
		RequestsPerMinute: serveRateLimit,
		TrustedProxies:    serveTrusted,
	}, reqLogger)
	if err != nil {
		exitError("%v", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval, err := c.Config.PingEvery()
	if err != nil {
		exitError("%v", err)
	}
	watcher, err := core.NewConnectivityWatcher(core.WatcherConfig{Logger: reqLogger, Pinger: c.Source, Interval: interval})
	if err != nil {
		exitError("%v", err)
	}
	go srv.WatchConnectivity(ctx, watcher.Start(ctx))

	if err := server.Run(ctx, serveListen, srv, reqLogger); err != nil {
		exitError("%v", err)
	}
}

// envOrDefault returns the value of the environment variable key, or defaultVal if unset.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
