package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jandubois/rsvctl/internal/config"
	"github.com/jandubois/rsvctl/internal/notify"
	"github.com/jandubois/rsvctl/internal/schedule"
	"github.com/jandubois/rsvctl/internal/status"
	"github.com/jandubois/rsvctl/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler for enabled probes",
	Long: `The scheduler runs every enabled probe at its interval and records the
results in the scheduling backend database.

Registrations added or removed with --enable and --disable are picked up
periodically without a restart. Channels listed under notify in the settings
file are alerted when a metric starts failing or recovers.

With --http-addr a read-only status API is served:

  GET /api/health
  GET /api/probes?pattern=<regexp>&format=<format>
  GET /api/probes/<probeID>?format=<format>`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("http-addr", "", "Listen address of the status API (e.g. :8080)")
	serveCmd.Flags().String("auth-token", "", "Bearer token required by the status API (or RSVCTL_AUTH_TOKEN env var)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			slog.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := schedule.NewScheduler(a.store, a.settings.DefaultInterval)
	if len(a.settings.Notify) > 0 {
		dispatcher, err := notify.NewDispatcher(a.settings.Notify)
		if err != nil {
			return err
		}
		scheduler.WithObserver(dispatcher)
	}

	addr, _ := cmd.Flags().GetString("http-addr")
	if addr == "" {
		addr = a.settings.HTTPAddr
	}
	token, _ := cmd.Flags().GetString("auth-token")
	if token == "" {
		token = os.Getenv(config.EnvAuthToken)
	}
	if token == "" {
		token = a.settings.AuthToken
	}

	slog.Info("starting scheduler",
		"root", a.root,
		"host", a.localHost,
		"default_interval", a.settings.DefaultInterval,
		"run_timeout", a.settings.RunTimeout,
		"http_addr", addr,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})
	if addr != "" {
		if token == "" {
			slog.Warn("status API has no auth token")
		}
		server := web.NewServer(a.registry, status.NewReporter(a.store, a.settings.MaxConcurrent), web.Options{
			Addr:      addr,
			AuthToken: token,
		})
		g.Go(func() error {
			return server.Run(ctx)
		})
	}
	return g.Wait()
}
