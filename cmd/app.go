package cmd

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jandubois/rsvctl/internal/config"
	"github.com/jandubois/rsvctl/internal/control"
	"github.com/jandubois/rsvctl/internal/executor"
	"github.com/jandubois/rsvctl/internal/hostname"
	"github.com/jandubois/rsvctl/internal/metricconfig"
	"github.com/jandubois/rsvctl/internal/registry"
	"github.com/jandubois/rsvctl/internal/schedule"
	"github.com/jandubois/rsvctl/internal/status"
)

// app wires the components of one rsvctl invocation.
type app struct {
	settings  *config.Settings
	root      string
	localHost string
	resolver  *metricconfig.Resolver
	registry  *registry.Registry
	executor  *executor.Executor
	store     *schedule.Store
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	flag, _ := cmd.Flags().GetString("vdt-location")
	root, err := settings.ResolveInstallRoot(flag)
	if err != nil {
		return nil, err
	}

	localHost := hostname.Resolve()
	resolver := metricconfig.NewResolver(root)
	exec := executor.New(settings.RunTimeout, settings.Separator())

	dbPath, err := getDatabasePath(cmd, settings, root)
	if err != nil {
		return nil, err
	}
	store, err := schedule.Open(ctx, dbPath, exec)
	if err != nil {
		return nil, err
	}

	slog.Debug("initialized", "root", root, "host", localHost, "database", dbPath)
	return &app{
		settings:  settings,
		root:      root,
		localHost: localHost,
		resolver:  resolver,
		registry:  registry.New(resolver, localHost, nil),
		executor:  exec,
		store:     store,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func (a *app) controller(out, errOut io.Writer) *control.Controller {
	return control.New(control.Options{
		Source:      a.registry,
		Resolver:    a.resolver,
		Backend:     a.store,
		Runner:      a.executor,
		Reporter:    status.NewReporter(a.store, a.settings.MaxConcurrent),
		LocalHost:   a.localHost,
		InstallRoot: a.root,
		Out:         out,
		ErrOut:      errOut,
	})
}
