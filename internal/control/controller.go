package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jandubois/rsvctl/internal/envdirective"
	"github.com/jandubois/rsvctl/internal/executor"
	"github.com/jandubois/rsvctl/internal/metricconfig"
	"github.com/jandubois/rsvctl/internal/probe"
	"github.com/jandubois/rsvctl/internal/registry"
	"github.com/jandubois/rsvctl/internal/schedule"
	"github.com/jandubois/rsvctl/internal/status"
)

var (
	ErrNoSelector      = errors.New("service or metric must be provided")
	ErrNoMatchingProbe = errors.New("no probe matching your selection")
	ErrAlreadyEnabled  = errors.New("already enabled")
)

// restartHint tells the user how to apply configuration changes to an enabled metric.
const restartHint = "If you changed the configuration and want to restart the metric, disable it first and then enable it."

// IsNonFatal reports whether err aborts only the current command. Such
// errors are reported to the user without failing the process.
func IsNonFatal(err error) bool {
	return errors.Is(err, ErrNoSelector) ||
		errors.Is(err, ErrNoMatchingProbe) ||
		errors.Is(err, registry.ErrInvalidProbeID) ||
		errors.Is(err, registry.ErrProbeNotFound) ||
		errors.Is(err, metricconfig.ErrMetricNotFound)
}

// Selector chooses the probes and endpoint a command applies to.
type Selector struct {
	Metric  string
	Service string
	Host    string
	// User is recorded as the owner of new registrations.
	User string
}

// Source enumerates configured probes.
type Source interface {
	ConfiguredProbes(ctx context.Context, opts registry.Options) ([]*probe.Probe, error)
	ProbeByID(ctx context.Context, id string) (*probe.Probe, error)
	ProbeByName(ctx context.Context, metric string) (*probe.Probe, error)
}

// Resolver computes the effective configuration of a metric.
type Resolver interface {
	Resolve(name string, opts metricconfig.Options) (*metricconfig.Metric, error)
}

// Backend is the scheduling backend holding registrations.
type Backend interface {
	status.Backend
	Register(ctx context.Context, reg *schedule.Registration) error
	Unregister(ctx context.Context, metric, endpoint string) error
	RunOnce(ctx context.Context, reg *schedule.Registration) (int, error)
}

// Runner executes a metric directly.
type Runner interface {
	Run(ctx context.Context, inv executor.Invocation) (*executor.Result, error)
}

// Options configures a Controller.
type Options struct {
	Source   Source
	Resolver Resolver
	Backend  Backend
	Runner   Runner
	Reporter *status.Reporter

	// LocalHost is the endpoint used when no host is selected.
	LocalHost string
	// InstallRoot replaces the install location token in env directives.
	InstallRoot string
	// Defaults is the lowest configuration layer of every metric.
	Defaults *metricconfig.Config

	Out    io.Writer
	ErrOut io.Writer
}

// Controller applies commands to selected probes.
type Controller struct {
	source      Source
	resolver    Resolver
	backend     Backend
	runner      Runner
	reporter    *status.Reporter
	localHost   string
	installRoot string
	defaults    *metricconfig.Config
	out         io.Writer
	errOut      io.Writer
}

// New creates a Controller.
func New(opts Options) *Controller {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = status.NewReporter(opts.Backend, 0)
	}
	out, errOut := opts.Out, opts.ErrOut
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	return &Controller{
		source:      opts.Source,
		resolver:    opts.Resolver,
		backend:     opts.Backend,
		runner:      opts.Runner,
		reporter:    reporter,
		localHost:   opts.LocalHost,
		installRoot: opts.InstallRoot,
		defaults:    opts.Defaults,
		out:         out,
		errOut:      errOut,
	}
}

// Request is one invocation of the control tool.
type Request struct {
	Command  Command
	Selector Selector

	// Target is the list argument: empty or "all", a probe ID, or a metric name.
	Target string
	// Pattern filters listed metrics by name.
	Pattern string
	Format  status.Format
	Width   status.Width
	Color   bool
}

// Dispatch runs the request's command.
func (c *Controller) Dispatch(ctx context.Context, req Request) error {
	slog.Debug("dispatching command", "command", req.Command, "metric", req.Selector.Metric,
		"service", req.Selector.Service, "host", req.Selector.Host)

	switch req.Command {
	case List:
		return c.list(ctx, req)
	case Enable:
		return c.forEach(ctx, req.Selector, req.Command, c.handleEnable)
	case Disable:
		return c.forEach(ctx, req.Selector, req.Command, c.handleDisable)
	case Test:
		return c.forEach(ctx, req.Selector, req.Command, c.handleTest)
	case FullTest:
		return c.forEach(ctx, req.Selector, req.Command, c.handleFullTest)
	default:
		return fmt.Errorf("unknown command %v", req.Command)
	}
}

type handler func(ctx context.Context, p *probe.Probe, endpoint string, sel Selector) error

func (c *Controller) forEach(ctx context.Context, sel Selector, cmd Command, h handler) error {
	probes, endpoint, err := c.Select(ctx, sel)
	if err != nil {
		return err
	}
	slog.Debug("probes selected", "count", len(probes), "command", cmd, "endpoint", endpoint)

	for _, p := range probes {
		if err := h(ctx, p, endpoint, sel); err != nil {
			return err
		}
	}
	return nil
}

// Select returns the probes matching sel and the endpoint to act on.
// Metric selection stops at the first match; service selection collects
// every match. The selection is then narrowed to probes bound to the
// endpoint, unless none are, in which case it is kept as is so that stale
// bindings can still be disabled.
func (c *Controller) Select(ctx context.Context, sel Selector) ([]*probe.Probe, string, error) {
	if sel.Metric == "" && sel.Service == "" {
		return nil, "", ErrNoSelector
	}

	all, err := c.source.ConfiguredProbes(ctx, registry.Options{})
	if err != nil {
		return nil, "", err
	}

	var selected []*probe.Probe
	if sel.Metric != "" {
		for _, p := range all {
			if p.MetricName == sel.Metric {
				selected = []*probe.Probe{p}
				break
			}
		}
	} else {
		for _, p := range all {
			if p.ServiceType == sel.Service {
				selected = append(selected, p)
			}
		}
	}
	if len(selected) == 0 {
		return nil, "", fmt.Errorf("%w (%s/%s), no action taken", ErrNoMatchingProbe, sel.Metric, sel.Service)
	}

	endpoint := sel.Host
	if endpoint == "" {
		slog.Debug("no host given, using local host", "host", c.localHost)
		endpoint = c.localHost
	}

	var bound []*probe.Probe
	for _, p := range selected {
		if p.HasURI(endpoint) {
			bound = append(bound, p)
		}
	}
	if len(bound) == 0 {
		slog.Debug("no selected probe is bound to the endpoint", "endpoint", endpoint)
		return selected, endpoint, nil
	}
	return bound, endpoint, nil
}

// registration builds the backend registration of p on endpoint from its
// host-specific configuration.
func (c *Controller) registration(p *probe.Probe, endpoint, owner string) (*schedule.Registration, error) {
	m, err := c.resolver.Resolve(p.MetricName, metricconfig.Options{Defaults: c.defaults, Host: endpoint})
	if err != nil {
		return nil, err
	}

	var interval time.Duration
	if v, ok := m.Value("interval"); ok {
		interval, err = schedule.ParseInterval(v)
		if err != nil {
			slog.Warn("ignoring invalid interval", "metric", p.MetricName, "interval", v, "error", err)
			interval = 0
		}
	}

	return &schedule.Registration{
		Metric:     p.MetricName,
		Endpoint:   endpoint,
		Executable: m.Executable,
		Args:       m.Config.ArgsString(),
		ArgList:    m.Config.ArgList(),
		Env:        envdirective.Parse(p.MetricName, m.Config.Env, c.installRoot),
		Owner:      owner,
		Interval:   interval,
	}, nil
}

// Enable registers p on endpoint. An existing registration is left alone
// and reported with ErrAlreadyEnabled.
func (c *Controller) Enable(ctx context.Context, p *probe.Probe, endpoint, owner string) error {
	ok, err := c.backend.IsRegistered(ctx, p.MetricName, endpoint)
	if err != nil {
		return fmt.Errorf("check registration: %w", err)
	}
	if ok {
		return fmt.Errorf("metric %s on %s: %w", p.MetricName, endpoint, ErrAlreadyEnabled)
	}

	reg, err := c.registration(p, endpoint, owner)
	if err != nil {
		return err
	}
	return c.backend.Register(ctx, reg)
}

// Disable removes the registration of p on endpoint, whether or not it exists.
func (c *Controller) Disable(ctx context.Context, p *probe.Probe, endpoint string) error {
	return c.backend.Unregister(ctx, p.MetricName, endpoint)
}

// Test runs p against endpoint and returns its output. Stderr is appended
// to stdout when present.
func (c *Controller) Test(ctx context.Context, p *probe.Probe, endpoint string) (string, error) {
	reg, err := c.registration(p, endpoint, "")
	if err != nil {
		return "", err
	}
	result, err := c.runner.Run(ctx, reg.Invocation())
	if err != nil {
		return "", fmt.Errorf("test %s on %s: %w", p.MetricName, endpoint, err)
	}
	out := result.Stdout
	if result.Stderr != "" {
		out += result.Stderr
	}
	return out, nil
}

// FullTest runs p once through the scheduling backend and returns the exit code.
func (c *Controller) FullTest(ctx context.Context, p *probe.Probe, endpoint, owner string) (int, error) {
	reg, err := c.registration(p, endpoint, owner)
	if err != nil {
		return -1, err
	}
	return c.backend.RunOnce(ctx, reg)
}

func (c *Controller) handleEnable(ctx context.Context, p *probe.Probe, endpoint string, sel Selector) error {
	err := c.Enable(ctx, p, endpoint, sel.User)
	if errors.Is(err, ErrAlreadyEnabled) {
		fmt.Fprintf(c.errOut, "No action taken. Metric %s is already running against %s.\n", p.MetricName, endpoint)
		fmt.Fprintln(c.errOut, restartHint)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Metric enabled")
	return nil
}

func (c *Controller) handleDisable(ctx context.Context, p *probe.Probe, endpoint string, _ Selector) error {
	if err := c.Disable(ctx, p, endpoint); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Metric disabled")
	return nil
}

func (c *Controller) handleTest(ctx context.Context, p *probe.Probe, endpoint string, _ Selector) error {
	out, err := c.Test(ctx, p, endpoint)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, out)
	return nil
}

func (c *Controller) handleFullTest(ctx context.Context, p *probe.Probe, endpoint string, sel Selector) error {
	code, err := c.FullTest(ctx, p, endpoint, sel.User)
	if err != nil {
		return err
	}
	if code == 0 {
		fmt.Fprintln(c.out, "Metric tested")
	} else {
		fmt.Fprintln(c.out, "Metric test failed")
	}
	return nil
}
