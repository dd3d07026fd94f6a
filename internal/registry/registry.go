// Package registry enumerates the probes configured under an installation root.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jandubois/rsvctl/internal/metricconfig"
	"github.com/jandubois/rsvctl/internal/probe"
)

var (
	ErrInvalidProbeID = errors.New("invalid probe ID")
	ErrProbeNotFound  = errors.New("probe not found")
)

// Options narrows the set of configured probes.
type Options struct {
	// Pattern is a regular expression matched against metric names.
	Pattern string
}

// Registry discovers metrics and binds them to endpoints.
type Registry struct {
	resolver  *metricconfig.Resolver
	localHost string
	defaults  *metricconfig.Config
}

// New creates a Registry. localHost is the endpoint of metrics without host overrides.
func New(resolver *metricconfig.Resolver, localHost string, defaults *metricconfig.Config) *Registry {
	return &Registry{
		resolver:  resolver,
		localHost: localHost,
		defaults:  defaults,
	}
}

// LocalHost returns the endpoint used for metrics without host overrides.
func (r *Registry) LocalHost() string {
	return r.localHost
}

// Resolver returns the configuration resolver used by the registry.
func (r *Registry) Resolver() *metricconfig.Resolver {
	return r.resolver
}

// Installed returns the names of all installed metric executables, sorted.
func (r *Registry) Installed() ([]string, error) {
	entries, err := os.ReadDir(r.resolver.ExecutableDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metrics directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// hostDirs returns the host override directories of the config dir, sorted.
func (r *Registry) hostDirs() ([]string, error) {
	entries, err := os.ReadDir(r.resolver.ConfigDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config directory: %w", err)
	}

	var hosts []string
	for _, entry := range entries {
		if entry.IsDir() {
			hosts = append(hosts, entry.Name())
		}
	}
	sort.Strings(hosts)
	return hosts, nil
}

// endpoints returns the hosts with an override file for metric.
func (r *Registry) endpoints(metric string, hosts []string) []string {
	var uris []string
	for _, host := range hosts {
		if isFile(r.resolver.HostConfigPath(metric, host)) {
			uris = append(uris, host)
		}
	}
	return uris
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ConfiguredProbes returns every installed metric that has a general config
// file or at least one host override, bound to its endpoints.
func (r *Registry) ConfiguredProbes(ctx context.Context, opts Options) ([]*probe.Probe, error) {
	var pattern *regexp.Regexp
	if opts.Pattern != "" {
		var err error
		pattern, err = regexp.Compile(opts.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid metric pattern %q: %w", opts.Pattern, err)
		}
	}

	names, err := r.Installed()
	if err != nil {
		return nil, err
	}
	hosts, err := r.hostDirs()
	if err != nil {
		return nil, err
	}

	var probes []*probe.Probe
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pattern != nil && !pattern.MatchString(name) {
			continue
		}

		uris := r.endpoints(name, hosts)
		if len(uris) == 0 {
			if !isFile(r.resolver.GeneralConfigPath(name)) {
				slog.Debug("metric is not configured", "metric", name)
				continue
			}
			uris = []string{r.localHost}
		}

		p, err := r.newProbe(name, uris)
		if err != nil {
			slog.Warn("skipping metric", "metric", name, "error", err)
			continue
		}
		probes = append(probes, p)
	}

	slog.Debug("configured probes", "count", len(probes))
	return probes, nil
}

func (r *Registry) newProbe(name string, uris []string) (*probe.Probe, error) {
	m, err := r.resolver.Resolve(name, metricconfig.Options{Defaults: r.defaults})
	if err != nil {
		return nil, err
	}
	return &probe.Probe{
		MetricName:  name,
		FileName:    filepath.Base(m.Executable),
		ServiceType: m.ServiceType(),
		URIs:        uris,
		Metric:      m,
	}, nil
}

// IsValidProbeID reports whether id has the form hostName__fileName@metricName.
func IsValidProbeID(id string) bool {
	return probe.IsValidID(id)
}

// ProbeByID returns the probe named by id, bound only to the id's host.
func (r *Registry) ProbeByID(ctx context.Context, id string) (*probe.Probe, error) {
	pid, err := probe.ParseID(id)
	if err != nil || !isFileName(pid.Metric) || !isFileName(pid.File) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProbeID, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := r.newProbe(pid.Metric, []string{pid.Host})
	if err != nil {
		if errors.Is(err, metricconfig.ErrMetricNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProbeNotFound, id)
		}
		return nil, err
	}
	if p.FileName != pid.File {
		return nil, fmt.Errorf("%w: %s (no metric file %s)", ErrProbeNotFound, id, pid.File)
	}
	return p, nil
}

// isFileName reports whether name is a single path element inside a directory.
func isFileName(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// ProbeByName returns the configured probe for metric, bound to all its endpoints.
func (r *Registry) ProbeByName(ctx context.Context, metric string) (*probe.Probe, error) {
	probes, err := r.ConfiguredProbes(ctx, Options{Pattern: "^" + regexp.QuoteMeta(metric) + "$"})
	if err != nil {
		return nil, err
	}
	if len(probes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProbeNotFound, metric)
	}
	return probes[0], nil
}
