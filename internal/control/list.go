package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jandubois/rsvctl/internal/probe"
	"github.com/jandubois/rsvctl/internal/registry"
	"github.com/jandubois/rsvctl/internal/status"
)

func (c *Controller) list(ctx context.Context, req Request) error {
	format := req.Format
	if format == "" {
		format = status.FormatLocal
	}

	if req.Target != "" && req.Target != "all" {
		return c.listOne(ctx, req.Target, format)
	}

	slog.Info("listing all probes")
	probes, err := c.source.ConfiguredProbes(ctx, registry.Options{Pattern: req.Pattern})
	if err != nil {
		return err
	}
	if len(probes) == 0 {
		fmt.Fprintln(c.errOut, "No configured probes!")
		return nil
	}

	rows, err := c.reporter.Collect(ctx, probes, format)
	if err != nil {
		return err
	}
	if format == status.FormatLocal {
		return status.NewTable(req.Width, req.Color).Render(c.out, status.Aggregate(rows))
	}
	return status.RenderByKey(c.out, rows)
}

// listOne prints the status of a single probe, named either by probe ID or
// by metric name. A metric name selects the metric's first endpoint.
func (c *Controller) listOne(ctx context.Context, target string, format status.Format) error {
	p, err := c.lookup(ctx, target)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, c.reporter.Query(ctx, p, p.URIs[0], format))
	return nil
}

func (c *Controller) lookup(ctx context.Context, target string) (*probe.Probe, error) {
	if registry.IsValidProbeID(target) {
		return c.source.ProbeByID(ctx, target)
	}

	slog.Info("not a probe ID, trying metric name lookup", "target", target)
	p, err := c.source.ProbeByName(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("unable to look up probe by ID or metric name: %w", err)
	}
	slog.Info("found metric", "metric", target, "uri", p.URIs[0])
	return p, nil
}
