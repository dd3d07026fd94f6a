// Package status reports the enable state of probes and renders listings.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jandubois/rsvctl/internal/probe"
)

// DefaultConcurrency bounds the status queries of one listing.
const DefaultConcurrency = 8

// Format selects how statuses are reported.
type Format string

const (
	FormatLocal Format = "local"
	FormatBrief Format = "brief"
	FormatLong  Format = "long"
	FormatFull  Format = "full"
	FormatLog   Format = "log"
	FormatOut   Format = "out"
	FormatErr   Format = "err"
)

// Formats lists every supported format.
var Formats = []Format{FormatLocal, FormatBrief, FormatLong, FormatFull, FormatLog, FormatOut, FormatErr}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (valid: local, brief, long, full, log, out, err)", s)
}

// Backend answers registration and job status queries.
type Backend interface {
	IsRegistered(ctx context.Context, metric, endpoint string) (bool, error)
	QueryStatus(ctx context.Context, metric, endpoint, format string) (string, error)
}

// Row is the status of one probe on one endpoint.
type Row struct {
	Metric   string
	Service  string
	Endpoint string
	Key      string
	Status   string
}

// Reporter queries probe status from the backend.
type Reporter struct {
	backend     Backend
	concurrency int
}

// NewReporter creates a Reporter. A concurrency below 1 uses DefaultConcurrency.
func NewReporter(backend Backend, concurrency int) *Reporter {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Reporter{backend: backend, concurrency: concurrency}
}

// Status returns the enable state of p on endpoint. Backend failures yield UNKNOWN.
func (r *Reporter) Status(ctx context.Context, p *probe.Probe, endpoint string) probe.State {
	ok, err := r.backend.IsRegistered(ctx, p.MetricName, endpoint)
	if err != nil {
		slog.Error("status query failed", "metric", p.MetricName, "endpoint", endpoint, "error", err)
		return probe.StateUnknown
	}
	if ok {
		return probe.StateEnabled
	}
	return probe.StateDisabled
}

// SubmissionStatus returns the backend's job status text for p on endpoint.
func (r *Reporter) SubmissionStatus(ctx context.Context, p *probe.Probe, endpoint string, format Format) (string, error) {
	return r.backend.QueryStatus(ctx, p.MetricName, endpoint, string(format))
}

// Query returns the status text of p on endpoint in format.
func (r *Reporter) Query(ctx context.Context, p *probe.Probe, endpoint string, format Format) string {
	if format == FormatLocal {
		return string(r.Status(ctx, p, endpoint))
	}
	out, err := r.SubmissionStatus(ctx, p, endpoint, format)
	if err != nil {
		slog.Error("submission status query failed", "metric", p.MetricName, "endpoint", endpoint, "error", err)
		return string(probe.StateUnknown)
	}
	return out
}

// Collect queries every endpoint of every probe and returns the rows
// sorted by metric, then endpoint.
func (r *Reporter) Collect(ctx context.Context, probes []*probe.Probe, format Format) ([]Row, error) {
	var rows []Row
	for _, p := range probes {
		for _, uri := range p.URIs {
			rows = append(rows, Row{
				Metric:   p.MetricName,
				Service:  p.ServiceType,
				Endpoint: uri,
				Key:      p.Key(),
			})
		}
	}

	byKey := make(map[string]*probe.Probe, len(probes))
	for _, p := range probes {
		byKey[p.Key()] = p
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range rows {
		row := &rows[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row.Status = r.Query(ctx, byKey[row.Key], row.Endpoint, format)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Metric != rows[j].Metric {
			return rows[i].Metric < rows[j].Metric
		}
		return rows[i].Endpoint < rows[j].Endpoint
	})
	return rows, nil
}

// Aggregate collapses local-format rows per metric: enabled endpoints are
// kept; a metric enabled nowhere gets one row per distinct status, with the
// status in the Endpoint column.
func Aggregate(rows []Row) []Row {
	var out []Row
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].Metric == rows[start].Metric {
			end++
		}
		group := rows[start:end]
		start = end

		var enabled []Row
		var statuses []string
		seen := make(map[string]bool)
		for _, row := range group {
			if row.Status == string(probe.StateEnabled) {
				enabled = append(enabled, row)
				continue
			}
			if !seen[row.Status] {
				seen[row.Status] = true
				statuses = append(statuses, row.Status)
			}
		}

		if len(enabled) > 0 {
			out = append(out, enabled...)
			continue
		}
		for _, s := range statuses {
			row := group[0]
			row.Endpoint = s
			out = append(out, row)
		}
	}
	return out
}
