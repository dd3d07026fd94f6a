package probe

import (
	"github.com/jandubois/rsvctl/internal/metricconfig"
)

// State is the enable state of a probe on one endpoint.
type State string

const (
	StateEnabled  State = "ENABLED"
	StateDisabled State = "DISABLED"
	StateUnknown  State = "UNKNOWN"
)

// Probe is a configured metric together with the endpoints it is bound to.
type Probe struct {
	MetricName  string
	FileName    string
	ServiceType string
	URIs        []string

	// Metric is the metric resolved without a host override.
	Metric *metricconfig.Metric
}

// Key identifies the probe independently of its endpoints.
func (p *Probe) Key() string {
	return p.FileName + "@" + p.MetricName
}

// LocalUniqueName returns the probe ID for one endpoint.
func (p *Probe) LocalUniqueName(uri string) string {
	return ID{Host: uri, File: p.FileName, Metric: p.MetricName}.String()
}

// HasURI reports whether the probe is bound to uri.
func (p *Probe) HasURI(uri string) bool {
	for _, u := range p.URIs {
		if u == uri {
			return true
		}
	}
	return false
}

// WithURI returns a copy of the probe bound only to uri.
func (p *Probe) WithURI(uri string) *Probe {
	c := *p
	c.URIs = []string{uri}
	return &c
}
